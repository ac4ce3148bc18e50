package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRouteSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("task-assistant-api",
		otelmux.WithTracerProvider(tp),
		otelmux.WithPropagators(propagation.TraceContext{}),
	))
	r.HandleFunc("/api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		traceParent string
		wantTraceID string
	}{
		{name: "new trace"},
		{
			name:        "continues caller trace",
			traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			wantTraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/7", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status OK, got %d", rr.Code)
			}

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("Expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name != "/api/v1/tasks/{id}" {
				t.Errorf("Expected span named after the route template, got %q", span.Name)
			}
			if !span.SpanContext.TraceID().IsValid() {
				t.Error("Expected valid trace ID in span")
			}
			if tt.wantTraceID != "" && span.SpanContext.TraceID().String() != tt.wantTraceID {
				t.Errorf("Expected trace ID %s, got %s", tt.wantTraceID, span.SpanContext.TraceID())
			}
		})
	}
}
