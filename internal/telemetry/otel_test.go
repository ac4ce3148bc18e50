package telemetry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		endpoint    string
	}{
		{name: "valid configuration", serviceName: "task-assistant-api", endpoint: "localhost:4318"},
		{name: "empty service name", serviceName: "", endpoint: "localhost:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.serviceName, "test", tt.endpoint)
			if err != nil {
				t.Fatalf("InitTracer() error = %v", err)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := Shutdown(shutdownCtx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		endpoint string
		wantLog  string
	}{
		{name: "disabled", enabled: false, endpoint: "localhost:4318"},
		{name: "enabled without endpoint", enabled: true, wantLog: "otel_enabled_but_endpoint_not_configured"},
		{name: "enabled", enabled: true, endpoint: "localhost:4318", wantLog: "otel_tracer_initialized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)

			shutdown := Setup(context.Background(), tt.enabled, "task-assistant-api", "test", tt.endpoint, zap.New(core))
			if shutdown == nil {
				t.Fatal("Setup() returned a nil shutdown func")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				t.Errorf("shutdown() error = %v", err)
			}

			if tt.wantLog == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no log entries, got %d", logs.Len())
				}
				return
			}
			if logs.FilterMessage(tt.wantLog).Len() != 1 {
				t.Errorf("Expected %s to be logged", tt.wantLog)
			}
		})
	}
}
