package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "GET passes", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "bodyless POST passes", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "JSON POST passes", method: http.MethodPost, body: `{}`, contentType: "application/json", wantStatus: http.StatusOK},
		{name: "JSON with charset passes", method: http.MethodPatch, body: `{}`, contentType: "application/json; charset=utf-8", wantStatus: http.StatusOK},
		{name: "missing header", method: http.MethodPost, body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "wrong type", method: http.MethodPut, body: `a=b`, contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusUnsupportedMediaType},
		{name: "prefix lookalike", method: http.MethodPost, body: `{}`, contentType: "application/jsonp", wantStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, "/api/v1/tasks", body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			ContentType(zap.NewNop())(okHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	t.Parallel()

	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		body       string
		hideLength bool
		wantStatus int
	}{
		{name: "under limit", body: "0123456789", wantStatus: http.StatusOK},
		{name: "declared over limit", body: strings.Repeat("x", 32), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "streamed over limit", body: strings.Repeat("x", 32), hideLength: true, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.hideLength {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			MaxRequestSize(16, zap.NewNop())(readAll).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SecurityHeaders(true)(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if w.Header().Get(h) == "" {
			t.Errorf("Expected header %s to be set", h)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS([]string{"http://localhost:3000"}, zap.NewNop())(okHandler)

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{name: "allowed origin", origin: "http://localhost:3000", wantOrigin: "http://localhost:3000"},
		{name: "unknown origin", origin: "http://evil.example", wantOrigin: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Expected Access-Control-Allow-Origin %q, got %q", tt.wantOrigin, got)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	w := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Expected JSON timeout body: %v", err)
	}
	if body.Success {
		t.Error("Expected success false")
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	mw, err := RateLimit("2-M", nil, zap.NewNop())
	if err != nil {
		t.Fatalf("RateLimit() error = %v", err)
	}
	handler := mw(okHandler)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("1.2.3.4"); code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := send("1.2.3.4"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 over the limit, got %d", code)
	}
	if code := send("5.6.7.8"); code != http.StatusOK {
		t.Errorf("Other clients must not be limited, got %d", code)
	}
}

func TestRateLimit_InvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := RateLimit("lots", nil, zap.NewNop()); err == nil {
		t.Error("Expected an error for a malformed rate")
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantEvent string
	}{
		{name: "ok is quiet", status: http.StatusOK},
		{name: "rate limited", status: http.StatusTooManyRequests, wantEvent: "rate_limit_violation"},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantEvent: "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			Audit(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil))

			if tt.wantEvent == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no audit entries, got %d", logs.Len())
				}
				return
			}
			if logs.FilterMessage(tt.wantEvent).Len() != 1 {
				t.Errorf("Expected one %s entry", tt.wantEvent)
			}
		})
	}
}
