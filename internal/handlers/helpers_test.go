package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benvon/task-assistant/internal/database"
	"github.com/benvon/task-assistant/internal/services/ai"
	"github.com/benvon/task-assistant/internal/services/tasks"
	"github.com/benvon/task-assistant/internal/validation"
	"github.com/benvon/task-assistant/internal/workers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// envelope is the shape of every JSON response.
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}
	var body envelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("Timestamp '%s' is not valid RFC3339: %v", body.Timestamp, err)
	}
	return body
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		data     any
		wantData string
	}{
		{name: "object", status: http.StatusOK, data: map[string]string{"message": "hello"}, wantData: `{"message":"hello"}`},
		{name: "nil data", status: http.StatusCreated, data: nil, wantData: `null`},
		{name: "array", status: http.StatusOK, data: []string{"a", "b"}, wantData: `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			body := decodeEnvelope(t, w)
			if !body.Success {
				t.Error("Expected success to be true")
			}
			if string(body.Data) != tt.wantData {
				t.Errorf("Expected data %s, got %s", tt.wantData, body.Data)
			}
		})
	}
}

func TestRespondJSONError_TruncatesMessage(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSONError(w, http.StatusBadRequest, "Bad Request", strings.Repeat("é", 300))

	body := decodeEnvelope(t, w)
	if body.Success {
		t.Error("Expected success to be false")
	}
	if got := len([]rune(body.Message)); got != maxErrorMessageLength+3 {
		t.Errorf("Expected message of %d runes, got %d", maxErrorMessageLength+3, got)
	}
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	rateLimited := &ai.AgentUnavailableError{Err: &ai.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}}

	tests := []struct {
		name           string
		err            error
		wantStatus     int
		wantRetryAfter string
		wantLogged     bool
	}{
		{name: "validation", err: &validation.ValidationError{Field: "description", Reason: "must not be empty"}, wantStatus: http.StatusBadRequest},
		{name: "task not found", err: fmt.Errorf("get: %w", database.ErrTaskNotFound), wantStatus: http.StatusNotFound},
		{name: "run not found", err: database.ErrRunNotFound, wantStatus: http.StatusNotFound},
		{name: "agent unavailable", err: &ai.AgentUnavailableError{Err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantRetryAfter: "5"},
		{name: "agent rate limited", err: rateLimited, wantStatus: http.StatusServiceUnavailable, wantRetryAfter: "60"},
		{name: "pool busy", err: workers.ErrPoolBusy, wantStatus: http.StatusServiceUnavailable, wantRetryAfter: "1"},
		{name: "pool closed", err: workers.ErrPoolClosed, wantStatus: http.StatusServiceUnavailable},
		{name: "no queue", err: tasks.ErrQueueUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable, wantRetryAfter: "1"},
		{name: "unexpected", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantLogged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.ErrorLevel)
			w := httptest.NewRecorder()
			respondError(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil), zap.New(core), tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetryAfter {
				t.Errorf("Expected Retry-After %q, got %q", tt.wantRetryAfter, got)
			}
			body := decodeEnvelope(t, w)
			if body.Success {
				t.Error("Expected success to be false")
			}
			if tt.wantLogged != (logs.FilterMessage("request_failed").Len() == 1) {
				t.Errorf("request_failed logged = %v, want %v", !tt.wantLogged, tt.wantLogged)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(body.Message, "disk on fire") {
				t.Error("Internal error detail must not reach the client")
			}
		})
	}
}

func TestSetRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "1"},
		{300 * time.Millisecond, "1"},
		{1500 * time.Millisecond, "2"},
		{time.Hour, "3600"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		setRetryAfter(w, tt.d)
		if got := w.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("setRetryAfter(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"description":"Fix login"}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "broken", body: `{"description":`, wantErr: true},
		{name: "wrong type", body: `{"description":5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var req CreateTaskRequest
			err := decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)), &req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			var vErr *validation.ValidationError
			if err != nil && (!errors.As(err, &vErr) || vErr.Field != "body") {
				t.Errorf("Expected a body ValidationError, got %v", err)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "42", want: 42},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, tt := range tests {
		r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": tt.raw})
		got, err := pathID(r)
		if (err != nil) != tt.wantErr {
			t.Errorf("pathID(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("pathID(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
