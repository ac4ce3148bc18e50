package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/task-assistant/internal/database"
	"github.com/benvon/task-assistant/internal/middleware"
	"github.com/benvon/task-assistant/internal/services/ai"
	"github.com/benvon/task-assistant/internal/services/tasks"
	"github.com/benvon/task-assistant/internal/validation"
	"github.com/benvon/task-assistant/internal/workers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxErrorMessageLength caps messages returned to clients
const maxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage caps the length of a client-facing message on a rune boundary
func sanitizeErrorMessage(message string) string {
	runes := []rune(message)
	if len(runes) > maxErrorMessageLength {
		return string(runes[:maxErrorMessageLength]) + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondError maps a service error onto a status code. Unknown errors are
// logged and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var vErr *validation.ValidationError
	var unavailable *ai.AgentUnavailableError

	switch {
	case errors.As(err, &vErr):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", vErr.Error())
	case errors.Is(err, database.ErrTaskNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
	case errors.Is(err, database.ErrRunNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Analysis run not found")
	case errors.As(err, &unavailable):
		setRetryAfter(w, unavailable.RetryAfter())
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable",
			"The analysis service is unavailable; retry later")
	case errors.Is(err, workers.ErrPoolBusy):
		setRetryAfter(w, time.Second)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable",
			"Too many analyses in progress; retry later")
	case errors.Is(err, workers.ErrPoolClosed):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Server is shutting down")
	case errors.Is(err, tasks.ErrQueueUnavailable):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Asynchronous reanalysis is not configured")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		setRetryAfter(w, time.Second)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Request did not complete in time")
	default:
		log.Error("request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}

// setRetryAfter writes a whole number of seconds, at least one.
func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}

// decodeJSON decodes a request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &validation.ValidationError{Field: "body", Reason: "request body is empty"}
		}
		return &validation.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

// pathID parses the {id} route variable as a task ID.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, &validation.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is not a task id", raw)}
	}
	return id, nil
}

// requestContext carries the request ID down to the agent logs.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		ctx = ai.WithRequestID(ctx, id)
	}
	return ctx
}
