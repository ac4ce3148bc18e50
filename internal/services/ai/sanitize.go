package ai

import (
	"context"
	"strconv"

	"github.com/benvon/task-assistant/internal/logger"
)

// Context key types for logging (to avoid collisions with string keys)
type contextKey string

const (
	taskIDContextKey    contextKey = "task_id"
	requestIDContextKey contextKey = "request_id"
)

const (
	// MaxPreviewLength is the maximum length for preview strings in logs
	MaxPreviewLength = 200
	// RedactedValue is the value used to replace sensitive data
	RedactedValue = "[REDACTED]"
)

// WithRequestID returns a context carrying the HTTP request ID for agent logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// WithTaskID returns a context carrying the task being analyzed.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDContextKey, id)
}

// ExtractRequestID extracts a request ID from context if available
func ExtractRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// ExtractTaskID extracts a task ID from context if available
func ExtractTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDContextKey).(int64); ok {
		return strconv.FormatInt(id, 10)
	}
	return ""
}

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizePrompt creates a safe preview of a prompt for logging
// Even in fullLog mode, we sanitize to prevent log injection and limit size
func SanitizePrompt(prompt string, fullLog bool) string {
	return preview(prompt, fullLog)
}

// SanitizeResponse creates a safe preview of a response for logging
func SanitizeResponse(response string, fullLog bool) string {
	return preview(response, fullLog)
}

func preview(s string, fullLog bool) string {
	if fullLog {
		return logger.SanitizeDebugContent(s)
	}
	return logger.SanitizeString(s, MaxPreviewLength)
}
