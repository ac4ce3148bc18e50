package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/task-assistant/internal/models"
	"github.com/openai/openai-go/v3"
)

var (
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrAgentUnavailable matches any failure to get a reply from the agent.
	ErrAgentUnavailable = errors.New("analysis agent unavailable")
	// ErrMalformedResponse matches replies with no usable JSON object.
	ErrMalformedResponse = errors.New("malformed agent response")
	// ErrPartialResponse matches replies carrying only one of the two fields.
	ErrPartialResponse = errors.New("partial agent response")
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // true for quota errors, false for rate limits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// AgentUnavailableError is returned when the agent call itself failed:
// transport, authentication, HTTP status or timeout. No reply was produced.
type AgentUnavailableError struct {
	Err error
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrAgentUnavailable, e.Err)
}

func (e *AgentUnavailableError) Unwrap() error { return e.Err }

func (e *AgentUnavailableError) Is(target error) bool { return target == ErrAgentUnavailable }

// RetryAfter suggests how long a caller should wait before trying again.
func (e *AgentUnavailableError) RetryAfter() time.Duration {
	return GetRetryDelay(e.Err, 0)
}

// MalformedResponseError is returned when a reply had no JSON object, or
// an object with neither field.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedResponse, e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// PartialResponseError is returned when a reply carried exactly one field.
// Result holds what was extracted; the missing field is nil.
type PartialResponseError struct {
	Result models.AnalysisResult
}

func (e *PartialResponseError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrPartialResponse, strings.Join(e.Result.MissingFields(), ", "))
}

func (e *PartialResponseError) Is(target error) bool { return target == ErrPartialResponse }

// OutcomeOf classifies an analysis error. A nil error is a complete analysis.
func OutcomeOf(err error) models.AnalysisOutcome {
	switch {
	case err == nil:
		return models.OutcomeComplete
	case errors.Is(err, ErrPartialResponse):
		return models.OutcomePartial
	case errors.Is(err, ErrMalformedResponse):
		return models.OutcomeMalformed
	default:
		return models.OutcomeAgentUnavailable
	}
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsPermanent
	}

	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}

	errStr := err.Error()
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError extracts API error details from an error. It understands the
// SDK's typed error and falls back to scanning the message for a 429.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var known *APIError
	if errors.As(err, &known) {
		return known
	}

	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		apiErr := &APIError{
			Message:    sdkErr.Message,
			Type:       sdkErr.Type,
			Code:       sdkErr.Code,
			StatusCode: sdkErr.StatusCode,
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(sdkErr.StatusCode)
		}
		if sdkErr.Code == "insufficient_quota" {
			apiErr.IsPermanent = true
		}
		if sdkErr.Response != nil {
			apiErr.RetryAfter = parseRetryAfter(sdkErr.Response.Header.Get("Retry-After"))
		}
		if apiErr.RetryAfter == nil && sdkErr.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = defaultRetryAfter(apiErr.IsPermanent)
		}
		return apiErr
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "429") {
		return nil
	}

	apiErr := &APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    errStr,
		Type:       "rate_limit_error",
	}

	// Some gateways put the provider's JSON error body in the message
	if jsonStart := strings.Index(errStr, "{"); jsonStart != -1 {
		jsonStr := errStr[jsonStart:]
		if jsonEnd := strings.LastIndex(jsonStr, "}"); jsonEnd != -1 {
			var errorData struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			}
			if json.Unmarshal([]byte(jsonStr[:jsonEnd+1]), &errorData) == nil {
				apiErr.Message = errorData.Message
				apiErr.Type = errorData.Type
				apiErr.Code = errorData.Code
				apiErr.IsPermanent = errorData.Code == "insufficient_quota"
			}
		}
	}

	apiErr.RetryAfter = defaultRetryAfter(apiErr.IsPermanent)
	return apiErr
}

func defaultRetryAfter(quota bool) *time.Duration {
	// Rate limits typically reset after a minute; quota needs a human
	d := 60 * time.Second
	if quota {
		d = time.Hour
	}
	return &d
}

func parseRetryAfter(v string) *time.Duration {
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// GetRetryDelay calculates the delay before retrying based on error type
func GetRetryDelay(err error, attempt int) time.Duration {
	// Clamp the exponent to [0, 10]
	shift := uint(0)
	if attempt > 0 {
		shift = uint(min(attempt, 10))
	}

	if IsQuotaError(err) {
		delay := time.Hour * time.Duration(1<<shift)
		return min(delay, 24*time.Hour)
	}

	if IsRateLimitError(err) {
		delay := min(60*time.Second*time.Duration(1<<shift), 15*time.Minute)
		if apiErr := ExtractAPIError(err); apiErr != nil && apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
			delay = *apiErr.RetryAfter
		}
		return delay
	}

	delay := 5 * time.Second * time.Duration(1<<shift)
	return min(delay, 5*time.Minute)
}
