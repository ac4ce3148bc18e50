package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout applies when Timeout is given a non-positive duration
const DefaultRequestTimeout = 30 * time.Second

const timeoutBody = `{"success":false,"error":"Service Unavailable","message":"Request timed out"}`

// Timeout bounds handler time. The handler's context is cancelled at the
// deadline, which also releases callers waiting on the analysis pool.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
