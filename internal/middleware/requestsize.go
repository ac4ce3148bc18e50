package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// DefaultMaxRequestSize is the default maximum request body size (1MB)
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize rejects bodies over maxBytes, early when Content-Length
// already says so and otherwise when the handler reads past the limit.
func MaxRequestSize(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
					"Request body exceeds the size limit", logger)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
