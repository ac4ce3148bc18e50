package middleware

import (
	"net/http"

	logpkg "github.com/benvon/task-assistant/internal/logger"
	"github.com/benvon/task-assistant/internal/request"
	"go.uber.org/zap"
)

// Audit logs rate-limit rejections and requests turned away because the
// analysis capacity or agent was unavailable.
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			var event string
			switch wrapped.statusCode {
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			case http.StatusServiceUnavailable:
				event = "service_unavailable"
			default:
				return
			}

			logger.Warn(event,
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
				zap.String("retry_after", wrapped.Header().Get("Retry-After")),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}
