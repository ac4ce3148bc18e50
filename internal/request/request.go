// Package request holds helpers for reading client details off an HTTP request.
package request

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP, preferring the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's address without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
