package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// healthCheckTimeout bounds each dependency probe
const healthCheckTimeout = 5 * time.Second

// Pinger is anything that can prove a connection is alive; *database.DB
// satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueChecker reports queue connectivity; queue.JobQueue satisfies it.
type QueueChecker interface {
	HealthCheck(ctx context.Context) error
}

type dependencyCheck struct {
	name  string
	check func(ctx context.Context) error
}

// HealthChecker handles health check requests
type HealthChecker struct {
	checks  []dependencyCheck
	version string
}

// HealthOption adds an optional dependency to extended health checks
type HealthOption func(*HealthChecker)

// WithRedis checks the rate-limit store
func WithRedis(client redis.UniversalClient) HealthOption {
	return func(h *HealthChecker) {
		h.checks = append(h.checks, dependencyCheck{
			name:  "redis",
			check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
}

// WithQueue checks the reanalysis queue
func WithQueue(q QueueChecker) HealthOption {
	return func(h *HealthChecker) {
		h.checks = append(h.checks, dependencyCheck{name: "rabbitmq", check: q.HealthCheck})
	}
}

// WithVersion sets the version reported by /version
func WithVersion(v string) HealthOption {
	return func(h *HealthChecker) { h.version = v }
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db Pinger, opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{
		checks:  []dependencyCheck{{name: "database", check: db.PingContext}},
		version: "dev",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers health routes on the root router
func (h *HealthChecker) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.Version).Methods(http.MethodGet)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck reports liveness, or with ?mode=extended probes each dependency
// and answers 503 if any is down.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := probe(r.Context(), c.check); err != nil {
				response.Status = "unhealthy"
				response.Checks[c.name] = "unhealthy: " + sanitizeErrorMessage(err.Error())
				continue
			}
			response.Checks[c.name] = "healthy"
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func probe(ctx context.Context, check func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return check(ctx)
}

// Version reports the running build
func (h *HealthChecker) Version(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": h.version})
}
