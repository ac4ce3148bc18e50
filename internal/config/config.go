package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AgentFailurePolicy decides what Create does when the agent is unavailable
type AgentFailurePolicy string

const (
	// PolicyReject fails the request and stores nothing but the analysis run.
	PolicyReject AgentFailurePolicy = "reject"
	// PolicyPersist stores the task with blank analysis fields.
	PolicyPersist AgentFailurePolicy = "persist"
)

// DefaultDatabaseURL is a single SQLite file next to the binary
const DefaultDatabaseURL = "sqlite://./tasks.db"

// Config holds application configuration
type Config struct {
	DatabaseURL string
	ServerPort  string
	FrontendURL string
	EnableHSTS  bool

	OpenAIKey  string
	AIProvider string
	AIModel    string
	AIBaseURL  string
	AITimeout  time.Duration

	AnalysisWorkers    int
	AnalysisQueueSize  int
	AgentFailurePolicy AgentFailurePolicy

	RedisURL  string
	RateLimit string

	RabbitMQURL      string
	RabbitMQPrefetch int
	MaxJobRetries    int
	DLQInterval      time.Duration
	DLQRetention     time.Duration

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
	OpenAPIPath     string
}

// Load loads configuration from environment variables. A .env file (or the
// file named by ENV_FILE) is read first; real environment variables win.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", DefaultDatabaseURL),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:  getEnvBool("ENABLE_HSTS", false),

		OpenAIKey:  firstEnv("OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		AIProvider: getEnv("AI_PROVIDER", "openai"),
		AIModel:    getEnv("AI_MODEL", ""),
		AIBaseURL:  getEnv("AI_BASE_URL", ""),
		AITimeout:  getEnvDuration("AI_TIMEOUT", 30*time.Second),

		AnalysisWorkers:    getEnvInt("ANALYSIS_WORKERS", 4),
		AnalysisQueueSize:  getEnvInt("ANALYSIS_QUEUE_SIZE", 16),
		AgentFailurePolicy: AgentFailurePolicy(strings.ToLower(getEnv("AGENT_FAILURE_POLICY", string(PolicyReject)))),

		RedisURL:  getEnv("REDIS_URL", ""),
		RateLimit: getEnv("RATE_LIMIT", "10-S"),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		MaxJobRetries:    getEnvInt("MAX_JOB_RETRIES", 3),
		DLQInterval:      getEnvDuration("DLQ_GC_INTERVAL", time.Hour),
		DLQRetention:     getEnvDuration("DLQ_RETENTION", 24*time.Hour),

		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OpenAPIPath:     getEnv("OPENAPI_PATH", "api/openapi/openapi.yaml"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker loads configuration for the queue worker, which cannot run
// without RabbitMQ.
func LoadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for the worker")
	}
	return cfg, nil
}

// CORSOrigins splits FRONTEND_URL on commas.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL must not be empty"))
	}
	switch c.AgentFailurePolicy {
	case PolicyReject, PolicyPersist:
	default:
		errs = append(errs, fmt.Errorf("AGENT_FAILURE_POLICY must be %q or %q, got %q", PolicyReject, PolicyPersist, c.AgentFailurePolicy))
	}
	if c.AnalysisWorkers <= 0 {
		errs = append(errs, fmt.Errorf("ANALYSIS_WORKERS must be positive, got %d", c.AnalysisWorkers))
	}
	if c.AnalysisQueueSize < 0 {
		errs = append(errs, fmt.Errorf("ANALYSIS_QUEUE_SIZE must not be negative, got %d", c.AnalysisQueueSize))
	}
	if c.AITimeout <= 0 {
		errs = append(errs, fmt.Errorf("AI_TIMEOUT must be positive, got %s", c.AITimeout))
	}
	if c.DLQInterval <= 0 || c.DLQRetention <= 0 {
		errs = append(errs, fmt.Errorf("DLQ_GC_INTERVAL and DLQ_RETENTION must be positive"))
	}
	if c.MaxJobRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_JOB_RETRIES must not be negative, got %d", c.MaxJobRetries))
	}
	return errors.Join(errs...)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or bare seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
