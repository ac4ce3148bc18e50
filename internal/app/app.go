// Package app assembles the storage, agent, pool and task service shared by
// the server, worker and CLI binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/task-assistant/internal/config"
	"github.com/benvon/task-assistant/internal/database"
	"github.com/benvon/task-assistant/internal/queue"
	"github.com/benvon/task-assistant/internal/services/ai"
	"github.com/benvon/task-assistant/internal/services/tasks"
	"github.com/benvon/task-assistant/internal/workers"
	"go.uber.org/zap"
)

// Options controls what New wires up
type Options struct {
	// Debug enables prompt and reply previews in agent logs.
	Debug bool
	// Migrate applies pending migrations after connecting.
	Migrate bool
	// Queue connects to RabbitMQ when a URL is configured.
	Queue bool
	// QueueAttempts bounds connection attempts; RabbitMQ often starts after us.
	QueueAttempts int
}

// App holds the long-lived dependencies of one binary
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *database.DB
	Tasks   *database.TaskRepository
	Runs    *database.AnalysisRunRepository
	Agent   ai.Agent
	Pool    *workers.Pool
	Queue   *queue.RabbitMQQueue
	Service *tasks.Service
}

// New connects to storage (and the queue if asked) and builds the task
// service. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info("connected_to_database", zap.String("dialect", string(db.Dialect())))

	a := &App{
		Config: cfg,
		Logger: log,
		DB:     db,
		Tasks:  database.NewTaskRepository(db),
		Runs:   database.NewAnalysisRunRepository(db),
		Agent:  NewAgent(cfg, log, opts.Debug),
		Pool:   workers.NewPool(cfg.AnalysisWorkers, cfg.AnalysisQueueSize),
	}

	if opts.Migrate {
		if err := database.NewMigrator(db, log).Migrate(ctx); err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}

	serviceOpts := []tasks.Option{
		tasks.WithFailurePolicy(cfg.AgentFailurePolicy),
		tasks.WithMaxJobRetries(cfg.MaxJobRetries),
		tasks.WithLogger(log),
	}
	if opts.Queue && cfg.RabbitMQURL != "" {
		q, err := ConnectQueue(ctx, cfg.RabbitMQURL, opts.QueueAttempts, log)
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
		a.Queue = q
		serviceOpts = append(serviceOpts, tasks.WithQueue(q))
	}

	a.Service = tasks.NewService(a.Tasks, a.Runs, ai.NewAnalyzer(a.Agent, log), a.Pool, serviceOpts...)
	return a, nil
}

// NewAgent builds the configured provider. Without an API key, or for an
// unknown provider, it returns a DisabledAgent so analysis fails as
// unavailable instead of the binary refusing to start.
func NewAgent(cfg *config.Config, log *zap.Logger, debug bool) ai.Agent {
	registry := ai.NewProviderRegistry()
	ai.RegisterOpenAI(registry, log)

	agent, err := registry.GetProvider(cfg.AIProvider, ai.ProviderConfig{
		APIKey:    cfg.OpenAIKey,
		BaseURL:   cfg.AIBaseURL,
		Model:     cfg.AIModel,
		DebugMode: debug,
		Timeout:   cfg.AITimeout,
	})
	if err != nil {
		log.Warn("ai_provider_disabled",
			zap.String("provider", cfg.AIProvider),
			zap.Error(err),
		)
		return ai.DisabledAgent{Reason: err}
	}

	log.Info("ai_provider_initialized",
		zap.String("provider", cfg.AIProvider),
		zap.String("model", agent.Model()),
		zap.String("api_key", ai.SanitizeAPIKey(cfg.OpenAIKey)),
		zap.Duration("timeout", cfg.AITimeout),
	)
	return agent
}

const (
	initialQueueDelay = 2 * time.Second
	maxQueueDelay     = 30 * time.Second
)

// ConnectQueue dials RabbitMQ, retrying with exponential backoff up to
// attempts times (at least once).
func ConnectQueue(ctx context.Context, url string, attempts int, log *zap.Logger) (*queue.RabbitMQQueue, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, log)
		if err == nil {
			log.Info("connected_to_rabbitmq")
			return q, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := backoff(attempt)
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

func backoff(attempt int) time.Duration {
	delay := initialQueueDelay << uint(attempt)
	if delay <= 0 || delay > maxQueueDelay {
		return maxQueueDelay
	}
	return delay
}

// Close stops the pool, then closes the queue and the database.
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close queue: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
