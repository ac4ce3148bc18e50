package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/config"
	"github.com/benvon/task-assistant/internal/logger"
	"github.com/benvon/task-assistant/internal/queue"
	"github.com/benvon/task-assistant/internal/telemetry"
	"github.com/benvon/task-assistant/internal/workers"
	"go.uber.org/zap"
)

const serviceName = "task-assistant-worker"

var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Int("max_job_retries", cfg.MaxJobRetries),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.OTELEnabled, serviceName, version, cfg.OTELEndpoint, zapLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	a, err := app.New(ctx, cfg, zapLogger, app.Options{
		Debug:         debugMode,
		Queue:         true,
		QueueAttempts: 10,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_initialize", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			zapLogger.Warn("failed_to_close_resources", zap.Error(err))
		}
	}()

	gc := queue.NewGarbageCollector(a.Queue, cfg.DLQInterval, cfg.DLQRetention, zapLogger)
	go func() {
		if err := gc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped", zap.Error(err))
		}
	}()

	msgs, errs, err := a.Queue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	reanalyze := func(ctx context.Context, taskID int64) error {
		_, err := a.Service.Reanalyze(ctx, taskID)
		return err
	}
	analyzer := workers.NewTaskAnalyzer(reanalyze, a.Queue, zapLogger)

	zapLogger.Info("worker_started")
	analyzer.Run(ctx, msgs, errs)
	zapLogger.Info("worker_stopped")
}
