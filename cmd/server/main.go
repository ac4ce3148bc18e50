package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/config"
	"github.com/benvon/task-assistant/internal/handlers"
	"github.com/benvon/task-assistant/internal/logger"
	"github.com/benvon/task-assistant/internal/middleware"
	"github.com/benvon/task-assistant/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "task-assistant-api"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_provider", cfg.AIProvider),
		zap.Int("analysis_workers", cfg.AnalysisWorkers),
		zap.String("agent_failure_policy", string(cfg.AgentFailurePolicy)),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx := context.Background()
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
		Migrate:       true,
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

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid_redis_url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}

	router, err := newRouter(cfg, a, redisClient, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	// The agent timeout must fit inside the request timeout, which must fit
	// inside the server's write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout(cfg) + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// requestTimeout leaves room after the agent call to record the run.
func requestTimeout(cfg *config.Config) time.Duration {
	return cfg.AITimeout + 10*time.Second
}

// newRouter mounts the middleware chain and every handler. gorilla/mux runs
// middleware in registration order, so the first registered is outermost.
func newRouter(cfg *config.Config, a *app.App, redisClient *redis.Client, zapLogger *zap.Logger) (*mux.Router, error) {
	r := mux.NewRouter()

	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.CORSOrigins(), zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, zapLogger))
	r.Use(middleware.ContentType(zapLogger))
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Timeout(requestTimeout(cfg)))
	r.Use(middleware.ErrorHandler(zapLogger))

	healthOpts := []handlers.HealthOption{handlers.WithVersion(version)}
	if redisClient != nil {
		healthOpts = append(healthOpts, handlers.WithRedis(redisClient))
	}
	if a.Queue != nil {
		healthOpts = append(healthOpts, handlers.WithQueue(a.Queue))
	}
	handlers.NewHealthChecker(a.DB, healthOpts...).RegisterRoutes(r)
	handlers.NewOpenAPIHandler(afero.NewOsFs(), cfg.OpenAPIPath).RegisterRoutes(r)

	rateLimit, err := middleware.RateLimit(cfg.RateLimit, redisClient, zapLogger)
	if err != nil {
		return nil, err
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimit)
	handlers.NewTaskHandler(a.Service, zapLogger).RegisterRoutes(api)
	handlers.NewStatsHandler(a.Service, zapLogger).RegisterRoutes(api)

	// Preflight requests are answered by CORS; this keeps mux from 405ing them.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, nil
}
