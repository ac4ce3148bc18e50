package ai

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/task-assistant/internal/logger"
	"github.com/benvon/task-assistant/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/benvon/task-assistant/internal/services/ai"

// Analysis is everything one analyze call produced. Raw is empty when the
// agent was unavailable.
type Analysis struct {
	Prompt  Prompt
	Raw     string
	Result  models.AnalysisResult
	Outcome models.AnalysisOutcome
	Model   string
	Latency time.Duration
}

// Analyzer runs prompt building, the agent call and extraction in order.
type Analyzer struct {
	agent  Agent
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAnalyzer creates an analyzer around agent.
func NewAnalyzer(agent Agent, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		agent:  agent,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
}

// Model names the model behind the analyzer's agent.
func (a *Analyzer) Model() string { return a.agent.Model() }

// Analyze classifies one submission with a single agent call and no retry.
// The returned Analysis is always non-nil so callers can record the attempt;
// the error is an *AgentUnavailableError, *MalformedResponseError or
// *PartialResponseError.
func (a *Analyzer) Analyze(ctx context.Context, sub models.TaskSubmission) (*Analysis, error) {
	ctx, span := a.tracer.Start(ctx, "ai.analyze",
		trace.WithAttributes(attribute.String("ai.model", a.agent.Model())))
	defer span.End()

	analysis := &Analysis{
		Prompt: BuildPrompt(sub),
		Model:  a.agent.Model(),
	}

	start := time.Now()
	raw, err := a.agent.Invoke(ctx, analysis.Prompt)
	analysis.Latency = time.Since(start)
	if err != nil {
		var unavailable *AgentUnavailableError
		if !errors.As(err, &unavailable) {
			err = &AgentUnavailableError{Err: err}
		}
		analysis.Outcome = models.OutcomeAgentUnavailable
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent unavailable")
		span.SetAttributes(attribute.String("ai.outcome", string(analysis.Outcome)))
		a.logger.Warn("agent_unavailable",
			zap.String("model", analysis.Model),
			zap.String("task_id", ExtractTaskID(ctx)),
			zap.String("request_id", ExtractRequestID(ctx)),
			zap.Bool("rate_limited", IsRateLimitError(err)),
			zap.Bool("quota_exceeded", IsQuotaError(err)),
			zap.Int64("latency_ms", analysis.Latency.Milliseconds()),
			zap.String("error", logger.SanitizeError(err)),
		)
		return analysis, err
	}

	analysis.Raw = raw
	analysis.Result, err = Extract(raw)
	analysis.Outcome = OutcomeOf(err)
	span.SetAttributes(
		attribute.String("ai.outcome", string(analysis.Outcome)),
		attribute.Int("ai.response_length", len(raw)),
		attribute.StringSlice("ai.unrecognized", analysis.Result.Unrecognized),
	)

	fields := []zap.Field{
		zap.String("model", analysis.Model),
		zap.String("outcome", string(analysis.Outcome)),
		zap.String("task_id", ExtractTaskID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
		zap.Int64("latency_ms", analysis.Latency.Milliseconds()),
	}
	if len(analysis.Result.Unrecognized) > 0 {
		fields = append(fields, zap.Strings("unrecognized", analysis.Result.Unrecognized))
	}
	if err != nil {
		fields = append(fields,
			zap.String("error", logger.SanitizeError(err)),
			zap.String("response_preview", SanitizeResponse(raw, false)),
		)
		a.logger.Warn("analysis_incomplete", fields...)
		return analysis, err
	}
	a.logger.Info("analysis_complete", fields...)
	return analysis, nil
}
