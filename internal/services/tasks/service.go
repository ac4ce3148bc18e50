package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/task-assistant/internal/config"
	"github.com/benvon/task-assistant/internal/database"
	"github.com/benvon/task-assistant/internal/logger"
	"github.com/benvon/task-assistant/internal/models"
	"github.com/benvon/task-assistant/internal/queue"
	"github.com/benvon/task-assistant/internal/services/ai"
	"github.com/benvon/task-assistant/internal/validation"
	"go.uber.org/zap"
)

// ErrQueueUnavailable is returned by EnqueueReanalysis when no job queue is configured.
var ErrQueueUnavailable = errors.New("reanalysis queue not configured")

// Analyzer classifies a submission with one agent call.
type Analyzer interface {
	Analyze(ctx context.Context, sub models.TaskSubmission) (*ai.Analysis, error)
	Model() string
}

// Runner runs fn off the caller's goroutine with bounded concurrency.
// *workers.Pool implements it.
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// CreateInput is an unvalidated task submission.
type CreateInput struct {
	Description string `json:"description"`
	UserStory   string `json:"user_story"`
	Context     string `json:"context"`
}

// AnalysisSummary tells the caller how analysis went for the task it got back.
type AnalysisSummary struct {
	RunID        string                 `json:"run_id"`
	Outcome      models.AnalysisOutcome `json:"outcome"`
	Note         string                 `json:"note,omitempty"`
	Unrecognized []string               `json:"unrecognized,omitempty"`
}

// Result is a task plus the analysis that produced its fields.
type Result struct {
	Task     *models.Task    `json:"task"`
	Analysis AnalysisSummary `json:"analysis"`
}

// ReextractResult is the outcome of re-reading a stored reply.
type ReextractResult struct {
	Run      *models.AnalysisRun `json:"run"`
	Task     *models.Task        `json:"task,omitempty"`
	Analysis AnalysisSummary     `json:"analysis"`
	Applied  bool                `json:"applied"`
}

// ListResult is one page of tasks.
type ListResult struct {
	Tasks    []*models.Task `json:"tasks"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// Service implements the task operations on top of storage and the analyzer.
type Service struct {
	tasks    database.TaskRepositoryInterface
	runs     database.AnalysisRunRepositoryInterface
	analyzer Analyzer
	pool     Runner
	queue    queue.JobQueue
	policy   config.AgentFailurePolicy
	logger   *zap.Logger

	maxJobRetries int
}

// Option configures a Service
type Option func(*Service)

// WithQueue enables asynchronous reanalysis.
func WithQueue(q queue.JobQueue) Option {
	return func(s *Service) { s.queue = q }
}

// WithFailurePolicy sets what Create does when the agent is unavailable.
func WithFailurePolicy(p config.AgentFailurePolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithMaxJobRetries sets how often a queued reanalysis may be retried
func WithMaxJobRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxJobRetries = n
		}
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a task service. Analysis runs on pool.
func NewService(
	tasks database.TaskRepositoryInterface,
	runs database.AnalysisRunRepositoryInterface,
	analyzer Analyzer,
	pool Runner,
	opts ...Option,
) *Service {
	s := &Service{
		tasks:    tasks,
		runs:     runs,
		analyzer: analyzer,
		pool:     pool,
		policy:   config.PolicyReject,
		logger:   zap.NewNop(),

		maxJobRetries: queue.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// attempt is one analysis and the run that recorded it.
type attempt struct {
	analysis *ai.Analysis
	run      *models.AnalysisRun
	err      error
}

// analyze runs the analyzer on the pool and records the run there too, so
// the attempt is stored even if the caller stops waiting. The returned error
// is a pool or storage failure; the analysis outcome is in attempt.err.
func (s *Service) analyze(ctx context.Context, sub models.TaskSubmission, trigger models.AnalysisTrigger, taskID *int64) (*attempt, error) {
	var a attempt
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		a.analysis, a.err = s.analyzer.Analyze(ctx, sub)
		run, err := s.recordRun(ctx, trigger, taskID, a.analysis, a.err)
		a.run = run
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) recordRun(ctx context.Context, trigger models.AnalysisTrigger, taskID *int64, analysis *ai.Analysis, analysisErr error) (*models.AnalysisRun, error) {
	run := &models.AnalysisRun{
		TaskID:      taskID,
		Trigger:     trigger,
		Model:       analysis.Model,
		Prompt:      analysis.Prompt.String(),
		RawResponse: analysis.Raw,
		Outcome:     analysis.Outcome,
		Category:    analysis.Result.Category,
		Priority:    analysis.Result.Priority,
		LatencyMS:   analysis.Latency.Milliseconds(),
	}
	if analysisErr != nil {
		msg := logger.SanitizeError(analysisErr)
		run.ErrorMessage = &msg
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record analysis run: %w", err)
	}
	return run, nil
}

// Create validates input, analyzes it and stores the task. Incomplete
// analysis still stores the task with the missing fields empty. An
// unavailable agent fails the call under the reject policy; the returned
// error then matches ai.ErrAgentUnavailable.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	sub, err := validation.ValidateSubmission(in.Description, in.UserStory, in.Context)
	if err != nil {
		return nil, err
	}

	a, err := s.analyze(ctx, sub, models.TriggerCreate, nil)
	if err != nil {
		return nil, err
	}

	if errors.Is(a.err, ai.ErrAgentUnavailable) && s.policy != config.PolicyPersist {
		s.logger.Warn("task_rejected",
			zap.String("run_id", a.run.ID),
			zap.String("request_id", ai.ExtractRequestID(ctx)),
			zap.String("error", logger.SanitizeError(a.err)),
		)
		return nil, a.err
	}

	task := &models.Task{
		Description: sub.Description,
		UserStory:   optional(sub.UserStory),
		Context:     optional(sub.Context),
		Status:      models.TaskStatusOpen,
	}
	task.ApplyAnalysis(a.analysis.Result)

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := s.runs.AttachTask(ctx, a.run.ID, task.ID); err != nil {
		s.logger.Warn("analysis_run_attach_failed",
			zap.String("run_id", a.run.ID),
			zap.Int64("task_id", task.ID),
			zap.Error(err),
		)
	} else {
		a.run.TaskID = &task.ID
	}

	s.logger.Info("task_created",
		zap.Int64("task_id", task.ID),
		zap.String("run_id", a.run.ID),
		zap.String("outcome", string(a.analysis.Outcome)),
		zap.String("request_id", ai.ExtractRequestID(ctx)),
	)
	return &Result{Task: task, Analysis: summarize(a.run.ID, a.analysis.Outcome, a.analysis.Result)}, nil
}

// Preview analyzes a submission without storing a task. The run is recorded
// with the dry_run trigger.
func (s *Service) Preview(ctx context.Context, in CreateInput) (*ai.Analysis, *models.AnalysisRun, error) {
	sub, err := validation.ValidateSubmission(in.Description, in.UserStory, in.Context)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.analyze(ctx, sub, models.TriggerDryRun, nil)
	if err != nil {
		return nil, nil, err
	}
	return a.analysis, a.run, a.err
}

// Reanalyze runs analysis again for a stored task and overwrites its
// category and priority, clearing fields the new reply lacks. An unavailable
// agent leaves the task untouched and is returned as an error; incomplete
// replies are not errors here.
func (s *Service) Reanalyze(ctx context.Context, id int64) (*Result, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx = ai.WithTaskID(ctx, id)
	a, err := s.analyze(ctx, task.Submission(), models.TriggerReanalyze, &task.ID)
	if err != nil {
		return nil, err
	}
	if errors.Is(a.err, ai.ErrAgentUnavailable) {
		return nil, a.err
	}

	updated, err := s.tasks.UpdateAnalysis(ctx, id, a.analysis.Result)
	if err != nil {
		return nil, err
	}

	s.logger.Info("task_reanalyzed",
		zap.Int64("task_id", id),
		zap.String("run_id", a.run.ID),
		zap.String("outcome", string(a.analysis.Outcome)),
	)
	return &Result{Task: updated, Analysis: summarize(a.run.ID, a.analysis.Outcome, a.analysis.Result)}, nil
}

// EnqueueReanalysis publishes a reanalysis job for a stored task.
func (s *Service) EnqueueReanalysis(ctx context.Context, id int64) (*queue.Job, error) {
	if s.queue == nil {
		return nil, ErrQueueUnavailable
	}
	if _, err := s.tasks.GetByID(ctx, id); err != nil {
		return nil, err
	}

	job := queue.NewJob(queue.JobTypeTaskAnalysis, id)
	job.MaxRetries = s.maxJobRetries
	job.RequestID = ai.ExtractRequestID(ctx)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue reanalysis: %w", err)
	}

	s.logger.Info("reanalysis_enqueued",
		zap.Int64("task_id", id),
		zap.String("job_id", job.ID.String()),
	)
	return job, nil
}

// Reextract runs extraction again over a stored reply without calling the
// agent and records the attempt. With apply set the result is written to the
// run's task.
func (s *Service) Reextract(ctx context.Context, runID string, apply bool) (*ReextractResult, error) {
	prev, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if prev.Outcome == models.OutcomeAgentUnavailable {
		return nil, &validation.ValidationError{Field: "run", Reason: "has no recorded response to re-extract"}
	}
	if apply && prev.TaskID == nil {
		return nil, &validation.ValidationError{Field: "apply", Reason: "run is not attached to a task"}
	}

	result, extractErr := ai.Extract(prev.RawResponse)
	run := &models.AnalysisRun{
		TaskID:      prev.TaskID,
		Trigger:     models.TriggerReextract,
		Model:       prev.Model,
		Prompt:      prev.Prompt,
		RawResponse: prev.RawResponse,
		Outcome:     ai.OutcomeOf(extractErr),
		Category:    result.Category,
		Priority:    result.Priority,
	}
	if extractErr != nil {
		msg := logger.SanitizeError(extractErr)
		run.ErrorMessage = &msg
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record analysis run: %w", err)
	}

	out := &ReextractResult{
		Run:      run,
		Analysis: summarize(run.ID, run.Outcome, result),
	}
	if apply {
		task, err := s.tasks.UpdateAnalysis(ctx, *prev.TaskID, result)
		if err != nil {
			return nil, err
		}
		out.Task = task
		out.Applied = true
	}

	s.logger.Info("analysis_reextracted",
		zap.String("source_run_id", prev.ID),
		zap.String("run_id", run.ID),
		zap.String("outcome", string(run.Outcome)),
		zap.Bool("applied", out.Applied),
	)
	return out, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, id int64) (*models.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// List returns a page of tasks matching filter.
func (s *Service) List(ctx context.Context, filter models.TaskFilter) (*ListResult, error) {
	filter.Page, filter.PageSize = database.NormalizePage(filter.Page, filter.PageSize)
	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListResult{Tasks: tasks, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// Update applies a partial update. Category and priority set here are
// manual overrides; they must be known labels.
func (s *Service) Update(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	patch, err := validation.ValidatePatch(patch)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(task)
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("task_updated", zap.Int64("task_id", id))
	return task, nil
}

// UpdateStatus changes a task's status.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*models.Task, error) {
	st, err := validation.ValidateTaskStatus(status)
	if err != nil {
		return nil, err
	}
	return s.tasks.UpdateStatus(ctx, id, st)
}

// Runs lists the recorded analysis runs of a task, newest first.
func (s *Service) Runs(ctx context.Context, taskID int64) ([]*models.AnalysisRun, error) {
	if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
		return nil, err
	}
	return s.runs.ListByTask(ctx, taskID)
}

// Run returns one analysis run.
func (s *Service) Run(ctx context.Context, id string) (*models.AnalysisRun, error) {
	return s.runs.GetByID(ctx, id)
}

// statsColumns maps a stats grouping to the label used for NULL values
var statsColumns = map[string]string{
	"category": models.UncategorizedLabel,
	"priority": models.UnsetLabel,
	"status":   models.UnsetLabel,
}

// Stats counts tasks by category, priority or status.
func (s *Service) Stats(ctx context.Context, groupBy string) (*models.TaskStats, error) {
	nullLabel, ok := statsColumns[groupBy]
	if !ok {
		return nil, &validation.ValidationError{Field: "group_by", Reason: "must be category, priority or status"}
	}
	return s.tasks.CountBy(ctx, groupBy, nullLabel)
}

// AgentPerformance summarizes the outcomes of agent calls.
func (s *Service) AgentPerformance(ctx context.Context) (*models.AgentPerformance, error) {
	return s.runs.PerformanceStats(ctx)
}

func summarize(runID string, outcome models.AnalysisOutcome, result models.AnalysisResult) AnalysisSummary {
	return AnalysisSummary{
		RunID:        runID,
		Outcome:      outcome,
		Note:         note(outcome, result),
		Unrecognized: result.Unrecognized,
	}
}

func note(outcome models.AnalysisOutcome, result models.AnalysisResult) string {
	var parts []string
	switch outcome {
	case models.OutcomePartial:
		parts = append(parts, "Analysis incomplete: no "+strings.Join(result.MissingFields(), " or ")+" in the reply, so it was left empty.")
	case models.OutcomeMalformed:
		parts = append(parts, "Analysis failed: the reply could not be read, so category and priority were left empty.")
	case models.OutcomeAgentUnavailable:
		parts = append(parts, "Analysis unavailable: category and priority were left empty. Reanalyze the task to retry.")
	}
	if len(result.Unrecognized) > 0 {
		parts = append(parts, "Unrecognized "+strings.Join(result.Unrecognized, " and ")+" kept as returned.")
	}
	return strings.Join(parts, " ")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
