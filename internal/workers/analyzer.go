package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/task-assistant/internal/database"
	"github.com/benvon/task-assistant/internal/queue"
	"github.com/benvon/task-assistant/internal/services/ai"
	"go.uber.org/zap"
)

// ReanalyzeFunc re-runs analysis for one stored task. Incomplete replies are
// not errors; an unavailable agent is.
type ReanalyzeFunc func(ctx context.Context, taskID int64) error

// TaskAnalyzer processes task analysis jobs from the queue
type TaskAnalyzer struct {
	reanalyze ReanalyzeFunc
	jobQueue  queue.JobQueue // for re-enqueueing delayed retries
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskAnalyzer creates a new task analyzer
func NewTaskAnalyzer(reanalyze ReanalyzeFunc, jobQueue queue.JobQueue, log *zap.Logger) *TaskAnalyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskAnalyzer{
		reanalyze: reanalyze,
		jobQueue:  jobQueue,
		logger:    log,
		now:       time.Now,
	}
}

// Run processes messages until ctx ends or msgs closes. Queue errors are
// logged and do not stop the loop.
func (a *TaskAnalyzer) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				a.logger.Info("message_channel_closed")
				return
			}
			if err := a.ProcessJob(ctx, msg); err != nil {
				a.logger.Error("job_failed",
					zap.Error(err),
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
				)
			}
		}
	}
}

// ProcessJob processes a job based on its type and settles the message.
func (a *TaskAnalyzer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if job.RequestID != "" {
		ctx = ai.WithRequestID(ctx, job.RequestID)
	}

	switch job.Type {
	case queue.JobTypeTaskAnalysis:
		err := a.reanalyze(ctx, job.TaskID)
		switch {
		case err == nil:
			if ackErr := msg.Ack(); ackErr != nil {
				return fmt.Errorf("failed to ack job: %w", ackErr)
			}
			a.logger.Info("job_completed",
				zap.String("job_id", job.ID.String()),
				zap.Int64("task_id", job.TaskID),
				zap.Int("attempt", job.RetryCount+1),
			)
			return nil
		case errors.Is(err, database.ErrTaskNotFound):
			if nackErr := msg.Nack(false); nackErr != nil {
				a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
			}
			return fmt.Errorf("task analysis: %w", err)
		default:
			return a.handleJobError(ctx, msg, job, err)
		}
	default:
		if nackErr := msg.Nack(false); nackErr != nil {
			a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError schedules a delayed retry or dead-letters the job once its
// retries are spent. Redelivery through requeue would lose the retry count,
// so retries are published as new messages carrying it.
func (a *TaskAnalyzer) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	reason := "transient"
	switch {
	case ai.IsQuotaError(err):
		reason = "quota_exceeded"
	case ai.IsRateLimitError(err):
		reason = "rate_limited"
	case errors.Is(err, ErrPoolBusy):
		reason = "pool_busy"
	}

	if !job.CanRetry() || a.jobQueue == nil {
		a.logger.Warn("job_dead_lettered",
			zap.String("job_id", job.ID.String()),
			zap.Int64("task_id", job.TaskID),
			zap.String("reason", reason),
			zap.Int("attempts", job.RetryCount+1),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			return fmt.Errorf("failed to dead-letter job after %w: %v", err, nackErr)
		}
		return fmt.Errorf("task analysis failed after %d attempt(s): %w", job.RetryCount+1, err)
	}

	delay := ai.GetRetryDelay(err, job.RetryCount)
	notBefore := a.now().Add(delay)
	retry := *job
	retry.NotBefore = &notBefore
	retry.IncrementRetry()

	if enqueueErr := a.jobQueue.Enqueue(ctx, &retry); enqueueErr != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue job %s: %w", job.ID, enqueueErr)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		a.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
	}

	a.logger.Warn("job_retry_scheduled",
		zap.String("job_id", job.ID.String()),
		zap.Int64("task_id", job.TaskID),
		zap.String("reason", reason),
		zap.Int("attempt", retry.RetryCount+1),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	return nil
}
