package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/task-assistant/internal/queue"
	"go.uber.org/zap"
)

const (
	// DefaultBackfillSpacing staggers backfill jobs so the agent is not hit
	// with a burst.
	DefaultBackfillSpacing = 2 * time.Second

	// backfillWindow is how long a backfill job stays eligible after its
	// scheduled time before the consumer drops it.
	backfillWindow = 24 * time.Hour
)

// IncompleteTaskLister finds tasks missing a category or priority;
// *database.TaskRepository satisfies it.
type IncompleteTaskLister interface {
	ListUnanalyzed(ctx context.Context, limit int) ([]int64, error)
}

// Reprocessor schedules reanalysis for tasks whose analysis never completed
type Reprocessor struct {
	lister     IncompleteTaskLister
	jobQueue   queue.JobQueue
	spacing    time.Duration
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewReprocessor creates a new reprocessor. A spacing of zero uses
// DefaultBackfillSpacing.
func NewReprocessor(lister IncompleteTaskLister, jobQueue queue.JobQueue, spacing time.Duration, log *zap.Logger) *Reprocessor {
	if spacing <= 0 {
		spacing = DefaultBackfillSpacing
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reprocessor{
		lister:     lister,
		jobQueue:   jobQueue,
		spacing:    spacing,
		maxRetries: queue.DefaultMaxRetries,
		logger:     log,
		now:        time.Now,
	}
}

// ScheduleIncomplete enqueues one reanalysis job per incomplete task, up to
// limit, each spaced after the previous one. It returns how many were
// enqueued; enqueue failures are logged and skipped.
func (r *Reprocessor) ScheduleIncomplete(ctx context.Context, limit int) (int, error) {
	ids, err := r.lister.ListUnanalyzed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list incomplete tasks: %w", err)
	}

	start := r.now().UTC()
	scheduled := 0
	var firstErr error
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return scheduled, err
		}

		notBefore := start.Add(time.Duration(i) * r.spacing)
		if err := r.createReprocessingJob(ctx, id, notBefore); err != nil {
			r.logger.Warn("failed_to_schedule_reprocessing_job",
				zap.Int64("task_id", id),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		scheduled++
	}

	r.logger.Info("scheduled_reprocessing_jobs",
		zap.Int("task_count", len(ids)),
		zap.Int("scheduled", scheduled),
		zap.Duration("spacing", r.spacing),
	)

	if firstErr != nil {
		return scheduled, fmt.Errorf("%d of %d jobs not scheduled: %w", len(ids)-scheduled, len(ids), firstErr)
	}
	return scheduled, nil
}

// createReprocessingJob enqueues a reanalysis job for taskID
func (r *Reprocessor) createReprocessingJob(ctx context.Context, taskID int64, notBefore time.Time) error {
	job := queue.NewJob(queue.JobTypeTaskAnalysis, taskID)
	job.MaxRetries = r.maxRetries
	job.Metadata["source"] = "backfill"
	job.NotBefore = &notBefore

	notAfter := notBefore.Add(backfillWindow)
	job.NotAfter = &notAfter

	if err := r.jobQueue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue reprocessing job: %w", err)
	}
	return nil
}
