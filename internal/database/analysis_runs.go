package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/task-assistant/internal/models"
	"github.com/oklog/ulid/v2"
)

// ErrRunNotFound is returned when no analysis run has the requested ID
var ErrRunNotFound = errors.New("analysis run not found")

const runColumns = `id, task_id, triggered_by, model, prompt, raw_response, outcome, category, priority, error_message, latency_ms, created_at`

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a time-ordered ULID string
func NewRunID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AnalysisRunRepository records every analysis attempt, including the ones
// that never produced a task.
type AnalysisRunRepository struct {
	db *DB
}

// NewAnalysisRunRepository creates a new analysis run repository
func NewAnalysisRunRepository(db *DB) *AnalysisRunRepository {
	return &AnalysisRunRepository{db: db}
}

// Create inserts run, assigning an ID and CreatedAt when they are unset.
func (r *AnalysisRunRepository) Create(ctx context.Context, run *models.AnalysisRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now()
	}
	if run.ID == "" {
		run.ID = NewRunID(run.CreatedAt)
	}

	var taskID sql.NullInt64
	if run.TaskID != nil {
		taskID = sql.NullInt64{Int64: *run.TaskID, Valid: true}
	}

	_, err := r.db.exec(ctx, `
		INSERT INTO analysis_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		taskID,
		string(run.Trigger),
		run.Model,
		run.Prompt,
		run.RawResponse,
		string(run.Outcome),
		nullLabel(run.Category),
		nullLabel(run.Priority),
		nullString(run.ErrorMessage),
		run.LatencyMS,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis run: %w", err)
	}
	return nil
}

// AttachTask links a run recorded before its task existed.
func (r *AnalysisRunRepository) AttachTask(ctx context.Context, runID string, taskID int64) error {
	res, err := r.db.exec(ctx, `UPDATE analysis_runs SET task_id = ? WHERE id = ?`, taskID, runID)
	if err != nil {
		return fmt.Errorf("failed to attach analysis run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetByID retrieves an analysis run by ID
func (r *AnalysisRunRepository) GetByID(ctx context.Context, id string) (*models.AnalysisRun, error) {
	run, err := scanRun(r.db.queryRow(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis run: %w", err)
	}
	return run, nil
}

// ListByTask returns a task's runs, newest first.
func (r *AnalysisRunRepository) ListByTask(ctx context.Context, taskID int64) ([]*models.AnalysisRun, error) {
	rows, err := r.db.query(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE task_id = ? ORDER BY id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis runs: %w", err)
	}
	return runs, nil
}

// PerformanceStats summarizes runs that called the agent. Re-extractions and
// dry runs are left out because they did not cost an agent call or were
// never stored against a task.
func (r *AnalysisRunRepository) PerformanceStats(ctx context.Context) (*models.AgentPerformance, error) {
	rows, err := r.db.query(ctx, `
		SELECT outcome, COUNT(*), COALESCE(SUM(latency_ms), 0)
		FROM analysis_runs
		WHERE triggered_by IN (?, ?)
		GROUP BY outcome
	`, string(models.TriggerCreate), string(models.TriggerReanalyze))
	if err != nil {
		return nil, fmt.Errorf("failed to query agent performance: %w", err)
	}
	defer rows.Close()

	perf := &models.AgentPerformance{Outcomes: make(map[models.AnalysisOutcome]int, len(models.AnalysisOutcomes))}
	for _, o := range models.AnalysisOutcomes {
		perf.Outcomes[o] = 0
	}

	var totalLatency int64
	for rows.Next() {
		var (
			outcome string
			count   int
			latency int64
		)
		if err := rows.Scan(&outcome, &count, &latency); err != nil {
			return nil, fmt.Errorf("failed to scan agent performance: %w", err)
		}
		perf.Outcomes[models.AnalysisOutcome(outcome)] += count
		perf.TotalRuns += count
		totalLatency += latency
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent performance: %w", err)
	}

	if perf.TotalRuns > 0 {
		perf.AverageLatencyMS = float64(totalLatency) / float64(perf.TotalRuns)
		perf.SuccessRate = float64(perf.Outcomes[models.OutcomeComplete]) / float64(perf.TotalRuns)
	}
	return perf, nil
}

func scanRun(row rowScanner) (*models.AnalysisRun, error) {
	var (
		run              models.AnalysisRun
		taskID           sql.NullInt64
		trigger, outcome string
		cat, pri, errMsg sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&taskID,
		&trigger,
		&run.Model,
		&run.Prompt,
		&run.RawResponse,
		&outcome,
		&cat,
		&pri,
		&errMsg,
		&run.LatencyMS,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Trigger = models.AnalysisTrigger(trigger)
	run.Outcome = models.AnalysisOutcome(outcome)
	if taskID.Valid {
		run.TaskID = &taskID.Int64
	}
	if cat.Valid {
		c := models.Category(cat.String)
		run.Category = &c
	}
	if pri.Valid {
		p := models.Priority(pri.String)
		run.Priority = &p
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}
