package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/task-assistant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID_Monotonic(t *testing.T) {
	t.Parallel()

	at := time.Now()
	prev := NewRunID(at)
	for i := 0; i < 100; i++ {
		next := NewRunID(at)
		assert.Len(t, next, 26)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestAnalysisRunRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskRepository(db)
	runs := NewAnalysisRunRepository(db)
	ctx := context.Background()

	task := createTask(t, tasks, "Fix login", nil, nil)

	run := &models.AnalysisRun{
		TaskID:      &task.ID,
		Trigger:     models.TriggerCreate,
		Model:       "gpt-4o-mini",
		Prompt:      "system: x\n\nuser: y",
		RawResponse: `{"category": "Bug Fix"}`,
		Outcome:     models.OutcomePartial,
		Category:    ptr(models.CategoryBugFix),
		LatencyMS:   420,
	}
	require.NoError(t, runs.Create(ctx, run))
	assert.Len(t, run.ID, 26)

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, *got.TaskID)
	assert.Equal(t, models.OutcomePartial, got.Outcome)
	assert.Equal(t, models.TriggerCreate, got.Trigger)
	assert.Equal(t, run.RawResponse, got.RawResponse)
	assert.Equal(t, models.CategoryBugFix, *got.Category)
	assert.Nil(t, got.Priority)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, int64(420), got.LatencyMS)

	_, err = runs.GetByID(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestAnalysisRunRepository_OrphanRunAndAttach(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskRepository(db)
	runs := NewAnalysisRunRepository(db)
	ctx := context.Background()

	run := &models.AnalysisRun{
		Trigger:      models.TriggerCreate,
		Prompt:       "p",
		Outcome:      models.OutcomeAgentUnavailable,
		ErrorMessage: ptr("connection refused"),
	}
	require.NoError(t, runs.Create(ctx, run))

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TaskID)
	assert.Equal(t, "connection refused", *got.ErrorMessage)

	task := createTask(t, tasks, "Stored anyway", nil, nil)
	require.NoError(t, runs.AttachTask(ctx, run.ID, task.ID))

	list, err := runs.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, run.ID, list[0].ID)

	assert.True(t, errors.Is(runs.AttachTask(ctx, "missing", task.ID), ErrRunNotFound))
}

func TestAnalysisRunRepository_ListByTaskNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskRepository(db)
	runs := NewAnalysisRunRepository(db)
	ctx := context.Background()

	task := createTask(t, tasks, "Add search", nil, nil)
	var ids []string
	for _, outcome := range []models.AnalysisOutcome{models.OutcomeMalformed, models.OutcomeComplete} {
		run := &models.AnalysisRun{TaskID: &task.ID, Trigger: models.TriggerReanalyze, Prompt: "p", Outcome: outcome}
		require.NoError(t, runs.Create(ctx, run))
		ids = append(ids, run.ID)
	}

	list, err := runs.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[1], list[0].ID)
	assert.Equal(t, ids[0], list[1].ID)

	empty, err := runs.ListByTask(ctx, 12345)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAnalysisRunRepository_PerformanceStats(t *testing.T) {
	db := setupTestDB(t)
	runs := NewAnalysisRunRepository(db)
	ctx := context.Background()

	empty, err := runs.PerformanceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalRuns)
	assert.Zero(t, empty.SuccessRate)

	for _, r := range []struct {
		trigger models.AnalysisTrigger
		outcome models.AnalysisOutcome
		latency int64
	}{
		{models.TriggerCreate, models.OutcomeComplete, 100},
		{models.TriggerCreate, models.OutcomeComplete, 300},
		{models.TriggerReanalyze, models.OutcomeMalformed, 200},
		{models.TriggerCreate, models.OutcomeAgentUnavailable, 400},
		{models.TriggerReextract, models.OutcomeComplete, 0},
	} {
		require.NoError(t, runs.Create(ctx, &models.AnalysisRun{
			Trigger: r.trigger, Prompt: "p", Outcome: r.outcome, LatencyMS: r.latency,
		}))
	}

	perf, err := runs.PerformanceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, perf.TotalRuns)
	assert.Equal(t, 2, perf.Outcomes[models.OutcomeComplete])
	assert.Equal(t, 1, perf.Outcomes[models.OutcomeMalformed])
	assert.Equal(t, 1, perf.Outcomes[models.OutcomeAgentUnavailable])
	assert.Equal(t, 0, perf.Outcomes[models.OutcomePartial])
	assert.InDelta(t, 250.0, perf.AverageLatencyMS, 0.001)
	assert.InDelta(t, 0.5, perf.SuccessRate, 0.001)
}
