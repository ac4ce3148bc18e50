package database

import (
	"context"

	"github.com/benvon/task-assistant/internal/models"
)

// TaskRepositoryInterface defines the interface for task repository operations
// This interface enables better testability by allowing mock implementations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error)
	Update(ctx context.Context, task *models.Task) error
	UpdateStatus(ctx context.Context, id int64, status models.TaskStatus) (*models.Task, error)
	UpdateAnalysis(ctx context.Context, id int64, result models.AnalysisResult) (*models.Task, error)
	CountBy(ctx context.Context, column, nullLabel string) (*models.TaskStats, error)
}

// AnalysisRunRepositoryInterface defines the interface for analysis run repository operations
type AnalysisRunRepositoryInterface interface {
	Create(ctx context.Context, run *models.AnalysisRun) error
	AttachTask(ctx context.Context, runID string, taskID int64) error
	GetByID(ctx context.Context, id string) (*models.AnalysisRun, error)
	ListByTask(ctx context.Context, taskID int64) ([]*models.AnalysisRun, error)
	PerformanceStats(ctx context.Context) (*models.AgentPerformance, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TaskRepositoryInterface        = (*TaskRepository)(nil)
	_ AnalysisRunRepositoryInterface = (*AnalysisRunRepository)(nil)
)
