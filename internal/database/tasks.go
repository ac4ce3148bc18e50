package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/benvon/task-assistant/internal/models"
)

// ErrTaskNotFound is returned when no task has the requested ID
var ErrTaskNotFound = errors.New("task not found")

const (
	// DefaultPageSize is used when a listing does not ask for one
	DefaultPageSize = 20
	// MaxPageSize caps a single listing page
	MaxPageSize = 100
)

const taskColumns = `id, description, user_story, context, category, priority, status, created_at, updated_at`

// TaskRepository handles task database operations. Tasks are never deleted.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts task and fills in its ID and timestamps. An empty status
// defaults to Open.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}
	ts := now()

	err := r.db.queryRow(ctx, `
		INSERT INTO tasks (description, user_story, context, category, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		task.Description,
		nullString(task.UserStory),
		nullString(task.Context),
		nullLabel(task.Category),
		nullLabel(task.Priority),
		string(task.Status),
		ts,
		ts,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	task.CreatedAt = ts
	task.UpdatedAt = ts
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	row := r.db.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List returns one page of tasks matching filter, newest first, and the total
// number of matches.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.Priority != nil {
		conds = append(conds, "priority = ?")
		args = append(args, string(*filter.Priority))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.queryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	page, pageSize := NormalizePage(filter.Page, filter.PageSize)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0, pageSize)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, total, nil
}

// ListUnanalyzed returns the IDs of up to limit tasks missing a category or
// priority, oldest first.
func (r *TaskRepository) ListUnanalyzed(ctx context.Context, limit int) ([]int64, error) {
	if limit < 1 {
		limit = MaxPageSize
	}
	rows, err := r.db.query(ctx,
		`SELECT id FROM tasks WHERE category IS NULL OR priority IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unanalyzed tasks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task ids: %w", err)
	}
	return ids, nil
}

// Update writes every mutable field of task and refreshes UpdatedAt.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	ts := now()
	res, err := r.db.exec(ctx, `
		UPDATE tasks
		SET description = ?, user_story = ?, context = ?, category = ?, priority = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		task.Description,
		nullString(task.UserStory),
		nullString(task.Context),
		nullLabel(task.Category),
		nullLabel(task.Priority),
		string(task.Status),
		ts,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if err := requireRow(res, task.ID); err != nil {
		return err
	}
	task.UpdatedAt = ts
	return nil
}

// UpdateStatus changes only the status of a task and returns the updated task.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id int64, status models.TaskStatus) (*models.Task, error) {
	res, err := r.db.exec(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`, string(status), now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateAnalysis overwrites category and priority. Absent fields become NULL.
func (r *TaskRepository) UpdateAnalysis(ctx context.Context, id int64, result models.AnalysisResult) (*models.Task, error) {
	res, err := r.db.exec(ctx, `UPDATE tasks SET category = ?, priority = ?, updated_at = ? WHERE id = ?`,
		nullLabel(result.Category), nullLabel(result.Priority), now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task analysis: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// countColumns are the columns CountBy may group on
var countColumns = map[string]bool{"category": true, "priority": true, "status": true}

// CountBy counts tasks grouped by column. NULL values are reported under
// nullLabel. Results are ordered by count, then label.
func (r *TaskRepository) CountBy(ctx context.Context, column, nullLabel string) (*models.TaskStats, error) {
	if !countColumns[column] {
		return nil, fmt.Errorf("cannot group tasks by %q", column)
	}

	rows, err := r.db.query(ctx, `SELECT `+column+`, COUNT(*) FROM tasks GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by %s: %w", column, err)
	}
	defer rows.Close()

	stats := &models.TaskStats{GroupBy: column, Counts: []models.LabelCount{}}
	for rows.Next() {
		var (
			label sql.NullString
			count int
		)
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		name := label.String
		if !label.Valid || name == "" {
			name = nullLabel
		}
		stats.Counts = mergeCount(stats.Counts, name, count)
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	sort.Slice(stats.Counts, func(i, j int) bool {
		if stats.Counts[i].Count != stats.Counts[j].Count {
			return stats.Counts[i].Count > stats.Counts[j].Count
		}
		return stats.Counts[i].Label < stats.Counts[j].Label
	})
	return stats, nil
}

// mergeCount folds NULL and empty-string groups into one label
func mergeCount(counts []models.LabelCount, label string, n int) []models.LabelCount {
	for i := range counts {
		if counts[i].Label == label {
			counts[i].Count += n
			return counts
		}
	}
	return append(counts, models.LabelCount{Label: label, Count: n})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task                             models.Task
		userStory, taskContext, cat, pri sql.NullString
		status                           string
	)
	err := row.Scan(
		&task.ID,
		&task.Description,
		&userStory,
		&taskContext,
		&cat,
		&pri,
		&status,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	if userStory.Valid {
		task.UserStory = &userStory.String
	}
	if taskContext.Valid {
		task.Context = &taskContext.String
	}
	if cat.Valid {
		c := models.Category(cat.String)
		task.Category = &c
	}
	if pri.Valid {
		p := models.Priority(pri.String)
		task.Priority = &p
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

// NormalizePage applies the listing defaults and the page size cap.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullLabel[T ~string](v *T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}
