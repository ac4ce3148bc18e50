package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/benvon/task-assistant/internal/database"
	"github.com/benvon/task-assistant/internal/models"
	"github.com/benvon/task-assistant/internal/queue"
	"github.com/benvon/task-assistant/internal/services/tasks"
	"github.com/benvon/task-assistant/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TaskService is the subset of *tasks.Service the HTTP layer uses
type TaskService interface {
	Create(ctx context.Context, in tasks.CreateInput) (*tasks.Result, error)
	Get(ctx context.Context, id int64) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) (*tasks.ListResult, error)
	Update(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*models.Task, error)
	Reanalyze(ctx context.Context, id int64) (*tasks.Result, error)
	EnqueueReanalysis(ctx context.Context, id int64) (*queue.Job, error)
	Runs(ctx context.Context, taskID int64) ([]*models.AnalysisRun, error)
	Run(ctx context.Context, id string) (*models.AnalysisRun, error)
	Reextract(ctx context.Context, runID string, apply bool) (*tasks.ReextractResult, error)
}

var _ TaskService = (*tasks.Service)(nil)

// TaskHandler handles task-related requests
type TaskHandler struct {
	service TaskService
	logger  *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(service TaskService, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskHandler{service: service, logger: log}
}

// RegisterRoutes registers task and analysis run routes on the /api/v1 router
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks", h.ListTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", h.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", h.UpdateTask).Methods(http.MethodPatch)
	r.HandleFunc("/tasks/{id}/status", h.UpdateTaskStatus).Methods(http.MethodPut)
	r.HandleFunc("/tasks/{id}/reanalyze", h.ReanalyzeTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/analysis-runs", h.ListTaskRuns).Methods(http.MethodGet)
	r.HandleFunc("/analysis-runs/{id}", h.GetRun).Methods(http.MethodGet)
	r.HandleFunc("/analysis-runs/{id}/reextract", h.ReextractRun).Methods(http.MethodPost)
}

// CreateTaskRequest represents a create task request
type CreateTaskRequest struct {
	Description string `json:"description"`
	UserStory   string `json:"user_story,omitempty"`
	Context     string `json:"context,omitempty"`
}

// UpdateStatusRequest represents a status change
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ReanalysisQueuedResponse is returned when reanalysis runs in the background
type ReanalysisQueuedResponse struct {
	JobID  string `json:"job_id"`
	TaskID int64  `json:"task_id"`
}

// CreateTask validates, analyzes and stores a task
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Create(requestContext(r), tasks.CreateInput(req))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// ListTasks lists tasks with optional filters and pagination
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTaskFilter(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// parseTaskFilter reads status, category, priority, page and page_size.
// Category and priority filters accept stored labels outside the known set.
func parseTaskFilter(r *http.Request) (models.TaskFilter, error) {
	q := r.URL.Query()
	var filter models.TaskFilter

	if s := q.Get("status"); s != "" {
		status, err := validation.ValidateTaskStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if c := q.Get("category"); c != "" {
		category, _ := models.ParseCategory(c)
		filter.Category = &category
	}
	if p := q.Get("priority"); p != "" {
		priority, _ := models.ParsePriority(p)
		filter.Priority = &priority
	}

	var err error
	if filter.Page, err = queryInt(q.Get("page"), "page", 1, 0); err != nil {
		return filter, err
	}
	if filter.PageSize, err = queryInt(q.Get("page_size"), "page_size", 1, database.MaxPageSize); err != nil {
		return filter, err
	}
	return filter, nil
}

// queryInt parses an optional integer within [lo, hi]; hi 0 means unbounded.
func queryInt(raw, field string, lo, hi int) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		reason := "must be an integer of at least " + strconv.Itoa(lo)
		if hi > 0 {
			reason = "must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi)
		}
		return 0, &validation.ValidationError{Field: field, Reason: reason}
	}
	return n, nil
}

// GetTask returns one task
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var patch models.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	task, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTaskStatus changes only the status
func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	task, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// ReanalyzeTask re-runs analysis now, or queues it with ?async=true
func (h *TaskHandler) ReanalyzeTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		job, err := h.service.EnqueueReanalysis(requestContext(r), id)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		respondJSON(w, http.StatusAccepted, ReanalysisQueuedResponse{JobID: job.ID.String(), TaskID: id})
		return
	}

	result, err := h.service.Reanalyze(requestContext(r), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListTaskRuns lists a task's analysis history, newest first
func (h *TaskHandler) ListTaskRuns(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	runs, err := h.service.Runs(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if runs == nil {
		runs = []*models.AnalysisRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun returns one analysis run
func (h *TaskHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Run(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ReextractRun re-reads a stored reply; ?apply=true writes the result to the task
func (h *TaskHandler) ReextractRun(w http.ResponseWriter, r *http.Request) {
	apply, _ := strconv.ParseBool(r.URL.Query().Get("apply"))

	result, err := h.service.Reextract(r.Context(), mux.Vars(r)["id"], apply)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
