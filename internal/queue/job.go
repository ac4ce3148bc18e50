package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeTaskAnalysis re-runs the analysis of one stored task
	JobTypeTaskAnalysis JobType = "task_analysis"
)

// DefaultMaxRetries bounds transient-failure retries for a job
const DefaultMaxRetries = 3

// Job is one unit of queued work.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      JobType   `json:"type"`
	TaskID    int64     `json:"task_id"`
	RequestID string    `json:"request_id,omitempty"`
	// NotBefore delays processing; nil means immediately.
	NotBefore *time.Time `json:"not_before,omitempty"`
	// NotAfter expires the job; nil means never.
	NotAfter   *time.Time     `json:"not_after,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a job for taskID with the default retry budget.
func NewJob(jobType JobType, taskID int64) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		TaskID:     taskID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now().UTC(),
		MaxRetries: DefaultMaxRetries,
	}
}

// ShouldProcess reports whether now falls inside the job's window.
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
