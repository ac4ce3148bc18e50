package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeTaskAnalysis, 42)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeTaskAnalysis {
		t.Errorf("Expected job type %s, got %s", JobTypeTaskAnalysis, job.Type)
	}
	if job.TaskID != 42 {
		t.Errorf("Expected task ID 42, got %d", job.TaskID)
	}
	if job.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}
	if job.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no time constraints", want: true},
		{name: "not before in past", notBefore: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not before in future", notBefore: timePtr(now.Add(time.Hour)), want: false},
		{name: "not after in past", notAfter: timePtr(now.Add(-time.Hour)), want: false},
		{name: "not after in future", notAfter: timePtr(now.Add(time.Hour)), want: true},
		{
			name:      "within window",
			notBefore: timePtr(now.Add(-time.Hour)),
			notAfter:  timePtr(now.Add(time.Hour)),
			want:      true,
		},
		{
			name:      "window not yet open",
			notBefore: timePtr(now.Add(time.Hour)),
			notAfter:  timePtr(now.Add(2 * time.Hour)),
			want:      false,
		},
		{
			name:      "window closed",
			notBefore: timePtr(now.Add(-2 * time.Hour)),
			notAfter:  timePtr(now.Add(-time.Hour)),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := NewJob(JobTypeTaskAnalysis, 1)
			job.NotBefore = tt.notBefore
			job.NotAfter = tt.notAfter
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name     string
		notAfter *time.Time
		want     bool
	}{
		{name: "no expiration", want: false},
		{name: "expired", notAfter: timePtr(now.Add(-time.Minute)), want: true},
		{name: "not yet expired", notAfter: timePtr(now.Add(time.Minute)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{NotAfter: tt.notAfter}
			if got := job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeTaskAnalysis, 7)
	job.MaxRetries = 2

	if !job.CanRetry() {
		t.Fatal("fresh job should be retryable")
	}
	job.IncrementRetry()
	if !job.CanRetry() {
		t.Error("job with one retry of two should still be retryable")
	}
	job.IncrementRetry()
	if job.CanRetry() {
		t.Error("job at max retries should not be retryable")
	}
	if job.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", job.RetryCount)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
