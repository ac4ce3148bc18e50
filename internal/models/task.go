package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Category is the kind of work a task describes.
// Values outside the known set are kept verbatim; IsKnown reports which is which.
type Category string

const (
	CategoryBugFix         Category = "Bug Fix"
	CategoryFeatureRequest Category = "Feature Request"
	CategoryDocumentation  Category = "Documentation"
	CategoryResearch       Category = "Research"
	CategoryTesting        Category = "Testing"
	CategoryChore          Category = "Chore"
)

// Categories lists the known categories in prompt order.
var Categories = []Category{
	CategoryBugFix,
	CategoryFeatureRequest,
	CategoryDocumentation,
	CategoryResearch,
	CategoryTesting,
	CategoryChore,
}

// IsKnown reports whether c is one of the known categories.
func (c Category) IsKnown() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists the known priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// IsKnown reports whether p is one of the known priorities.
func (p Priority) IsKnown() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "Open"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusDone       TaskStatus = "Done"
)

// TaskStatuses lists every valid status.
var TaskStatuses = []TaskStatus{TaskStatusOpen, TaskStatusInProgress, TaskStatusDone}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	for _, known := range TaskStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TaskSubmission is the user input for a new task.
type TaskSubmission struct {
	Description string `json:"description" validate:"required,notblank,min=5,max=10000"`
	UserStory   string `json:"user_story,omitempty" validate:"max=10000"`
	Context     string `json:"context,omitempty" validate:"max=10000"`
}

// Task is a persisted task. Category and Priority are nil when analysis
// did not produce them.
type Task struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	UserStory   *string    `json:"user_story"`
	Context     *string    `json:"context"`
	Category    *Category  `json:"category"`
	Priority    *Priority  `json:"priority"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Submission returns the fields that were originally submitted for analysis.
func (t *Task) Submission() TaskSubmission {
	sub := TaskSubmission{Description: t.Description}
	if t.UserStory != nil {
		sub.UserStory = *t.UserStory
	}
	if t.Context != nil {
		sub.Context = *t.Context
	}
	return sub
}

// ApplyAnalysis overwrites the analysis fields with the result. Absent
// fields are cleared rather than left at their previous values.
func (t *Task) ApplyAnalysis(result AnalysisResult) {
	t.Category = result.Category
	t.Priority = result.Priority
}

// AnalysisResult is what was extracted from an agent reply.
// A nil field means the reply did not contain it.
type AnalysisResult struct {
	Category     *Category `json:"category"`
	Priority     *Priority `json:"priority"`
	Unrecognized []string  `json:"unrecognized,omitempty"`
}

// Complete reports whether both fields are present.
func (r AnalysisResult) Complete() bool {
	return r.Category != nil && r.Priority != nil
}

// MissingFields returns the JSON names of absent fields.
func (r AnalysisResult) MissingFields() []string {
	var missing []string
	if r.Category == nil {
		missing = append(missing, "category")
	}
	if r.Priority == nil {
		missing = append(missing, "priority")
	}
	return missing
}

// NormalizeLabel maps a free-form label to a comparison key: NFKC normalized,
// case folded, with underscores, hyphens and repeated spaces collapsed.
func NormalizeLabel(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	// Casers carry state, so one is built per call.
	return cases.Fold().String(s)
}

// ParseCategory resolves s against the known categories. When nothing matches
// the trimmed input is returned with ok=false.
func ParseCategory(s string) (Category, bool) {
	key := NormalizeLabel(s)
	for _, c := range Categories {
		if NormalizeLabel(string(c)) == key {
			return c, true
		}
	}
	return Category(strings.TrimSpace(s)), false
}

// ParsePriority resolves s against the known priorities.
func ParsePriority(s string) (Priority, bool) {
	key := NormalizeLabel(s)
	for _, p := range Priorities {
		if NormalizeLabel(string(p)) == key {
			return p, true
		}
	}
	return Priority(strings.TrimSpace(s)), false
}

// ParseTaskStatus resolves s against the known statuses using the same
// normalization as labels, so "in_progress" and "IN PROGRESS" both match.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	key := NormalizeLabel(s)
	for _, st := range TaskStatuses {
		if NormalizeLabel(string(st)) == key {
			return st, true
		}
	}
	return TaskStatus(s), false
}

// TaskFilter narrows a task listing. Zero values mean "no filter".
type TaskFilter struct {
	Status   *TaskStatus
	Category *Category
	Priority *Priority
	Page     int
	PageSize int
}

// TaskPatch is a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Description *string     `json:"description,omitempty"`
	UserStory   *string     `json:"user_story,omitempty"`
	Context     *string     `json:"context,omitempty"`
	Category    *Category   `json:"category,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Description == nil && p.UserStory == nil && p.Context == nil &&
		p.Category == nil && p.Priority == nil && p.Status == nil
}

// Apply copies the set fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.UserStory != nil {
		t.UserStory = p.UserStory
	}
	if p.Context != nil {
		t.Context = p.Context
	}
	if p.Category != nil {
		t.Category = p.Category
	}
	if p.Priority != nil {
		t.Priority = p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}
