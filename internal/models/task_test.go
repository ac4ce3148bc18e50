package models

import (
	"testing"
)

func TestCategory_IsKnown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value Category
		known bool
	}{
		{"bug fix", CategoryBugFix, true},
		{"feature request", CategoryFeatureRequest, true},
		{"documentation", CategoryDocumentation, true},
		{"research", CategoryResearch, true},
		{"testing", CategoryTesting, true},
		{"chore", CategoryChore, true},
		{"lowercase is not canonical", Category("bug fix"), false},
		{"unknown", Category("Refactor"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.value.IsKnown(); got != tt.known {
				t.Errorf("IsKnown(%q) = %v, want %v", tt.value, got, tt.known)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   Category
		wantOK bool
	}{
		{"Bug Fix", CategoryBugFix, true},
		{"bug fix", CategoryBugFix, true},
		{"  BUG_FIX ", CategoryBugFix, true},
		{"feature-request", CategoryFeatureRequest, true},
		{"Feature   Request", CategoryFeatureRequest, true},
		{"ｃｈｏｒｅ", CategoryChore, true},
		{" Refactor ", Category("Refactor"), false},
		{"", Category(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseCategory(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseCategory(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   Priority
		wantOK bool
	}{
		{"High", PriorityHigh, true},
		{"medium", PriorityMedium, true},
		{"LOW", PriorityLow, true},
		{"Urgent", Priority("Urgent"), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePriority(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParsePriority(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   TaskStatus
		wantOK bool
	}{
		{"Open", TaskStatusOpen, true},
		{"in_progress", TaskStatusInProgress, true},
		{"In Progress", TaskStatusInProgress, true},
		{"done", TaskStatusDone, true},
		{"Closed", TaskStatus("Closed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseTaskStatus(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseTaskStatus(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAnalysisResult_MissingFields(t *testing.T) {
	t.Parallel()

	bug := CategoryBugFix
	high := PriorityHigh

	tests := []struct {
		name     string
		result   AnalysisResult
		complete bool
		missing  []string
	}{
		{"both present", AnalysisResult{Category: &bug, Priority: &high}, true, nil},
		{"priority absent", AnalysisResult{Category: &bug}, false, []string{"priority"}},
		{"category absent", AnalysisResult{Priority: &high}, false, []string{"category"}},
		{"both absent", AnalysisResult{}, false, []string{"category", "priority"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.result.Complete(); got != tt.complete {
				t.Errorf("Complete() = %v, want %v", got, tt.complete)
			}
			got := tt.result.MissingFields()
			if len(got) != len(tt.missing) {
				t.Fatalf("MissingFields() = %v, want %v", got, tt.missing)
			}
			for i := range got {
				if got[i] != tt.missing[i] {
					t.Errorf("MissingFields()[%d] = %q, want %q", i, got[i], tt.missing[i])
				}
			}
		})
	}
}

func TestTaskPatch_Apply(t *testing.T) {
	t.Parallel()

	story := "As a user"
	done := TaskStatusDone
	task := &Task{Description: "Fix login", Status: TaskStatusOpen}

	patch := TaskPatch{UserStory: &story, Status: &done}
	if patch.Empty() {
		t.Fatal("expected non-empty patch")
	}
	patch.Apply(task)

	if task.Description != "Fix login" {
		t.Errorf("Description changed to %q", task.Description)
	}
	if task.UserStory == nil || *task.UserStory != story {
		t.Errorf("UserStory = %v, want %q", task.UserStory, story)
	}
	if task.Status != TaskStatusDone {
		t.Errorf("Status = %q, want %q", task.Status, TaskStatusDone)
	}
	if !(TaskPatch{}).Empty() {
		t.Error("expected zero patch to be empty")
	}
}
