package ai

import (
	"strings"
	"testing"

	"github.com/benvon/task-assistant/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sub      models.TaskSubmission
		validate func(*testing.T, Prompt)
	}{
		{
			name: "includes description and response format",
			sub:  models.TaskSubmission{Description: "Fix the login redirect"},
			validate: func(t *testing.T, p Prompt) {
				if !strings.Contains(p.User, "Task description: Fix the login redirect") {
					t.Error("Expected prompt to include the description")
				}
				if !strings.Contains(p.User, `{"category": "<category>", "priority": "<priority>"}`) {
					t.Error("Expected prompt to specify the JSON shape")
				}
				if !strings.Contains(p.System, "JSON") {
					t.Error("Expected system message to ask for JSON")
				}
			},
		},
		{
			name: "lists every category and priority",
			sub:  models.TaskSubmission{Description: "Anything at all"},
			validate: func(t *testing.T, p Prompt) {
				for _, c := range models.Categories {
					if !strings.Contains(p.User, `"`+string(c)+`"`) {
						t.Errorf("Expected prompt to list category %q", c)
					}
				}
				for _, pr := range models.Priorities {
					if !strings.Contains(p.User, `"`+string(pr)+`"`) {
						t.Errorf("Expected prompt to list priority %q", pr)
					}
				}
			},
		},
		{
			name: "omits empty optional fields",
			sub:  models.TaskSubmission{Description: "Write release notes"},
			validate: func(t *testing.T, p Prompt) {
				if strings.Contains(p.User, "User story:") {
					t.Error("Expected no user story line")
				}
				if strings.Contains(p.User, "Additional context:") {
					t.Error("Expected no context line")
				}
			},
		},
		{
			name: "includes optional fields when set",
			sub: models.TaskSubmission{
				Description: "Add CSV export",
				UserStory:   "As an analyst I want CSV",
				Context:     "Customers asked twice",
			},
			validate: func(t *testing.T, p Prompt) {
				if !strings.Contains(p.User, "User story: As an analyst I want CSV") {
					t.Error("Expected user story line")
				}
				if !strings.Contains(p.User, "Additional context: Customers asked twice") {
					t.Error("Expected context line")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, BuildPrompt(tt.sub))
		})
	}
}

func TestPrompt_String(t *testing.T) {
	t.Parallel()

	p := Prompt{System: "sys", User: "usr"}
	if got := p.String(); got != "system: sys\n\nuser: usr" {
		t.Errorf("String() = %q", got)
	}
}
