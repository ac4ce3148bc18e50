package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/task-assistant/internal/models"
)

// mockAgent is a function-field Agent for tests
type mockAgent struct {
	invokeFunc func(ctx context.Context, prompt Prompt) (string, error)
	calls      int
}

var _ Agent = (*mockAgent)(nil)

func (m *mockAgent) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	m.calls++
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, prompt)
	}
	return "", nil
}

func (m *mockAgent) Model() string { return "mock-model" }

func TestAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	sub := models.TaskSubmission{Description: "Login fails on Safari"}
	transportErr := errors.New("dial tcp: connection refused")

	tests := []struct {
		name        string
		reply       string
		agentErr    error
		wantOutcome models.AnalysisOutcome
		wantErr     error
		wantRaw     string
	}{
		{
			name:        "complete",
			reply:       `Sure! {"category": "Bug Fix", "priority": "High"}`,
			wantOutcome: models.OutcomeComplete,
			wantRaw:     `Sure! {"category": "Bug Fix", "priority": "High"}`,
		},
		{
			name:        "partial",
			reply:       `{"category": "Bug Fix"}`,
			wantOutcome: models.OutcomePartial,
			wantErr:     ErrPartialResponse,
			wantRaw:     `{"category": "Bug Fix"}`,
		},
		{
			name:        "malformed",
			reply:       `Sorry, I cannot classify this.`,
			wantOutcome: models.OutcomeMalformed,
			wantErr:     ErrMalformedResponse,
			wantRaw:     `Sorry, I cannot classify this.`,
		},
		{
			name:        "agent unavailable",
			agentErr:    &AgentUnavailableError{Err: transportErr},
			wantOutcome: models.OutcomeAgentUnavailable,
			wantErr:     ErrAgentUnavailable,
		},
		{
			name:        "untyped agent error is wrapped",
			agentErr:    transportErr,
			wantOutcome: models.OutcomeAgentUnavailable,
			wantErr:     ErrAgentUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			agent := &mockAgent{invokeFunc: func(ctx context.Context, p Prompt) (string, error) {
				if p.User == "" || p.System == "" {
					t.Error("expected a built prompt")
				}
				return tt.reply, tt.agentErr
			}}
			analyzer := NewAnalyzer(agent, nil)

			analysis, err := analyzer.Analyze(context.Background(), sub)
			if analysis == nil {
				t.Fatal("Analyze() returned nil analysis")
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if analysis.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", analysis.Outcome, tt.wantOutcome)
			}
			if analysis.Raw != tt.wantRaw {
				t.Errorf("Raw = %q, want %q", analysis.Raw, tt.wantRaw)
			}
			if analysis.Model != "mock-model" {
				t.Errorf("Model = %q", analysis.Model)
			}
			if agent.calls != 1 {
				t.Errorf("expected exactly one agent call, got %d", agent.calls)
			}
		})
	}
}

func TestAnalyzer_UnavailableSkipsExtraction(t *testing.T) {
	t.Parallel()

	agent := &mockAgent{invokeFunc: func(context.Context, Prompt) (string, error) {
		// A reply that would extract cleanly must still be discarded
		return `{"category": "Chore", "priority": "Low"}`, &AgentUnavailableError{Err: context.DeadlineExceeded}
	}}

	analysis, err := NewAnalyzer(agent, nil).Analyze(context.Background(), models.TaskSubmission{Description: "Tidy repo"})
	if !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("expected ErrAgentUnavailable, got %v", err)
	}
	if analysis.Result.Category != nil || analysis.Result.Priority != nil {
		t.Errorf("expected empty result, got %+v", analysis.Result)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}
