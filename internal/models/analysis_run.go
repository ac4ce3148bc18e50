package models

import "time"

// AnalysisOutcome classifies how one analysis attempt ended
type AnalysisOutcome string

const (
	OutcomeComplete         AnalysisOutcome = "complete"
	OutcomePartial          AnalysisOutcome = "partial"
	OutcomeMalformed        AnalysisOutcome = "malformed"
	OutcomeAgentUnavailable AnalysisOutcome = "agent_unavailable"
)

// AnalysisOutcomes lists every outcome in reporting order.
var AnalysisOutcomes = []AnalysisOutcome{
	OutcomeComplete,
	OutcomePartial,
	OutcomeMalformed,
	OutcomeAgentUnavailable,
}

// AnalysisTrigger records why an analysis run happened
type AnalysisTrigger string

const (
	TriggerCreate    AnalysisTrigger = "create"
	TriggerReanalyze AnalysisTrigger = "reanalyze"
	TriggerReextract AnalysisTrigger = "reextract"
	TriggerDryRun    AnalysisTrigger = "dry_run"
)

// AnalysisRun is one recorded analysis attempt. Runs outlive failed creates,
// so TaskID is nil when no task was persisted.
type AnalysisRun struct {
	ID           string          `json:"id"`
	TaskID       *int64          `json:"task_id"`
	Trigger      AnalysisTrigger `json:"trigger"`
	Model        string          `json:"model"`
	Prompt       string          `json:"prompt"`
	RawResponse  string          `json:"raw_response"`
	Outcome      AnalysisOutcome `json:"outcome"`
	Category     *Category       `json:"category"`
	Priority     *Priority       `json:"priority"`
	ErrorMessage *string         `json:"error_message"`
	LatencyMS    int64           `json:"latency_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Result returns the fields extracted during the run.
func (r *AnalysisRun) Result() AnalysisResult {
	return AnalysisResult{Category: r.Category, Priority: r.Priority}
}
