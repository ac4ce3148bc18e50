package models

// Labels used for tasks whose analysis fields are null.
const (
	UncategorizedLabel = "Uncategorized"
	UnsetLabel         = "Unset"
)

// LabelCount is a label and how many tasks carry it
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TaskStats groups task counts by one column
type TaskStats struct {
	GroupBy string       `json:"group_by"`
	Total   int          `json:"total"`
	Counts  []LabelCount `json:"counts"`
}

// AgentPerformance summarizes recorded analysis runs
type AgentPerformance struct {
	TotalRuns        int                     `json:"total_runs"`
	Outcomes         map[AnalysisOutcome]int `json:"outcomes"`
	AverageLatencyMS float64                 `json:"average_latency_ms"`
	SuccessRate      float64                 `json:"success_rate"`
}
