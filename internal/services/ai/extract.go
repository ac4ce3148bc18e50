package ai

import (
	"encoding/json"
	"strings"

	"github.com/benvon/task-assistant/internal/models"
)

// MaxExtractCandidates bounds how many '{' positions are tried before a reply
// is declared malformed.
const MaxExtractCandidates = 64

// reply holds the two fields of interest. encoding/json matches keys
// case-insensitively when there is no exact match.
type reply struct {
	Category any `json:"category"`
	Priority any `json:"priority"`
}

// Extract parses an agent reply. The first syntactically valid JSON object in
// raw is used, wherever it sits in the surrounding text; later objects are
// ignored. Unknown labels are kept and listed in Unrecognized.
//
// A reply with exactly one field returns the partial result together with a
// *PartialResponseError. Extract has no side effects, so the same input always
// yields the same output.
func Extract(raw string) (models.AnalysisResult, error) {
	obj, ok := firstObject(raw)
	if !ok {
		return models.AnalysisResult{}, &MalformedResponseError{Reason: "no JSON object found"}
	}

	var result models.AnalysisResult
	if s, ok := presentString(obj.Category); ok {
		c, known := models.ParseCategory(s)
		if !known {
			result.Unrecognized = append(result.Unrecognized, "category")
		}
		result.Category = &c
	}
	if s, ok := presentString(obj.Priority); ok {
		p, known := models.ParsePriority(s)
		if !known {
			result.Unrecognized = append(result.Unrecognized, "priority")
		}
		result.Priority = &p
	}

	switch {
	case result.Category == nil && result.Priority == nil:
		return models.AnalysisResult{}, &MalformedResponseError{Reason: "object has neither category nor priority"}
	case result.Category == nil || result.Priority == nil:
		return result, &PartialResponseError{Result: result}
	}
	return result, nil
}

// firstObject decodes one JSON value starting at each '{' in turn and returns
// the first that parses.
func firstObject(raw string) (reply, bool) {
	tried := 0
	for i := strings.IndexByte(raw, '{'); i >= 0 && tried < MaxExtractCandidates; tried++ {
		var obj reply
		if err := json.NewDecoder(strings.NewReader(raw[i:])).Decode(&obj); err == nil {
			return obj, true
		}
		next := strings.IndexByte(raw[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return reply{}, false
}

// presentString treats null, non-string and blank values as absent.
func presentString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
