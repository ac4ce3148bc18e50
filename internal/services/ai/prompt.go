package ai

import (
	"fmt"
	"strings"

	"github.com/benvon/task-assistant/internal/models"
)

const systemPrompt = "You are a project management assistant that classifies software tasks. " +
	"Respond with a single JSON object only."

// Prompt is the message pair sent to the agent.
type Prompt struct {
	System string
	User   string
}

// String renders the prompt for storage alongside an analysis run.
func (p Prompt) String() string {
	return "system: " + p.System + "\n\nuser: " + p.User
}

// BuildPrompt builds the classification prompt for a submission. Optional
// fields are omitted when empty.
func BuildPrompt(sub models.TaskSubmission) Prompt {
	var b strings.Builder

	b.WriteString("Analyze the following task and classify it.\n\n")
	fmt.Fprintf(&b, "Task description: %s\n", sub.Description)
	if sub.UserStory != "" {
		fmt.Fprintf(&b, "User story: %s\n", sub.UserStory)
	}
	if sub.Context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", sub.Context)
	}

	b.WriteString("\nChoose exactly one category from: ")
	b.WriteString(joinQuoted(models.Categories))
	b.WriteString(".\nChoose exactly one priority from: ")
	b.WriteString(joinQuoted(models.Priorities))
	b.WriteString(".\n\n")
	b.WriteString("Respond with only a JSON object with exactly these keys:\n")
	b.WriteString(`{"category": "<category>", "priority": "<priority>"}`)
	b.WriteString("\nDo not include any other text.")

	return Prompt{System: systemPrompt, User: b.String()}
}

func joinQuoted[T ~string](values []T) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", string(v))
	}
	return strings.Join(quoted, ", ")
}
