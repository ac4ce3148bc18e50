package commands

import (
	"errors"
	"fmt"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/services/ai"
	"github.com/benvon/task-assistant/internal/services/tasks"
	"github.com/spf13/cobra"
)

type previewOutput struct {
	RunID        string   `json:"run_id"`
	Outcome      string   `json:"outcome"`
	Category     string   `json:"category"`
	Priority     string   `json:"priority"`
	Unrecognized []string `json:"unrecognized,omitempty"`
	Raw          string   `json:"raw_response"`
}

func newAnalyzeCmd(env *Env, flags *rootFlags) *cobra.Command {
	var in tasks.CreateInput

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify a description without storing a task",
		Long:  "Calls the agent once and prints the extracted category and priority. The attempt is recorded as a dry_run analysis run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, flags, app.Options{Migrate: true}, func(a *app.App) error {
				analysis, run, err := a.Service.Preview(cmd.Context(), in)
				if analysis == nil {
					return err
				}
				if errors.Is(err, ai.ErrAgentUnavailable) {
					return err
				}

				out := previewOutput{
					RunID:        run.ID,
					Outcome:      string(analysis.Outcome),
					Category:     deref(analysis.Result.Category),
					Priority:     deref(analysis.Result.Priority),
					Unrecognized: analysis.Result.Unrecognized,
					Raw:          analysis.Raw,
				}
				if flags.asJSON {
					return printJSON(env.Out, out)
				}

				fmt.Fprintf(env.Out, "Outcome:  %s\nCategory: %s\nPriority: %s\nRun:      %s\n",
					out.Outcome, out.Category, out.Priority, out.RunID)
				for _, label := range out.Unrecognized {
					fmt.Fprintf(env.Out, "Unrecognized label: %s\n", label)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.Description, "description", "", "Task description (required)")
	cmd.Flags().StringVar(&in.UserStory, "user-story", "", "Optional user story")
	cmd.Flags().StringVar(&in.Context, "context", "", "Optional extra context")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}
