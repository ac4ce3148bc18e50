package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/workers"
	"github.com/spf13/cobra"
)

type backfillOutput struct {
	Scheduled int    `json:"scheduled"`
	Spacing   string `json:"spacing"`
}

func newBackfillCmd(env *Env, flags *rootFlags) *cobra.Command {
	var (
		limit   int
		spacing time.Duration
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Queue reanalysis for tasks missing a category or priority",
		Long: "Finds stored tasks whose analysis left the category or priority empty and queues one " +
			"reanalysis job for each, spaced apart so the worker does not call the agent in a burst. " +
			"Requires RABBITMQ_URL.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}

			opts := app.Options{Queue: true, QueueAttempts: 1}
			return withApp(cmd.Context(), env, flags, opts, func(a *app.App) error {
				if a.Queue == nil {
					return errors.New("backfill needs a job queue; set RABBITMQ_URL")
				}

				r := workers.NewReprocessor(a.Tasks, a.Queue, spacing, a.Logger)
				n, err := r.ScheduleIncomplete(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(env.Out, backfillOutput{Scheduled: n, Spacing: spacing.String()})
				}
				fmt.Fprintf(env.Out, "Queued reanalysis for %d tasks, %s apart\n", n, spacing)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of tasks to queue")
	cmd.Flags().DurationVar(&spacing, "spacing", workers.DefaultBackfillSpacing, "Delay between consecutive jobs")
	return cmd
}
