package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/spf13/cobra"
)

func newRunsCmd(env *Env, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and replay analysis runs",
	}
	cmd.AddCommand(newRunsListCmd(env, flags))
	cmd.AddCommand(newRunsReextractCmd(env, flags))
	return cmd
}

func newRunsListCmd(env *Env, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's analysis runs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			return withApp(cmd.Context(), env, flags, app.Options{}, func(a *app.App) error {
				runs, err := a.Service.Runs(cmd.Context(), taskID)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(env.Out, runs)
				}

				tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tTRIGGER\tOUTCOME\tCATEGORY\tPRIORITY\tLATENCY")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\n", r.ID, r.Trigger, r.Outcome, deref(r.Category), deref(r.Priority), r.LatencyMS)
				}
				return tw.Flush()
			})
		},
	}
}

func newRunsReextractCmd(env *Env, flags *rootFlags) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "reextract <run-id>",
		Short: "Extract a stored reply again without calling the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, flags, app.Options{}, func(a *app.App) error {
				result, err := a.Service.Reextract(cmd.Context(), args[0], apply)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(env.Out, result)
				}

				fmt.Fprintf(env.Out, "Run %s: %s (category %s, priority %s)\n",
					result.Run.ID, result.Analysis.Outcome, deref(result.Run.Category), deref(result.Run.Priority))
				if result.Applied {
					fmt.Fprintf(env.Out, "Applied to task %d\n", result.Task.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the result to the run's task")
	return cmd
}
