package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/models"
	"github.com/benvon/task-assistant/internal/validation"
	"github.com/spf13/cobra"
)

func newTasksCmd(env *Env, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect stored tasks",
	}
	cmd.AddCommand(newTasksListCmd(env, flags))
	return cmd
}

func newTasksListCmd(env *Env, flags *rootFlags) *cobra.Command {
	var status, category, priority string
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.TaskFilter{Page: page, PageSize: pageSize}
			if status != "" {
				s, err := validation.ValidateTaskStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &s
			}
			if category != "" {
				c, _ := models.ParseCategory(category)
				filter.Category = &c
			}
			if priority != "" {
				p, _ := models.ParsePriority(priority)
				filter.Priority = &p
			}

			return withApp(cmd.Context(), env, flags, app.Options{}, func(a *app.App) error {
				result, err := a.Service.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(env.Out, result)
				}

				tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tCATEGORY\tPRIORITY\tDESCRIPTION")
				for _, t := range result.Tasks {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Status, deref(t.Category), deref(t.Priority), truncate(t.Description, 60))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "\nPage %d, %d of %d tasks\n", result.Page, len(result.Tasks), result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (Open, In Progress, Done)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&priority, "priority", "", "Filter by priority")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Tasks per page")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
