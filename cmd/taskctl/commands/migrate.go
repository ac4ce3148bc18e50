package commands

import (
	"fmt"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(env *Env, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, flags, app.Options{Migrate: true}, func(a *app.App) error {
				version, err := database.NewMigrator(a.DB, a.Logger).Version(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to read schema version: %w", err)
				}
				fmt.Fprintf(env.Out, "Database %s is at schema version %s\n", a.DB.Dialect(), version)
				return nil
			})
		},
	}
}
