// Package commands implements the taskctl subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/benvon/task-assistant/internal/app"
	"github.com/benvon/task-assistant/internal/config"
	"github.com/benvon/task-assistant/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Env is what the commands need from the outside world
type Env struct {
	Out  io.Writer
	Load func() (*config.Config, error)
}

// DefaultEnv reads configuration from the environment and writes to stdout
func DefaultEnv() *Env {
	return &Env{Out: os.Stdout, Load: config.Load}
}

type rootFlags struct {
	debug  bool
	asJSON bool
}

// NewRootCmd builds the taskctl command tree
func NewRootCmd(env *Env) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Administration tool for the task assistant",
		Long:          "Run migrations, inspect tasks and analysis runs, queue reanalysis of incomplete tasks, and try the analyzer without storing anything.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Out)
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Log agent prompts and replies")
	root.PersistentFlags().BoolVar(&flags.asJSON, "json", false, "Print results as JSON")

	root.AddCommand(newMigrateCmd(env, flags))
	root.AddCommand(newTasksCmd(env, flags))
	root.AddCommand(newRunsCmd(env, flags))
	root.AddCommand(newAnalyzeCmd(env, flags))
	root.AddCommand(newBackfillCmd(env, flags))
	return root
}

// withApp opens the application for one command and closes it afterwards.
func withApp(ctx context.Context, env *Env, flags *rootFlags, opts app.Options, fn func(*app.App) error) error {
	cfg, err := env.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewDevelopment(flags.debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	opts.Debug = flags.debug
	a, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed_to_close_resources", zap.Error(err))
		}
	}()

	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref[T ~string](v *T) string {
	if v == nil {
		return "-"
	}
	return string(*v)
}
