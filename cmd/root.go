// Package cmd defines and implements the CLI commands for the priority-api executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/task-priority-api/internal/config"
)

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType struct{}

// loadConfig is the configuration factory. It's a variable so tests can
// replace it.
var loadConfig = config.Load

// newRootCmd creates and configures the root command. Running it without a
// subcommand starts the server.
func newRootCmd() *cobra.Command {
	var cfgFile string
	serve := newServeCmd()

	cmd := &cobra.Command{
		Use:   "priority-api",
		Short: "Task priority prediction service.",
		Long: `priority-api loads a trained priority classifier once at startup and
serves predictions over HTTP. POST /predict accepts {"text"} or
{"task","description","due_date"} and answers {"priority"}.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config is loaded once here and handed to subcommands through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKeyType{}, &cfg))
			return nil
		},
		RunE: serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (env vars prefixed PRIORITY_ override it)")

	cmd.AddCommand(serve)
	cmd.AddCommand(newPredictCmd())
	cmd.AddCommand(newModelCmd())
	return cmd
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKeyType{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute(ctx context.Context) error {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}
