package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/task-priority-api/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction server",
		Long: `Loads the model and serves /, /predict, /healthz, /readyz, /metrics and
/v1/model on PORT (default 5000) until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg, server.Options{})
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
