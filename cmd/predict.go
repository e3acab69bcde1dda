package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/priority"
	"github.com/JakeFAU/task-priority-api/internal/server"
)

// newPredictCmd runs a single prediction through the same pipeline the server uses.
func newPredictCmd() *cobra.Command {
	var (
		req     priority.Request
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the priority of one task and print the label",
		Example: `  priority-api predict --task "File taxes" --description "federal and state" --due-date 2025-04-15
  priority-api predict --text "call the plumber"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			logger := zap.NewNop()
			if verbose {
				if logger, err = zap.NewDevelopment(); err != nil {
					return fmt.Errorf("logger init failed: %w", err)
				}
			}
			// One-off runs never write audit rows or events.
			local := *cfg
			local.DB.Enabled = false
			local.PubSub.Enabled = false
			local.Model.FailFast = true

			app, err := server.Build(cmd.Context(), &local, server.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(cmd.Context()) }()

			predictor, err := app.Predictor()
			if err != nil {
				return err
			}
			prediction, err := predictor.Predict(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("predict: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(prediction); err != nil {
					return fmt.Errorf("encode prediction: %w", err)
				}
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), prediction.Priority)
			return err
		},
	}
	cmd.Flags().StringVar(&req.Text, "text", "", "free-text task (early request shape)")
	cmd.Flags().StringVar(&req.Task, "task", "", "task title")
	cmd.Flags().StringVar(&req.Description, "description", "", "task description")
	cmd.Flags().StringVar(&req.DueDate, "due-date", "", "due date as YYYY-MM-DD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full prediction as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline details to stderr")
	return cmd
}
