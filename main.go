// Package main is the priority-api entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET / (liveness), POST /predict,
//     probes, /metrics and /v1/model behind request-id, logging, recover,
//     metrics, CORS, rate-limit and timeout middleware.
//   - Inference: internal/priority.Predictor validates the request, embeds the
//     task text (internal/embedding), appends the day count to the due date,
//     runs the linear classifier and decodes the label (internal/model).
//   - Startup: internal/server builds everything once from Viper config. A
//     model that fails to load leaves liveness up and makes /predict answer
//     500 unless model.fail_fast is set.
//   - Side channels: optional Postgres audit rows and Pub/Sub events, both off
//     by default, never change a response.
//
// Quick checklist:
//   - Configure env vars: PORT (or PRIORITY_SERVER_PORT), PRIORITY_MODEL_PATH,
//     PRIORITY_MODEL_LABEL_ENCODER_PATH, PRIORITY_EMBEDDER_PROVIDER and an API
//     key when using openai or genai.
//   - Run locally: go run . serve --config config.yaml
//   - One-off: go run . predict --task "..." --description "..." --due-date 2025-01-31
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JakeFAU/task-priority-api/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
