// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - GET / returns a plain-text liveness string, even without a model.
//   - POST /predict returns {"priority": label} for a task.
//   - GET /healthz and /readyz for platform probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/model describes the loaded model.
package api
