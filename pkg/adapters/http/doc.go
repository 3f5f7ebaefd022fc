// Package http exposes a chainflow engine as a REST API on chi.
//
// Runs are started with POST /chains/{name}/runs, inspected and deleted under
// /runs/{id}, and resumed with POST /runs/{id}/resume. GET /runs/{id}/events
// streams snapshot diffs as Server-Sent Events. Prometheus metrics are served
// on /metrics.
package http
