// Package api hosts the HTTP server and middleware for the trends gateway.
// Notable routes:
//   - GET /api/trends answers a trend query with an envelope, a 429 with
//     Retry-After when the upstream is rate limiting, or a 500 on fatal errors.
//   - GET /api/trends/test-parsing runs the keyword normalizer diagnostics.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
