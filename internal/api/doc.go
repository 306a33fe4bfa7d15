// Package api hosts the HTTP server, middleware, and REST handlers for link
// records. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST, GET /v1/links and GET, PUT /v1/links/{link_id} for records.
//   - GET /v1/links/{link_id}/thumbnail for the attached image bytes.
package api
