// Package server holds the state shared by gmailvault's MCP tool handlers
// and the auxiliary HTTP endpoints of the streamable-http transport.
//
// ServerContext owns the configuration, logger and metrics recorder, and
// initializes the Gmail client, Downloader and Orchestrator on the first
// tool call. Until the user has run `gmailvault auth`, Services returns an
// error wrapping google.ErrAuthorizationRequired, and every later call tries
// again.
//
// MetricsServer exposes /metrics for Prometheus together with the
// HealthChecker's /healthz, /readyz and /healthz/detailed endpoints.
package server
