// Package monitoring provides metrics and logging for POA-Engine.
// This package implements:
// - Prometheus metrics for consensus requests, cache and worker pool
// - /metrics and /health HTTP endpoints
// - slog logger construction
package monitoring
