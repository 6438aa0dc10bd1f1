// Package observability provides structured logging, Prometheus metrics,
// health probes, and graceful-shutdown management for the courseforge
// services.
package observability
