// Package observability provides the logging and metrics layer shared by the
// Flowdeck webserver packages: a structured slog-based JSON logger and
// Prometheus metrics for the authentication subsystem.
package observability
