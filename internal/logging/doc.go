// Package logging assembles structured slog loggers and formatting helpers used
// across narrator services.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code tags log lines with job IDs,
// stage names, and request IDs. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
