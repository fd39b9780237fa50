// Package logging assembles structured slog loggers and formatting helpers used
// across vrdl.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so driver and workflow code can
// tag log lines with release names, stages, and run IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
