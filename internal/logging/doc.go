// Package logging assembles structured slog loggers for the lrcforge daemon and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, a set of
// standard field keys, and context helpers that tag log lines with the batch and
// item being processed. A no-op logger is provided for tests and wiring code.
package logging
