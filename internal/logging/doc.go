// Package logging assembles structured slog loggers and formatting helpers used
// across scribe.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with job IDs, stages, and correlation
// IDs. A StreamHub keeps a bounded tail of recent events for the API, and
// NewNop serves tests and wiring code that cannot fail.
package logging
