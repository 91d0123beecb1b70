// Package logging assembles the slog loggers used across storypack.
//
// It owns the console and JSON handlers, level and output plumbing, the
// standard attribute keys, and context helpers that tag log lines with the
// device and content being processed. NewNop provides a silent logger for
// tests and wiring code that cannot fail.
package logging
