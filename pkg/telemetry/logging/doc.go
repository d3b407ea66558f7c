// Package logging provides structured logging built on log/slog.
//
// New constructs an *slog.Logger from a level, format, and writer.
// Commands log to stderr so command output on stdout stays parseable.
package logging
