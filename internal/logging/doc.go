// Package logging builds the slog loggers used throughout the daemon and
// provides shared attribute helpers and field-name constants so components
// log with a uniform vocabulary.
package logging
