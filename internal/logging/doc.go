// Package logging provides structured, file-based logging with rotation
// for the retrieval engine, built on log/slog with a JSON handler.
package logging
