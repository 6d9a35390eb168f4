package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr whether to also write to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig returns configuration for debug mode.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup initializes file-based logging and returns a cleanup function.
// The cleanup function should be called to close the log file.
// Returns the configured logger and cleanup function.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	// Ensure log directory exists
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	// Create rotating writer, unless file logging is disabled
	var writer *RotatingWriter
	var output io.Writer = io.Discard
	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		writer = w
		output = writer
	}

	// Build multi-writer if stderr is enabled
	if cfg.WriteToStderr {
		if writer != nil {
			output = io.MultiWriter(writer, os.Stderr)
		} else {
			output = os.Stderr
		}
	}

	// Parse log level
	level := parseLevel(cfg.Level)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)

	// Cleanup function
	cleanup := func() {
		if writer != nil {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	return logger, cleanup, nil
}

// SetupDefault sets up logging with DebugConfig (the default configuration at
// debug level) and installs it as the default slog logger.
// Returns cleanup function.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}

// ErrorAttrs flattens a *gnoerrors.Error into slog attributes so Kind,
// retry/fatal policy, and operation context (converter, source path, MIME)
// land as structured fields instead of being buried in a formatted string.
// A plain error (not a *gnoerrors.Error) degrades to a single "error" attr.
func ErrorAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	ge, ok := err.(*gnoerrors.Error)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_kind", string(ge.Kind)),
		slog.String("error_message", ge.Message),
		slog.Bool("retryable", ge.Retryable),
		slog.Bool("fatal", ge.Fatal),
	}
	if ge.ConverterID != "" {
		attrs = append(attrs, slog.String("converter_id", ge.ConverterID))
	}
	if ge.SourcePath != "" {
		attrs = append(attrs, slog.String("source_path", ge.SourcePath))
	}
	if ge.MIME != "" {
		attrs = append(attrs, slog.String("mime", ge.MIME))
	}
	if ge.Ext != "" {
		attrs = append(attrs, slog.String("ext", ge.Ext))
	}
	if ge.Cause != nil {
		attrs = append(attrs, slog.String("cause", ge.Cause.Error()))
	}
	for k, v := range ge.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}

// LogError logs err at warn level (error level if the kind is fatal per
// §7's propagation policy), attaching ErrorAttrs so the structured log
// carries Kind/retry/fatal without the caller having to unpack it.
func LogError(logger *slog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	level := slog.LevelWarn
	if gnoerrors.IsFatal(err) {
		level = slog.LevelError
	}
	args := make([]any, 0, len(ErrorAttrs(err)))
	for _, a := range ErrorAttrs(err) {
		args = append(args, a)
	}
	logger.Log(context.Background(), level, msg, args...)
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts string level to slog.Level (exported for use by log viewer).
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
