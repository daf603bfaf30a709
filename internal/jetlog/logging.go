// Package jetlog provides the structured logging used throughout jetdb.
package jetlog

import (
	"log/slog"
	"os"
	"time"
)

// Level is a jetdb logging level, independent of slog's so callers outside
// the module never need to import log/slog just to call Init.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects the handler used for the default logger.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

var defaultLogger *slog.Logger

func init() {
	Init(LevelInfo, FormatJSON)
}

// Init (re)configures the package-level logger. Every Database logs through
// this one (a file-backed Database through ForDatabase's scoped child of it).
func Init(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
}

// Default returns the package-level logger.
func Default() *slog.Logger { return defaultLogger }

// ForDatabase scopes a logger to a database path, the way every log line
// emitted while that database is open should be tagged.
func ForDatabase(path string) *slog.Logger {
	return defaultLogger.With("db", path)
}

// ForTable further scopes a database-level logger to one table.
func ForTable(logger *slog.Logger, table string) *slog.Logger {
	return logger.With("table", table)
}
