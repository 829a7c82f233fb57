// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on the process default logger. Level names
// are the slog ones (debug, info, warn, error); anything unparsable falls
// back to info.
func Setup(levelName string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(levelName))); err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with the owning module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
