package internal

import (
	"log/slog"
	"os"
)

// logLevels maps flag values to slog levels.
var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel maps a level name to its slog level. Unrecognized values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	if lvl, ok := logLevels[level]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// SetupLogger configures the default slog logger with the given level name.
func SetupLogger(level string) {
	lvl := ParseLogLevel(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	if _, ok := logLevels[level]; !ok {
		slog.Warn("unknown log level, defaulting to info", "level", level)
	}
}
