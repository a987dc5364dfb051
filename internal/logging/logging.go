// Package logging configures log/slog for the alphagsm command.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLogPath returns ~/.alphagsm/alphagsm.log
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "alphagsm.log")
	}
	return filepath.Join(home, ".alphagsm", "alphagsm.log")
}

// ParseLevel converts "debug", "info", "warn" or "error" (any case) to a
// slog level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup points the default logger at a JSON log file, creating its
// directory. An empty path uses DefaultLogPath. The returned cleanup closes
// the file.
func Setup(path string, level slog.Level) (cleanup func(), err error) {
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})))
	return func() { f.Close() }, nil
}

// SetupConsole sends human readable logs to w. The CLI uses it for stderr
// when no log file is configured, so diagnostics never mix with the
// multiplexed output on stdout.
func SetupConsole(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// SetupTest logs everything to w in text format
func SetupTest(w io.Writer) {
	SetupConsole(w, slog.LevelDebug)
}
