// Package logging configures the structured logger used by the Lock,
// Repository, and Sync Applier to report non-fatal conditions. It gives
// the lumberjack rotation dependency a concrete call site: JSON log lines
// go to a rotating file when one is configured, and to stderr otherwise.
package logging

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the rotating file sink. A zero value means "log to
// stderr, no rotation".
type Options struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      slog.Level
}

// New builds a logger per Options. Callers typically build one per
// Repository.open and pass it down to the Lock and Sync Applier.
func New(opts Options) *slog.Logger {
	var handler slog.Handler
	hopts := &slog.HandlerOptions{Level: opts.Level}

	if opts.FilePath != "" {
		writer := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    defaultInt(opts.MaxSizeMB, 10),
			MaxBackups: defaultInt(opts.MaxBackups, 3),
			MaxAge:     defaultInt(opts.MaxAgeDays, 28),
		}
		handler = slog.NewJSONHandler(writer, hopts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything, for ValidationSilent
// callers and tests that don't care about log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
