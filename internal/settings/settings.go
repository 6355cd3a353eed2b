// Package settings loads the operator-facing configuration layer from
// SPEC_FULL.md §4.10: log level/file, default sync tolerance, and default
// ValidationMode. This is distinct from the store-contract files in
// internal/config — it is never part of the on-disk store invariants and
// carries no issue data. Grounded on the teacher's viper-based config.go,
// adapted from a CLI-flag-precedence global singleton into a single
// instance callers construct explicitly, per spec.md §9's "Global state:
// none" design note.
package settings

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Settings holds the operator-facing options. Defaults() gives the value
// of each field when nothing overrides it.
type Settings struct {
	LogLevel          slog.Level
	LogFile           string
	SyncTolerance     time.Duration
	DefaultValidation string // "silent" | "warn" | "error"

	v *viper.Viper
}

// Defaults returns the built-in defaults, used when no settings file is
// present.
func Defaults() Settings {
	return Settings{
		LogLevel:          slog.LevelInfo,
		LogFile:           "",
		SyncTolerance:     1 * time.Second,
		DefaultValidation: "warn",
	}
}

// Load reads settings from configDir (a directory, typically the store
// root or a parent of it) looking for "minibeads-settings.yaml". An
// MB_<KEY> environment variable (dashes in the key become underscores,
// e.g. MB_LOG_LEVEL) overrides the file; Defaults() fills in anything
// neither sets.
func Load(configDir string) (Settings, error) {
	s := Defaults()

	v := viper.New()
	v.SetConfigName("minibeads-settings")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("MB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
	v.SetDefault("sync-tolerance", "1s")
	v.SetDefault("default-validation", "warn")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, fmt.Errorf("reading settings file: %w", err)
		}
	}

	if lvl, err := parseLevel(v.GetString("log-level")); err == nil {
		s.LogLevel = lvl
	}
	s.LogFile = v.GetString("log-file")
	if d := v.GetDuration("sync-tolerance"); d > 0 {
		s.SyncTolerance = d
	}
	if dv := v.GetString("default-validation"); dv != "" {
		s.DefaultValidation = dv
	}
	s.v = v

	return s, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unrecognized log level %q", s)
	}
}

// Watch reloads Settings from its config file whenever it changes on
// disk, invoking onChange with the freshly parsed value. It promotes
// fsnotify to a direct dependency rather than relying on viper's
// internal (unwired, in the retrieved corpus) use of it. The returned
// stop function releases the watch.
func (s *Settings) Watch(onChange func(Settings)) (stop func(), err error) {
	if s.v == nil || s.v.ConfigFileUsed() == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating settings watcher: %w", err)
	}
	if err := watcher.Add(s.v.ConfigFileUsed()); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching settings file: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.v.ReadInConfig(); err != nil {
					continue
				}
				reloaded := *s
				if lvl, err := parseLevel(s.v.GetString("log-level")); err == nil {
					reloaded.LogLevel = lvl
				}
				reloaded.LogFile = s.v.GetString("log-file")
				if d := s.v.GetDuration("sync-tolerance"); d > 0 {
					reloaded.SyncTolerance = d
				}
				if dv := s.v.GetString("default-validation"); dv != "" {
					reloaded.DefaultValidation = dv
				}
				onChange(reloaded)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
