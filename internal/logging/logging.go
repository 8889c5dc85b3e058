// Package logging builds the process logger for the bridge binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var level = new(slog.LevelVar)

// Options configures New
type Options struct {
	Level   string
	NoColor bool
	JSON    bool
}

// New creates a logger writing to w. Text output is coloured by tint
// unless NoColor is set; JSON output is for machine consumers.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	if err := SetLevel(opts.Level); err != nil {
		return nil, err
	}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor,
		})
	}
	return slog.New(h), nil
}

// Setup installs a stderr logger as the slog default and returns it
func Setup(opts Options) (*slog.Logger, error) {
	logger, err := New(os.Stderr, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// SetLevel changes the level of every logger built by this package.
// An empty name means info.
func SetLevel(name string) error {
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// Level returns the current level
func Level() slog.Level {
	return level.Level()
}

// ParseLevel parses debug, info, warn or error
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
