// Package logging builds the zerolog logger used across mailbrowse.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbrowse/internal/model"
)

// Target says where output goes when no log file is configured.
type Target int

const (
	// Stderr writes to standard error, human readable on a terminal.
	Stderr Target = iota
	// Discard drops output. The terminal UI owns the screen, so it only
	// logs to a file.
	Discard
)

// New returns a logger for cfg and a function that releases the log file,
// if one was opened.
func New(cfg model.LogConfig, target Target) (zerolog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nop, err
	}

	var (
		w       io.Writer
		release = nop
	)
	switch {
	case cfg.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nop, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nop, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		w, release = f, f.Close
	case target == Discard:
		return zerolog.Nop(), nop, nil
	case isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()):
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	default:
		w = os.Stderr
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), release, nil
}

// ParseLevel accepts trace, debug, info, warn, error or an empty string,
// which means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func nop() error { return nil }
