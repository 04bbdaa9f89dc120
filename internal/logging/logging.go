// Package logging builds the process-wide slog.Logger: text or JSON output
// to stderr or a rotating file, optionally fanned out to Sentry.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level  slog.Level
	Format string // text or json

	// Output receives log lines when File is empty. Defaults to os.Stderr.
	Output io.Writer

	// File enables size-based rotation through lumberjack.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// SentryDSN enables the Sentry handler for warnings and errors.
	SentryDSN         string
	SentryEnvironment string
	Release           string

	// Redactor, when set, masks secrets before any handler sees a record.
	Redactor *Redactor
}

// ParseLevel converts a level name to a slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New returns a logger and a function that flushes and releases its
// outputs. The close function is never nil.
func New(opts Options) (*slog.Logger, func(), error) {
	var (
		out     = opts.Output
		closers []func()
	)
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		out = rotator
		closers = append(closers, func() { _ = rotator.Close() })
	}

	hopts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, hopts)
	case "json":
		handler = slog.NewJSONHandler(out, hopts)
	default:
		return nil, func() {}, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	if opts.SentryDSN != "" {
		env := opts.SentryEnvironment
		if env == "" {
			env = "production"
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryDSN,
			Environment: env,
			Release:     opts.Release,
			EnableLogs:  true,
		}); err != nil {
			// Keep the local handler; Sentry is best effort.
			slog.New(handler).Error("logging: sentry init failed", "error", err)
		} else {
			sentryHandler := sentryslog.Option{
				EventLevel: []slog.Level{slog.LevelError},
				LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
			}.NewSentryHandler(context.Background())
			handler = newMultiHandler(handler, sentryHandler)
			closers = append(closers, func() { sentry.Flush(2 * time.Second) })
		}
	}

	if opts.Redactor != nil {
		handler = NewRedactingHandler(handler, opts.Redactor)
	}

	closeFn := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return slog.New(handler), closeFn, nil
}
