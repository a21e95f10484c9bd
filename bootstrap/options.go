package bootstrap

import (
	"io"
	"time"

	"github.com/kbukum/tsengine/logger"
)

// Option configures the App during creation.
// Options are non-generic so they can be used with any config type.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout *time.Duration
	summaryOut      io.Writer
	handleSignals   *bool
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the application.
// If not set, the logger is auto-initialized from the config's Logging field.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}

// WithSummaryWriter sends the startup summary to w instead of stdout.
// A nil writer disables the summary.
func WithSummaryWriter(w io.Writer) Option {
	return func(o *appOptions) {
		if w == nil {
			w = io.Discard
		}
		o.summaryOut = w
	}
}

// WithSignalHandling controls whether Run and RunTask listen for SIGINT
// and SIGTERM. It is on by default.
func WithSignalHandling(enabled bool) Option {
	return func(o *appOptions) {
		o.handleSignals = &enabled
	}
}
