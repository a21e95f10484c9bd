package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kbukum/tsengine/component"
	"github.com/kbukum/tsengine/logger"
)

const defaultGracefulTimeout = 15 * time.Second

// App drives a service through its lifecycle. C is the service's config
// type; any struct embedding config.ServiceConfig satisfies Config.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*AppConfig]) error {
//	    return a.RegisterComponent(eng)
//	})
//	err = app.RunTask(ctx, analyse)
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	gracefulTimeout time.Duration
	summaryOut      io.Writer
	handleSignals   bool
	onConfigure     []func(ctx context.Context, app *App[C]) error

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewApp applies cfg's defaults, validates it and sets up logging. Unless
// WithLogger is given the logger is built from cfg's logging section.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	base := cfg.GetServiceConfig()
	o := resolveOptions(opts)

	app := &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		gracefulTimeout: defaultGracefulTimeout,
		summaryOut:      os.Stdout,
		handleSignals:   true,
		Logger:          o.logger,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.summaryOut != nil {
		app.summaryOut = o.summaryOut
	}
	if o.handleSignals != nil {
		app.handleSignals = *o.handleSignals
	}
	if app.Logger == nil {
		logger.Init(&base.Logging)
		app.Logger = logger.GetGlobalLogger()
	}

	app.Components = component.NewRegistry(app.Logger)
	app.Summary = NewSummary(base.Name, base.Version)
	return app, nil
}

// RegisterComponent adds c to the registry. Components registered during
// OnConfigure are started with the rest.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// OnConfigure adds a callback for the configure phase, which runs before
// any component starts.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// ReadyCheck fails when any registered component reports anything but
// healthy, naming each one with its status.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	var bad []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status == component.StatusHealthy {
			continue
		}
		entry := fmt.Sprintf("%s=%s", h.Name, h.Status)
		if h.Message != "" {
			entry += "(" + h.Message + ")"
		}
		bad = append(bad, entry)
	}
	if len(bad) > 0 {
		return fmt.Errorf("unhealthy components: %s", strings.Join(bad, ", "))
	}
	return nil
}

// Run starts the service and blocks until a signal arrives or ctx ends,
// then shuts it down.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		return err
	}
	a.Logger.Info("service ready")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts the service, runs task and shuts down once it returns. A
// signal cancels the task's context rather than the process. The task's
// error takes precedence over shutdown errors.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.handleSignals {
		stopWatch := a.cancelOnSignal(taskCtx, cancel)
		defer stopWatch()
	}

	taskErr := task(taskCtx)
	stopErr := a.stop()
	if taskErr != nil {
		return taskErr
	}
	return stopErr
}

func (a *App[C]) cancelOnSignal(ctx context.Context, cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("signal received, cancelling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return func() { signal.Stop(sigCh) }
}

type phase struct {
	name string
	run  func(context.Context) error
}

// startup runs the configure, start, OnStart, ready and OnReady phases in
// order. A failure after configure stops the components already started.
// An unhealthy ready check is only logged.
func (a *App[C]) startup(ctx context.Context) error {
	begin := time.Now()
	a.Logger.Info("starting service", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.configure(ctx); err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	phases := []phase{
		{"start components", a.Components.StartAll},
		{"on start", func(ctx context.Context) error { return runHooks(ctx, a.onStart) }},
		{"ready check", func(ctx context.Context) error {
			if err := a.ReadyCheck(ctx); err != nil {
				a.Logger.Warn("service started degraded", logger.Fields(logger.FieldError, err.Error()))
			}
			return nil
		}},
		{"on ready", func(ctx context.Context) error { return runHooks(ctx, a.onReady) }},
	}
	for _, p := range phases {
		if err := p.run(ctx); err != nil {
			a.abort()
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}

	a.Summary.SetStartupDuration(time.Since(begin))
	a.DisplaySummary(ctx)
	return nil
}

func (a *App[C]) configure(ctx context.Context) error {
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	a.Logger.Debug("service configured", logger.Fields("components", len(a.Components.All())))
	return nil
}

// DisplaySummary writes the startup summary built from the registry.
func (a *App[C]) DisplaySummary(ctx context.Context) {
	a.Summary.Display(ctx, a.summaryOut, a.Components)
}

// WaitForSignal blocks until SIGINT, SIGTERM or the end of ctx, and returns
// the signal, or nil when ctx ended the wait. With signal handling off
// only ctx can end it.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	var sigCh chan os.Signal
	if a.handleSignals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case sig := <-sigCh:
		a.Logger.Info("signal received, shutting down", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the service for callers that drive the lifecycle
// themselves.
func (a *App[C]) Shutdown(_ context.Context) error {
	return a.stop()
}

func (a *App[C]) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.WithError(err).Error("cleanup after failed startup")
	}
}

// stop runs the OnStop hooks and then stops every component, all within
// the graceful timeout. Errors from both steps are joined.
func (a *App[C]) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	hookErr := runHooks(ctx, a.onStop)
	stopErr := a.Components.StopAll(ctx)
	err := errors.Join(hookErr, stopErr)
	if err != nil {
		a.Logger.WithError(err).Error("service stopped with errors")
		return err
	}
	a.Logger.Info("service stopped")
	return nil
}
