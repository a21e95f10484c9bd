package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/tsengine/component"
	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/observability"
)

// Engine owns a set of pipelines built by a Composer and the cancellation
// signal they share. Pipelines run independently: one failing does not
// stop the others.
type Engine struct {
	id       string
	name     string
	composer Composer
	log      *logger.Logger
	settings Settings
	metrics  *observability.EngineMetrics

	status engineStatusCell

	mu        sync.RWMutex
	runID     string
	pipelines []*Pipeline
	started   []*Pipeline
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   chan struct{}
	startedAt time.Time
	startErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithName sets the engine's component name. Defaults to "engine".
func WithName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.name = name
		}
	}
}

// WithLogger sets the engine's logger. Pipelines and filters derive their
// loggers from it.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSettings sets the loop settings every pipeline receives.
func WithSettings(s Settings) Option {
	return func(e *Engine) {
		s.ApplyDefaults()
		e.settings = s
	}
}

// WithEngineMetrics records pipeline activity on m.
func WithEngineMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine that will build its pipelines with cfg.
func New(cfg Composer, opts ...Option) *Engine {
	e := &Engine{
		id:       uuid.NewString(),
		name:     "engine",
		composer: cfg,
		log:      logger.NewNop(),
		settings: DefaultSettings(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent(e.name).WithFields(logger.Fields(logger.FieldEngine, e.id))
	return e
}

func (e *Engine) ID() string           { return e.id }
func (e *Engine) Name() string         { return e.name }
func (e *Engine) Status() EngineStatus { return e.status.load() }

// Logger returns the engine's logger.
func (e *Engine) Logger() *logger.Logger { return e.log }

// Settings returns the loop settings handed to pipelines.
func (e *Engine) Settings() Settings { return e.settings }

// RunID returns the ID of the current run, or "" before Start.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// Context returns the shared cancellation context, or nil before Start.
func (e *Engine) Context() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ctx
}

// AddPipeline registers a new pipeline with the engine. Composers call it
// from Compose; pipelines added after the engine is running are not
// started.
func (e *Engine) AddPipeline(name string) *Pipeline {
	opts := []PipelineOption{
		WithPipelineLogger(e.log),
		WithPipelineSettings(e.settings),
	}
	if e.metrics != nil {
		opts = append(opts, WithPipelineMetrics(e.metrics))
	}
	p := NewPipeline(name, opts...)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.load() >= EngineRunning {
		e.log.Warn("pipeline added to a running engine will not start", logger.Fields(logger.FieldPipeline, name))
	}
	e.pipelines = append(e.pipelines, p)
	return p
}

// Pipelines returns every pipeline the composer created.
func (e *Engine) Pipelines() []*Pipeline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Pipeline, len(e.pipelines))
	copy(out, e.pipelines)
	return out
}

// Pipeline returns the first pipeline named name.
func (e *Engine) Pipeline(name string) (*Pipeline, bool) {
	for _, p := range e.Pipelines() {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Start composes the engine and starts every valid pipeline. ctx bounds the
// whole run: cancelling it, or calling Cancel, stops every pipeline.
//
// Invalid pipelines are logged and skipped. Start fails if the engine has
// already been started, if Compose fails, or if no pipeline could start.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.ctx != nil {
		e.mu.Unlock()
		return apperrors.InvalidState("engine", e.Status().String(), "start")
	}
	e.runID = uuid.NewString()
	e.startedAt = time.Now()
	ctx = logger.ContextWithRunID(ctx, e.runID)
	e.ctx, e.cancel = context.WithCancel(ctx)
	runCtx := e.ctx
	e.mu.Unlock()

	log := e.log.WithContext(runCtx)
	ctx, span := observability.StartSpan(runCtx, observability.SpanEngineStart)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrEngineID, e.id)

	if err := e.compose(); err != nil {
		observability.SetSpanError(ctx, err)
		log.WithError(err).Error("engine composition failed")
		e.fail(err)
		return err
	}
	e.status.advance(EngineComposed)

	var failures []error
	pipelines := e.Pipelines()
	started := make([]*Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		if err := p.RunAsync(runCtx); err != nil {
			log.Warn("skipping pipeline", logger.Fields(logger.FieldPipeline, p.Name(), logger.FieldError, err.Error()))
			failures = append(failures, err)
			continue
		}
		started = append(started, p)
	}

	if len(started) == 0 {
		err := apperrors.InvalidState("engine", "composed", "run with no startable pipelines")
		if len(failures) > 0 {
			err = err.WithCause(stderrors.Join(failures...))
		}
		observability.SetSpanError(ctx, err)
		log.Error("no pipeline started")
		e.fail(err)
		return err
	}

	e.mu.Lock()
	e.started = started
	e.mu.Unlock()
	e.status.advance(EngineRunning)
	log.Info("engine running", logger.Fields("pipelines", len(started), "skipped", len(failures)))

	go e.watch(started)
	return nil
}

// RunAsync is an alias of Start.
func (e *Engine) RunAsync(ctx context.Context) error {
	return e.Start(ctx)
}

func (e *Engine) compose() (err error) {
	if e.composer == nil {
		return apperrors.NotImplemented("engine configuration")
	}
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Internal(fmt.Errorf("compose panicked: %v", r))
		}
	}()
	return e.composer.Compose(e)
}

func (e *Engine) watch(pipelines []*Pipeline) {
	for _, p := range pipelines {
		<-p.Done()
	}
	e.log.Info("engine stopped", logger.DurationFields("run", time.Since(e.startedAt)))
	e.stop()
}

// fail records why Start gave up, so Wait and Err report it too.
func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.startErr = err
	e.mu.Unlock()
	e.stop()
}

// stop marks the engine stopped and releases the run context.
func (e *Engine) stop() {
	if !e.status.advance(EngineStopped) {
		return
	}
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	close(e.stopped)
}

// Cancel signals every pipeline to stop. It is idempotent and safe to call
// from any goroutine, before or after Start.
func (e *Engine) Cancel() {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the engine has stopped.
func (e *Engine) Done() <-chan struct{} { return e.stopped }

// Wait blocks until every started pipeline has stopped and returns their
// errors joined. It fails immediately if the engine was never started.
func (e *Engine) Wait() error {
	e.mu.RLock()
	started := e.ctx != nil
	e.mu.RUnlock()
	if !started {
		return apperrors.InvalidState("engine", e.Status().String(), "wait on")
	}
	<-e.stopped
	return e.Err()
}

// Err returns the error that failed Start, or joins the errors of every
// pipeline that failed.
func (e *Engine) Err() error {
	e.mu.RLock()
	started, startErr := e.started, e.startErr
	e.mu.RUnlock()
	if startErr != nil {
		return startErr
	}

	var errs []error
	for _, p := range started {
		if err := p.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Stop cancels the engine and waits for its pipelines, up to ctx's
// deadline.
func (e *Engine) Stop(ctx context.Context) error {
	e.Cancel()
	if e.Context() == nil {
		return nil
	}
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return apperrors.Timeout("engine stop")
	}
}

// Health reports the engine as a lifecycle component: healthy while
// running or after a clean stop, degraded when a pipeline has failed or
// the engine has not started, unhealthy when every started pipeline failed.
func (e *Engine) Health(_ context.Context) component.Health {
	h := component.Health{Name: e.name, Status: component.StatusHealthy}
	status := e.Status()
	if status < EngineRunning {
		h.Status = component.StatusDegraded
		h.Message = "engine is " + status.String()
		return h
	}

	e.mu.RLock()
	started := e.started
	e.mu.RUnlock()

	failed := 0
	for _, p := range started {
		if p.Status() == StatusFailed {
			failed++
		}
	}
	switch {
	case failed > 0 && failed == len(started):
		h.Status = component.StatusUnhealthy
		h.Message = "all pipelines failed"
	case failed > 0:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("%d of %d pipelines failed", failed, len(started))
	default:
		h.Message = "engine is " + status.String()
	}
	return h
}

// Describe reports the engine for startup summaries.
func (e *Engine) Describe() component.Description {
	return component.Description{
		Name:    "Analysis Engine",
		Type:    "engine",
		Details: fmt.Sprintf("pipelines=%d", len(e.Pipelines())),
	}
}
