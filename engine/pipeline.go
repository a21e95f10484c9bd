package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/observability"
)

// Pipeline is an ordered composition of filters connected by pipes.
type Pipeline struct {
	id       string
	name     string
	log      *logger.Logger
	settings Settings
	metrics  *observability.EngineMetrics

	mu      sync.RWMutex
	filters []Filter
	inlet   *Pipe
	outlet  *Pipe

	status statusCell
	wake   chan struct{}
	done   chan struct{}
	err    error
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the pipeline's logger.
func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithPipelineSettings sets the pipeline's loop settings.
func WithPipelineSettings(s Settings) PipelineOption {
	return func(p *Pipeline) {
		s.ApplyDefaults()
		p.settings = s
	}
}

// WithPipelineMetrics records pipeline activity on m.
func WithPipelineMetrics(m *observability.EngineMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline returns an empty pipeline. Engines create theirs through
// Engine.AddPipeline.
func NewPipeline(name string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		id:       uuid.NewString(),
		name:     name,
		log:      logger.NewNop(),
		settings: DefaultSettings(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithPipeline(name)
	return p
}

func (p *Pipeline) ID() string     { return p.id }
func (p *Pipeline) Name() string   { return p.name }
func (p *Pipeline) Status() Status { return p.status.load() }

// Filters returns the composition in order.
func (p *Pipeline) Filters() []Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Filter, len(p.filters))
	copy(out, p.filters)
	return out
}

// Add appends filters to the composition. For each filter after the first
// a new pipe connects the previous filter's output to its input. Nil
// filters, filters already in this or another pipeline, and additions to a
// pipeline that has started are rejected with a warning.
func (p *Pipeline) Add(filters ...Filter) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range filters {
		if f == nil {
			p.log.Warn("ignoring nil filter")
			continue
		}
		fields := logger.Fields(logger.FieldFilter, f.Name())
		if p.status.load() != StatusInit {
			p.log.Warn("ignoring filter added after start", fields)
			continue
		}
		if p.indexOfLocked(f.base()) >= 0 {
			p.log.Warn("ignoring duplicate filter", fields)
			continue
		}
		if !f.base().adopt(p, p.log) {
			p.log.Warn("ignoring filter owned by another pipeline", fields)
			continue
		}

		if n := len(p.filters); n > 0 {
			prev := p.filters[n-1]
			pipe := NewPipe()
			pipe.attach(prev, f)
			prev.base().setOutput(pipe)
			f.base().setInput(pipe)
		} else if p.inlet != nil {
			p.inlet.attach(nil, f)
			f.base().setInput(p.inlet)
		}
		if p.outlet != nil {
			p.outlet.attach(f, nil)
			f.base().setOutput(p.outlet)
		}
		p.filters = append(p.filters, f)
	}
	return p
}

// Inlet returns a pipe feeding the first filter from outside the pipeline,
// creating it on first use. The producer calls Close when it is done. Inlet
// must be requested before the pipeline runs.
func (p *Pipeline) Inlet() *Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inlet == nil {
		p.inlet = NewPipe()
		if len(p.filters) > 0 {
			first := p.filters[0]
			p.inlet.attach(nil, first)
			first.base().setInput(p.inlet)
		}
	}
	return p.inlet
}

// Outlet returns a pipe the last filter produces into, for draining the
// pipeline from outside. It follows the last filter as more are added.
func (p *Pipeline) Outlet() *Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outlet == nil {
		p.outlet = NewPipe()
		if n := len(p.filters); n > 0 {
			last := p.filters[n-1]
			p.outlet.attach(last, nil)
			last.base().setOutput(p.outlet)
		}
	}
	return p.outlet
}

// Validate checks the composition and stops at the first violation: a nil
// filter, a start filter without output, an end filter without input, or
// an interior filter missing either pipe. Pipelines with a single filter
// need no pipes. An empty pipeline is invalid.
func (p *Pipeline) Validate() error {
	filters := p.Filters()
	n := len(filters)
	if n == 0 {
		return p.invalid("no filters")
	}
	for i, f := range filters {
		if f == nil {
			return p.invalid(fmt.Sprintf("filter at index %d is nil", i))
		}
		if n == 1 {
			break
		}
		switch {
		case i == 0 && f.Output() == nil:
			return p.invalid(fmt.Sprintf("start filter %q has no output pipe", f.Name()))
		case i == n-1 && f.Input() == nil:
			return p.invalid(fmt.Sprintf("end filter %q has no input pipe", f.Name()))
		case i > 0 && i < n-1 && (f.Input() == nil || f.Output() == nil):
			return p.invalid(fmt.Sprintf("interior filter %q is not attached", f.Name()))
		}
	}
	return nil
}

// Valid reports whether Validate succeeds.
func (p *Pipeline) Valid() bool {
	return p.Validate() == nil
}

func (p *Pipeline) invalid(reason string) error {
	err := apperrors.InvalidPipeline(p.name, reason)
	p.log.Error("pipeline validation failed", logger.Fields(logger.FieldError, reason))
	return err
}

// RunAsync validates the pipeline and starts it. Asynchronous filters each
// get their own goroutine; synchronous filters share one loop goroutine.
// RunAsync returns once everything is started. A pipeline runs once.
func (p *Pipeline) RunAsync(ctx context.Context) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.status.cas(StatusInit, StatusRunning) {
		return apperrors.InvalidState("pipeline", p.Status().String(), "run")
	}

	var syncFilters, asyncFilters []Filter
	for _, f := range p.Filters() {
		if f.Mode() == Asynchronous {
			asyncFilters = append(asyncFilters, f)
			continue
		}
		f.Input().shareWake(p.wake)
		syncFilters = append(syncFilters, f)
	}

	log := p.log.WithContext(ctx)
	log.Info("pipeline started", logger.Fields("filters", len(syncFilters)+len(asyncFilters), "async", len(asyncFilters)))
	if p.metrics != nil {
		p.metrics.PipelineStarted(ctx, p.name)
	}

	go func() {
		defer close(p.done)
		err := labeled(ctx, func(ctx context.Context) error {
			return p.run(ctx, syncFilters, asyncFilters)
		}, "pipeline", p.name)

		if err != nil {
			p.err = err
			p.status.store(StatusFailed)
			log.WithError(err).Error("pipeline failed")
		} else {
			p.status.store(StatusCompleted)
			log.Info("pipeline completed")
		}
		if p.metrics != nil {
			p.metrics.PipelineStopped(ctx, p.name, p.Status().String())
		}
	}()
	return nil
}

// run drives the pipeline until every filter has completed or ctx is
// cancelled. The first error cancels the remaining filters.
func (p *Pipeline) run(ctx context.Context, syncFilters, asyncFilters []Filter) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range asyncFilters {
		g.Go(func() error {
			return labeled(gctx, func(ctx context.Context) error {
				return runFilter(ctx, f, p.settings)
			}, "filter", f.Name())
		})
	}
	if len(syncFilters) > 0 {
		g.Go(func() error {
			return p.runSynchronous(gctx, syncFilters)
		})
	}
	return g.Wait()
}

// runSynchronous evaluates each synchronous filter once per pass, in
// composition order, until all of them have completed.
func (p *Pipeline) runSynchronous(ctx context.Context, filters []Filter) error {
	for _, f := range filters {
		f.base().markRunning()
	}
	idle := newIdleWait(p.settings)

	for {
		progressed := false
		pending := 0
		for _, f := range filters {
			if ctx.Err() != nil {
				return nil
			}
			if f.Status() == StatusCompleted {
				continue
			}
			active, err := step(ctx, f)
			if err != nil {
				return err
			}
			if active {
				progressed = true
			}
			if f.Status() != StatusCompleted {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		if progressed {
			idle.reset()
			continue
		}
		if !idle.wait(ctx, p.wake) {
			return nil
		}
	}
}

// Done is closed once the pipeline has stopped.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Wait blocks until a started pipeline stops and returns the error that
// stopped it. It returns immediately for a pipeline that never started.
func (p *Pipeline) Wait() error {
	if p.Status() == StatusInit {
		return nil
	}
	<-p.done
	return p.err
}

// Err returns the error that failed the pipeline once it has stopped.
func (p *Pipeline) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Pipeline) indexOf(b *BaseFilter) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.indexOfLocked(b)
}

func (p *Pipeline) indexOfLocked(b *BaseFilter) int {
	for i, f := range p.filters {
		if f.base() == b {
			return i
		}
	}
	return -1
}
