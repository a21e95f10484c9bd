package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/tsengine/logger"
)

// DefaultStopTimeout bounds each component's Stop call.
const DefaultStopTimeout = 10 * time.Second

type entry struct {
	c       Component
	started bool
}

// Registry starts components in registration order and stops them in
// reverse. Names are unique.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	log     *logger.Logger
}

// NewRegistry returns an empty registry. A nil logger uses the global one.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Registry{
		byName: make(map[string]*entry),
		log:    log.WithComponent("registry"),
	}
}

// Register adds c. Register dependencies first: they start first.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}
	e := &entry{c: c}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	r.log.Debug("component registered", logger.Fields("name", name))
	return nil
}

// StartAll starts every component not yet started and stops at the first
// failure. Whatever started before it stays started, for StopAll to
// release.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.started {
			continue
		}
		name := e.c.Name()
		begin := time.Now()
		if err := e.c.Start(ctx); err != nil {
			r.log.Error("component failed to start", logger.Fields("name", name, logger.FieldError, err.Error()))
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		e.started = true
		r.log.Debug("component started", logger.Fields("name", name, logger.FieldDuration, time.Since(begin).Milliseconds()))
	}
	r.log.Info("components started", logger.Fields("count", len(r.entries)))
	return nil
}

// StopAll stops the started components in reverse order, giving each up
// to DefaultStopTimeout, and joins their errors. Calling it twice is
// harmless.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.started {
			continue
		}
		e.started = false
		if err := stopOne(ctx, e.c); err != nil {
			r.log.Error("component failed to stop", logger.Fields("name", e.c.Name(), logger.FieldError, err.Error()))
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", e.c.Name(), err))
			continue
		}
		r.log.Debug("component stopped", logger.Fields("name", e.c.Name()))
	}
	return errors.Join(errs...)
}

func stopOne(ctx context.Context, c Component) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultStopTimeout)
	defer cancel()
	return c.Stop(ctx)
}

// HealthAll collects every component's health in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	all := r.All()
	out := make([]Health, len(all))
	for i, c := range all {
		out[i] = c.Health(ctx)
	}
	return out
}

// Get returns the component registered as name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e.c
	}
	return nil
}

func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.c
	}
	return out
}

// Describe lists the components that implement Describable. A blank name
// in a description is filled with the component's name.
func (r *Registry) Describe() []Description {
	var out []Description
	for _, c := range r.All() {
		d, ok := c.(Describable)
		if !ok {
			continue
		}
		desc := d.Describe()
		if desc.Name == "" {
			desc.Name = c.Name()
		}
		out = append(out, desc)
	}
	return out
}
