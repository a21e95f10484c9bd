package engine

import (
	"sync"

	apperrors "github.com/kbukum/tsengine/errors"
)

// Composer builds an engine's pipelines. The engine calls Compose once,
// from Start, before any pipeline runs.
type Composer interface {
	Compose(e *Engine) error
}

// ComposeFunc adapts a function to the Composer interface.
type ComposeFunc func(e *Engine) error

// Compose calls fn(e).
func (fn ComposeFunc) Compose(e *Engine) error {
	if fn == nil {
		return apperrors.NotImplemented("compose")
	}
	return fn(e)
}

// Configuration is an ordered list of filters that specializations turn
// into pipelines. It does not implement Composer itself; embed it in a
// type that does.
//
// Filters are matched by identity. A decorated filter matches the filter
// it wraps.
type Configuration struct {
	mu      sync.RWMutex
	filters []Filter
}

// NewConfiguration returns a configuration holding filters in order.
func NewConfiguration(filters ...Filter) *Configuration {
	c := &Configuration{}
	c.Append(filters...)
	return c
}

// Append adds filters at the end of the list. Nil filters are ignored.
func (c *Configuration) Append(filters ...Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}
}

// InsertBefore places f immediately before anchor. It reports false, and
// changes nothing, when anchor is not in the list.
func (c *Configuration) InsertBefore(anchor, f Filter) bool {
	return c.insert(anchor, f, 0)
}

// InsertAfter places f immediately after anchor. It reports false, and
// changes nothing, when anchor is not in the list.
func (c *Configuration) InsertAfter(anchor, f Filter) bool {
	return c.insert(anchor, f, 1)
}

func (c *Configuration) insert(anchor, f Filter, offset int) bool {
	if anchor == nil || f == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(anchor)
	if i < 0 {
		return false
	}
	c.filters = append(c.filters, nil)
	copy(c.filters[i+offset+1:], c.filters[i+offset:])
	c.filters[i+offset] = f
	return true
}

// Remove deletes f from the list and reports whether it was present.
func (c *Configuration) Remove(f Filter) bool {
	if f == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(f)
	if i < 0 {
		return false
	}
	c.filters = append(c.filters[:i], c.filters[i+1:]...)
	return true
}

// Contains reports whether f is in the list.
func (c *Configuration) Contains(f Filter) bool {
	if f == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexLocked(f) >= 0
}

// Filters returns the list in order.
func (c *Configuration) Filters() []Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Filter, len(c.filters))
	copy(out, c.filters)
	return out
}

// Len returns the number of filters.
func (c *Configuration) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

func (c *Configuration) indexLocked(f Filter) int {
	b := f.base()
	for i, cur := range c.filters {
		if cur.base() == b {
			return i
		}
	}
	return -1
}

// Linear composes its filters into one pipeline.
type Linear struct {
	Configuration
	name string
}

// NewLinear returns a Linear configuration whose pipeline is called name.
func NewLinear(name string, filters ...Filter) *Linear {
	l := &Linear{name: name}
	l.Append(filters...)
	return l
}

// Compose adds a single pipeline holding every filter in order.
func (l *Linear) Compose(e *Engine) error {
	e.AddPipeline(l.name).Add(l.Filters()...)
	return nil
}
