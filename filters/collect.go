package filters

import (
	"context"
	"sync"

	"github.com/kbukum/tsengine/engine"
)

// CollectFilter stores every payload it receives. Reads are safe while the
// pipeline runs.
type CollectFilter[T any] struct {
	*engine.BaseFilter
	mu    sync.Mutex
	items []T
}

// Collect returns a synchronous sink. Placed mid-pipeline it also forwards
// each message.
func Collect[T any](name string, opts ...Option) *CollectFilter[T] {
	return &CollectFilter[T]{BaseFilter: newBase(name, engine.Synchronous, opts)}
}

func (f *CollectFilter[T]) Evaluate(_ context.Context) (bool, error) {
	msg, ok, err := f.Receive()
	if err != nil || !ok {
		return false, err
	}
	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	f.items = append(f.items, v)
	f.mu.Unlock()

	if f.Output() == nil {
		return false, nil
	}
	return true, f.Emit(msg)
}

// Items returns a copy of what has been collected so far.
func (f *CollectFilter[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]T, len(f.items))
	copy(out, f.items)
	return out
}

// Len returns the number of collected payloads.
func (f *CollectFilter[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
