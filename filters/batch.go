package filters

import (
	"context"

	"github.com/kbukum/tsengine/engine"
)

// BatchFilter groups consecutive payloads into slices.
type BatchFilter[T any] struct {
	*engine.BaseFilter
	size    int
	pending []T
}

// Batch returns a synchronous stage that emits a []T for every size
// payloads. The remainder is emitted as a shorter batch once the input is
// exhausted. A size below 1 is treated as 1.
func Batch[T any](name string, size int, opts ...Option) *BatchFilter[T] {
	if size < 1 {
		size = 1
	}
	return &BatchFilter[T]{BaseFilter: newBase(name, engine.Synchronous, opts), size: size}
}

func (f *BatchFilter[T]) Evaluate(_ context.Context) (bool, error) {
	msg, ok, err := f.Poll()
	if err != nil {
		return false, err
	}
	if !ok {
		if !f.Exhausted() {
			return false, nil
		}
		produced := len(f.pending) > 0
		if produced {
			if err := f.flush(); err != nil {
				return false, err
			}
		}
		f.Complete()
		return produced, nil
	}

	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}
	f.pending = append(f.pending, v)
	if len(f.pending) < f.size {
		return false, nil
	}
	return true, f.flush()
}

func (f *BatchFilter[T]) flush() error {
	batch := f.pending
	f.pending = make([]T, 0, f.size)
	return f.EmitValue(batch)
}
