package filters

import (
	"context"

	"github.com/kbukum/tsengine/engine"
)

// MapFilter transforms each payload with a function.
type MapFilter[T, U any] struct {
	*engine.BaseFilter
	fn func(context.Context, T) (U, error)
}

// Map returns a synchronous stage that emits fn(v) for every payload v.
func Map[T, U any](name string, fn func(context.Context, T) (U, error), opts ...Option) *MapFilter[T, U] {
	return &MapFilter[T, U]{BaseFilter: newBase(name, engine.Synchronous, opts), fn: fn}
}

func (f *MapFilter[T, U]) Evaluate(ctx context.Context) (bool, error) {
	msg, ok, err := f.Receive()
	if err != nil || !ok {
		return false, err
	}
	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}
	out, err := f.fn(ctx, v)
	if err != nil {
		return false, err
	}
	return true, f.EmitValue(out)
}

// ExpandFilter emits zero or more payloads per input.
type ExpandFilter[T, U any] struct {
	*engine.BaseFilter
	fn func(context.Context, T) ([]U, error)
}

// Expand returns a synchronous stage that emits every element of fn(v), in
// order, for each payload v. An empty result drops the input.
func Expand[T, U any](name string, fn func(context.Context, T) ([]U, error), opts ...Option) *ExpandFilter[T, U] {
	return &ExpandFilter[T, U]{BaseFilter: newBase(name, engine.Synchronous, opts), fn: fn}
}

func (f *ExpandFilter[T, U]) Evaluate(ctx context.Context) (bool, error) {
	msg, ok, err := f.Receive()
	if err != nil || !ok {
		return false, err
	}
	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}
	out, err := f.fn(ctx, v)
	if err != nil {
		return false, err
	}
	for _, u := range out {
		if err := f.EmitValue(u); err != nil {
			return false, err
		}
	}
	return len(out) > 0, nil
}

// ScanFilter forwards the payloads that satisfy a predicate.
type ScanFilter[T any] struct {
	*engine.BaseFilter
	pred func(T) bool
}

// Scan returns a synchronous stage that forwards messages whose payload
// satisfies pred and drops the rest. Forwarded messages are not copied.
func Scan[T any](name string, pred func(T) bool, opts ...Option) *ScanFilter[T] {
	return &ScanFilter[T]{BaseFilter: newBase(name, engine.Synchronous, opts), pred: pred}
}

func (f *ScanFilter[T]) Evaluate(_ context.Context) (bool, error) {
	msg, ok, err := f.Receive()
	if err != nil || !ok {
		return false, err
	}
	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}
	if !f.pred(v) {
		return false, nil
	}
	return true, f.Emit(msg)
}

// TapFilter runs a side effect on each payload and forwards it unchanged.
type TapFilter[T any] struct {
	*engine.BaseFilter
	fn func(context.Context, T) error
}

// Tap returns a synchronous stage that calls fn for every payload and then
// forwards the message. A Tap at the end of a pipeline forwards nothing.
func Tap[T any](name string, fn func(context.Context, T) error, opts ...Option) *TapFilter[T] {
	return &TapFilter[T]{BaseFilter: newBase(name, engine.Synchronous, opts), fn: fn}
}

func (f *TapFilter[T]) Evaluate(ctx context.Context) (bool, error) {
	msg, ok, err := f.Receive()
	if err != nil || !ok {
		return false, err
	}
	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}
	if err := f.fn(ctx, v); err != nil {
		return false, err
	}
	if f.Output() == nil {
		return false, nil
	}
	return true, f.Emit(msg)
}
