package feed

import "context"

// Iterator yields values one at a time. Next returns ok == false once the
// stream is exhausted. Callers Close the iterator when done with it.
type Iterator[T any] interface {
	Next(ctx context.Context) (v T, ok bool, err error)
	Close() error
}

// FromFunc adapts a generator to Iterator. closer may be nil.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error), closer func() error) Iterator[T] {
	return &funcIter[T]{next: next, closer: closer}
}

// FromSlice iterates over items without copying them.
func FromSlice[T any](items []T) Iterator[T] {
	i := 0
	return FromFunc(func(context.Context) (T, bool, error) {
		var zero T
		if i >= len(items) {
			return zero, false, nil
		}
		i++
		return items[i-1], true, nil
	}, nil)
}

// FromChannel receives from ch until it is closed. Next blocks on an empty
// channel and fails with ctx's error if ctx ends first.
func FromChannel[T any](ch <-chan T) Iterator[T] {
	return FromFunc(func(ctx context.Context) (T, bool, error) {
		select {
		case v, open := <-ch:
			return v, open, nil
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}, nil)
}

// Collect drains it into a slice and closes it. On error the values read
// so far are returned with it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for {
		v, ok, err := it.Next(ctx)
		if err != nil || !ok {
			return out, err
		}
		out = append(out, v)
	}
}

type funcIter[T any] struct {
	next   func(context.Context) (T, bool, error)
	closer func() error
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) { return it.next(ctx) }

func (it *funcIter[T]) Close() error {
	if it.closer == nil {
		return nil
	}
	return it.closer()
}
