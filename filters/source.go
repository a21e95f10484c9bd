package filters

import (
	"context"

	"github.com/kbukum/tsengine/engine"
	"github.com/kbukum/tsengine/feed"
)

// SourceFilter pushes values pulled from a feed into its output pipe.
type SourceFilter[T any] struct {
	*engine.BaseFilter
	it feed.Iterator[T]
}

// Source returns a data-origin stage that emits one value of it per
// evaluation and completes once it is exhausted. Sources are asynchronous
// by default since iterators such as feed.FromChannel block; a synchronous
// source must wrap an iterator that never does.
func Source[T any](name string, it feed.Iterator[T], opts ...Option) *SourceFilter[T] {
	return &SourceFilter[T]{BaseFilter: newBase(name, engine.Asynchronous, opts), it: it}
}

func (f *SourceFilter[T]) Evaluate(ctx context.Context) (bool, error) {
	v, ok, err := f.it.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		f.finish()
		return false, err
	}
	if !ok {
		f.finish()
		return false, nil
	}
	return true, f.EmitValue(v)
}

func (f *SourceFilter[T]) finish() {
	if err := f.it.Close(); err != nil {
		f.Logger().WithError(err).Warn("closing feed failed")
	}
	f.Complete()
}
