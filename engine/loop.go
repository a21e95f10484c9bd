package engine

import (
	"context"
	"fmt"
	"runtime/pprof"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/kbukum/tsengine/errors"
)

// idleWait paces a loop whose last pass produced nothing. Waits grow
// exponentially between the configured bounds and are cut short by a wake
// signal or cancellation.
type idleWait struct {
	b   *backoff.ExponentialBackOff
	max time.Duration
}

func newIdleWait(s Settings) *idleWait {
	s.ApplyDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.IdleBackoffMin
	b.MaxInterval = s.IdleBackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return &idleWait{b: b, max: s.IdleBackoffMax}
}

func (w *idleWait) reset() { w.b.Reset() }

// wait blocks until wake fires, the next back-off interval elapses or ctx
// is cancelled. It returns false only on cancellation.
func (w *idleWait) wait(ctx context.Context, wake <-chan struct{}) bool {
	d := w.b.NextBackOff()
	if d <= 0 || d > w.max {
		d = w.max
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-wake:
		w.b.Reset()
		return true
	case <-t.C:
		return true
	}
}

// evaluate runs one Evaluate step, turning a panic into a FILTER_PANIC
// error and wrapping any other failure with the filter's name.
func evaluate(ctx context.Context, f Filter) (produced bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			produced = false
			err = apperrors.FilterPanic(f.Name(), r)
		}
	}()
	produced, err = f.Evaluate(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeFilterFailed) || apperrors.HasCode(err, apperrors.ErrCodeFilterPanic) {
			return produced, err
		}
		return produced, apperrors.FilterFailed(f.Name(), err)
	}
	return produced, nil
}

// step evaluates f once and reports whether it did any work: produced
// output or drained its input. A consumer working through a backlog keeps
// its loop busy instead of backing off between messages.
func step(ctx context.Context, f Filter) (bool, error) {
	in := f.Input()
	backlog := in.Len()
	produced, err := evaluate(ctx, f)
	return produced || in.Len() < backlog, err
}

// runFilter evaluates f until it completes or ctx is cancelled.
// Cancellation is not an error.
func runFilter(ctx context.Context, f Filter, s Settings) error {
	var wake <-chan struct{}
	if in := f.Input(); in != nil {
		wake = in.Ready()
	}
	idle := newIdleWait(s)
	f.base().markRunning()

	for {
		if ctx.Err() != nil {
			return nil
		}
		active, err := step(ctx, f)
		if err != nil {
			return err
		}
		if f.Status() == StatusCompleted {
			return nil
		}
		if active {
			idle.reset()
			continue
		}
		if !idle.wait(ctx, wake) {
			return nil
		}
	}
}

// labeled runs fn with pprof goroutine labels so profiles and goroutine
// dumps show which pipeline or filter a goroutine serves.
func labeled(ctx context.Context, fn func(context.Context) error, kv ...string) error {
	var err error
	pprof.Do(ctx, pprof.Labels(kv...), func(ctx context.Context) {
		err = fn(ctx)
	})
	return err
}

// Task is a handle on a filter evaluated on its own goroutine.
type Task struct {
	name string
	done chan struct{}
	err  error
}

// EvaluateAsync starts evaluating f on a new goroutine until it completes
// or ctx is cancelled. Pipelines use it for asynchronous filters; it can
// also drive a single filter outside any pipeline.
func EvaluateAsync(ctx context.Context, f Filter, s Settings) *Task {
	t := &Task{name: f.Name(), done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = labeled(ctx, func(ctx context.Context) error {
			return runFilter(ctx, f, s)
		}, "filter", f.Name())
	}()
	return t
}

// Name returns the evaluated filter's name.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task exits and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

func (t *Task) String() string {
	return fmt.Sprintf("task(%s)", t.name)
}
