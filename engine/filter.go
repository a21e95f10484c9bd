package engine

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/tsengine/logger"
)

// Mode selects how a filter is scheduled.
type Mode int

const (
	// Synchronous filters are evaluated on their pipeline's loop, in
	// composition order.
	Synchronous Mode = iota
	// Asynchronous filters run on a dedicated goroutine each.
	Asynchronous
)

func (m Mode) String() string {
	if m == Asynchronous {
		return "async"
	}
	return "sync"
}

// Filter is one processing stage of a pipeline.
//
// Filter is sealed: concrete filters embed *BaseFilter, which owns the
// stage's status and pipe endpoints, and override Evaluate.
type Filter interface {
	// Name identifies the filter in logs, metrics and snapshots.
	Name() string
	// Mode reports how the filter is scheduled.
	Mode() Mode
	// Status reports the filter's lifecycle state.
	Status() Status
	// Input returns the pipe the filter consumes, or nil.
	Input() *Pipe
	// Output returns the pipe the filter produces into, or nil.
	Output() *Pipe
	// IsStart reports whether the filter is the first stage of p.
	IsStart(p *Pipeline) bool
	// Evaluate performs one step of work. It must not block on pipe
	// operations. It reports whether the step produced output; a step that
	// merely consumed or found nothing to do returns false. A returned
	// error fails the filter's pipeline.
	Evaluate(ctx context.Context) (bool, error)

	base() *BaseFilter
}

// FilterOption configures a BaseFilter.
type FilterOption func(*BaseFilter)

// WithFilterLogger sets the logger the filter writes to. By default the
// filter inherits its pipeline's logger once added.
func WithFilterLogger(l *logger.Logger) FilterOption {
	return func(b *BaseFilter) {
		if l != nil {
			b.log.Store(l)
		}
	}
}

// BaseFilter implements the bookkeeping shared by every filter. On its own
// it is a pass-through stage: each Evaluate moves at most one message from
// input to output.
type BaseFilter struct {
	name   string
	mode   Mode
	status statusCell
	in     atomic.Pointer[Pipe]
	out    atomic.Pointer[Pipe]
	owner  atomic.Pointer[Pipeline]
	log    atomic.Pointer[logger.Logger]
}

// NewBaseFilter returns a filter in StatusInit with no pipes attached.
func NewBaseFilter(name string, mode Mode, opts ...FilterOption) *BaseFilter {
	b := &BaseFilter{name: name, mode: mode}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BaseFilter) Name() string   { return b.name }
func (b *BaseFilter) Mode() Mode     { return b.mode }
func (b *BaseFilter) Status() Status { return b.status.load() }
func (b *BaseFilter) Input() *Pipe   { return b.in.Load() }
func (b *BaseFilter) Output() *Pipe  { return b.out.Load() }

func (b *BaseFilter) base() *BaseFilter { return b }

// IsStart reports whether the filter is the first stage of p.
func (b *BaseFilter) IsStart(p *Pipeline) bool {
	if p == nil {
		return false
	}
	return p.indexOf(b) == 0
}

// Logger returns the filter's logger; it never returns nil.
func (b *BaseFilter) Logger() *logger.Logger {
	if l := b.log.Load(); l != nil {
		return l
	}
	return logger.NewNop()
}

// Evaluate moves one message from input to output.
func (b *BaseFilter) Evaluate(_ context.Context) (bool, error) {
	msg, ok, err := b.Receive()
	if err != nil || !ok {
		return false, err
	}
	return true, b.Emit(msg)
}

// Receive dequeues the next input message. When none is available and the
// input will never receive more (including when no input is attached), the
// filter is marked completed. Filters that must flush state on completion
// use Poll and Exhausted instead.
func (b *BaseFilter) Receive() (Message, bool, error) {
	in := b.Input()
	if in == nil {
		b.Complete()
		return Message{}, false, nil
	}
	done := in.upstreamDone()
	msg, ok, err := in.Dequeue()
	if err != nil || ok {
		return msg, ok, err
	}
	if done {
		b.Complete()
	}
	return Message{}, false, nil
}

// Poll dequeues the next input message without touching the filter's
// status.
func (b *BaseFilter) Poll() (Message, bool, error) {
	in := b.Input()
	if in == nil {
		return Message{}, false, nil
	}
	return in.Dequeue()
}

// Peek returns the next input message without removing it.
func (b *BaseFilter) Peek() (Message, bool, error) {
	in := b.Input()
	if in == nil {
		return Message{}, false, nil
	}
	return in.Peek()
}

// Exhausted reports whether the input is empty and will never receive
// another message. A filter with no input is always exhausted.
func (b *BaseFilter) Exhausted() bool {
	return b.Input().exhausted()
}

// Emit enqueues m on the output pipe. Emitting from a filter with no
// output attached is a structural error.
func (b *BaseFilter) Emit(m Message) error {
	return b.Output().Enqueue(m)
}

// EmitValue wraps v in a Message and emits it.
func (b *BaseFilter) EmitValue(v any) error {
	return b.Emit(NewMessage(v))
}

// Complete marks the filter as finished. Everything the filter enqueued
// before calling Complete is visible to its consumer.
func (b *BaseFilter) Complete() {
	if b.status.load() == StatusCompleted {
		return
	}
	b.status.store(StatusCompleted)
	b.Output().notify()
}

func (b *BaseFilter) markRunning() {
	b.status.cas(StatusInit, StatusRunning)
}

func (b *BaseFilter) setInput(p *Pipe)  { b.in.Store(p) }
func (b *BaseFilter) setOutput(p *Pipe) { b.out.Store(p) }

// adopt binds the filter to its pipeline. It fails when the filter already
// belongs to another pipeline.
func (b *BaseFilter) adopt(p *Pipeline, l *logger.Logger) bool {
	if !b.owner.CompareAndSwap(nil, p) {
		return false
	}
	b.log.CompareAndSwap(nil, l.WithFilter(b.name))
	return true
}
