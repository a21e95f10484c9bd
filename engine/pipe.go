package engine

import (
	"sync"

	apperrors "github.com/kbukum/tsengine/errors"
)

// compactThreshold is the number of consumed slots a pipe tolerates at the
// head of its buffer before shifting the live messages down.
const compactThreshold = 64

// Pipe is an unbounded FIFO connecting exactly one producing filter (its
// source) to exactly one consuming filter (its end). Enqueue and Dequeue are
// safe to call from different goroutines and never block.
//
// An unattached pipe is represented by a nil *Pipe. Queue operations on it
// fail with an UNATTACHED_PIPE error, while Len, Closed and Ready treat it
// as permanently empty.
type Pipe struct {
	mu     sync.Mutex
	items  []Message
	head   int
	seq    uint64
	closed bool
	source Filter
	end    Filter
	wake   chan struct{}
}

// NewPipe returns an empty pipe with no endpoints. Pipelines create their
// internal pipes themselves; NewPipe is exported for filters tested in
// isolation and for external producers.
func NewPipe() *Pipe {
	return &Pipe{wake: make(chan struct{}, 1)}
}

// Enqueue appends m to the tail of the pipe and wakes the consumer.
func (p *Pipe) Enqueue(m Message) error {
	if p == nil {
		return apperrors.UnattachedPipe("enqueue")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return apperrors.InvalidState("pipe", "closed", "enqueue to")
	}
	p.seq++
	m.seq = p.seq
	p.items = append(p.items, m)
	wake := p.wake
	p.mu.Unlock()

	signal(wake)
	return nil
}

// Dequeue removes and returns the head message. ok is false when the pipe
// is empty.
func (p *Pipe) Dequeue() (Message, bool, error) {
	if p == nil {
		return Message{}, false, apperrors.UnattachedPipe("dequeue")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.head == len(p.items) {
		return Message{}, false, nil
	}
	m := p.items[p.head]
	p.items[p.head] = Message{}
	p.head++

	switch {
	case p.head == len(p.items):
		p.items = p.items[:0]
		p.head = 0
	case p.head >= compactThreshold && p.head*2 >= len(p.items):
		n := copy(p.items, p.items[p.head:])
		clear(p.items[n:])
		p.items = p.items[:n]
		p.head = 0
	}
	return m, true, nil
}

// Peek returns the head message without removing it.
func (p *Pipe) Peek() (Message, bool, error) {
	if p == nil {
		return Message{}, false, apperrors.UnattachedPipe("peek")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.head == len(p.items) {
		return Message{}, false, nil
	}
	return p.items[p.head], true, nil
}

// Len returns the number of messages waiting in the pipe.
func (p *Pipe) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) - p.head
}

// Source returns the filter that produces into the pipe, or nil for a pipe
// fed from outside the pipeline.
func (p *Pipe) Source() Filter {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// End returns the filter that consumes the pipe, or nil for a pipe drained
// from outside the pipeline.
func (p *Pipe) End() Filter {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.end
}

// Close marks an externally fed pipe as finished. Messages already queued
// are still delivered; further Enqueue calls fail. Close is idempotent.
func (p *Pipe) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.closed = true
	wake := p.wake
	p.mu.Unlock()
	signal(wake)
}

// Closed reports whether Close has been called.
func (p *Pipe) Closed() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Ready returns a channel that receives a value after an Enqueue or Close,
// or after the source filter completes. Signals coalesce: one receive may
// stand for several events. A nil pipe returns a nil channel.
func (p *Pipe) Ready() <-chan struct{} {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wake
}

// upstreamDone reports whether nothing more will ever be enqueued: the
// source filter completed, or an external producer closed the pipe.
// Callers must read it before checking emptiness; the reverse order can
// miss a message enqueued just before the source completed.
func (p *Pipe) upstreamDone() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	closed, src := p.closed, p.source
	p.mu.Unlock()
	if closed {
		return true
	}
	return src != nil && src.Status() == StatusCompleted
}

// exhausted reports whether the pipe is empty and will stay empty.
func (p *Pipe) exhausted() bool {
	done := p.upstreamDone()
	return done && p.Len() == 0
}

func (p *Pipe) attach(source, end Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if source != nil {
		p.source = source
	}
	if end != nil {
		p.end = end
	}
}

// notify is the consumer-side hook used when the source filter completes.
func (p *Pipe) notify() {
	if p == nil {
		return
	}
	p.mu.Lock()
	wake := p.wake
	p.mu.Unlock()
	signal(wake)
}

// shareWake points the pipe's readiness signal at ch, so one loop can wait
// on every pipe it consumes.
func (p *Pipe) shareWake(ch chan struct{}) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.wake = ch
	p.mu.Unlock()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
