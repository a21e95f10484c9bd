package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// --- test helpers ---

var fastSettings = Settings{IdleBackoffMin: 10 * time.Microsecond, IdleBackoffMax: time.Millisecond}

// sliceSource emits its items one per evaluation, then completes.
type sliceSource struct {
	*BaseFilter
	items []any
	next  int
	evals atomic.Int64
}

func newSliceSource(name string, mode Mode, items ...any) *sliceSource {
	return &sliceSource{BaseFilter: NewBaseFilter(name, mode), items: items}
}

func (s *sliceSource) Evaluate(_ context.Context) (bool, error) {
	s.evals.Add(1)
	if s.next >= len(s.items) {
		s.Complete()
		return false, nil
	}
	v := s.items[s.next]
	s.next++
	return true, s.EmitValue(v)
}

// funcFilter delegates Evaluate to fn.
type funcFilter struct {
	*BaseFilter
	fn func(ctx context.Context, f *funcFilter) (bool, error)
}

func newFuncFilter(name string, mode Mode, fn func(ctx context.Context, f *funcFilter) (bool, error)) *funcFilter {
	return &funcFilter{BaseFilter: NewBaseFilter(name, mode), fn: fn}
}

func (f *funcFilter) Evaluate(ctx context.Context) (bool, error) {
	return f.fn(ctx, f)
}

func ints(from, to int) []any {
	out := make([]any, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func drain(t *testing.T, p *Pipe) []any {
	t.Helper()
	var out []any
	for {
		m, ok, err := p.Dequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, m.Payload())
	}
}

func waitDone(t *testing.T, done <-chan struct{}, d time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timed out after %v", d)
	}
}

func equalSlices(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
