package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/tsengine/component"
	apperrors "github.com/kbukum/tsengine/errors"
)

var _ component.Component = (*Engine)(nil)

func newTestEngine(cfg Composer) *Engine {
	return New(cfg, WithSettings(fastSettings))
}

func TestEngine_Lifecycle(t *testing.T) {
	var out *Pipe
	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		p := e.AddPipeline("ticks")
		p.Add(newSliceSource("src", Synchronous, ints(1, 3)...), NewBaseFilter("pass", Synchronous))
		out = p.Outlet()
		return nil
	}))
	if e.Status() != EngineInitialized {
		t.Fatalf("expected initialized, got %s", e.Status())
	}
	if err := e.Wait(); !apperrors.HasCode(err, apperrors.ErrCodeInvalidState) {
		t.Fatalf("expected INVALID_STATE waiting on an unstarted engine, got %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if e.RunID() == "" || e.Context() == nil {
		t.Fatal("expected run id and context after start")
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if e.Status() != EngineStopped {
		t.Fatalf("expected stopped, got %s", e.Status())
	}
	if got := drain(t, out); !equalSlices(got, ints(1, 3)) {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
	if err := e.Start(context.Background()); !apperrors.HasCode(err, apperrors.ErrCodeInvalidState) {
		t.Fatalf("expected INVALID_STATE on second start, got %v", err)
	}
}

func TestEngine_PipelineIsolation(t *testing.T) {
	outs := make(map[string]*Pipe)
	ranges := map[string][2]int{"a": {1, 5}, "b": {6, 10}, "c": {11, 15}}

	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		for _, name := range []string{"a", "b", "c"} {
			r := ranges[name]
			p := e.AddPipeline(name)
			p.Add(
				newSliceSource(name+"-src", Asynchronous, ints(r[0], r[1])...),
				NewBaseFilter(name+"-calc", Synchronous),
				NewBaseFilter(name+"-risk", Synchronous),
			)
			outs[name] = p.Outlet()
		}
		return nil
	}))

	if err := e.RunAsync(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	for name, r := range ranges {
		if got := drain(t, outs[name]); !equalSlices(got, ints(r[0], r[1])) {
			t.Errorf("pipeline %s: expected %v, got %v", name, ints(r[0], r[1]), got)
		}
	}
	if len(e.Pipelines()) != 3 {
		t.Fatalf("expected 3 pipelines, got %d", len(e.Pipelines()))
	}
}

func TestEngine_FailureIsolated(t *testing.T) {
	var healthyOut *Pipe
	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		bad := newFuncFilter("bad", Synchronous, func(context.Context, *funcFilter) (bool, error) {
			return false, errors.New("feed disconnected")
		})
		e.AddPipeline("bad").Add(newSliceSource("src", Synchronous, 1), bad)

		good := e.AddPipeline("good")
		good.Add(newSliceSource("src", Synchronous, ints(1, 20)...), NewBaseFilter("pass", Synchronous))
		healthyOut = good.Outlet()
		return nil
	}))

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := e.Wait()
	if !apperrors.HasCode(err, apperrors.ErrCodeFilterFailed) {
		t.Fatalf("expected FILTER_FAILED from the bad pipeline, got %v", err)
	}
	if got := drain(t, healthyOut); !equalSlices(got, ints(1, 20)) {
		t.Fatalf("expected healthy pipeline to finish, got %v", got)
	}

	good, _ := e.Pipeline("good")
	bad, _ := e.Pipeline("bad")
	if good.Status() != StatusCompleted || bad.Status() != StatusFailed {
		t.Fatalf("unexpected statuses good=%s bad=%s", good.Status(), bad.Status())
	}
	if h := e.Health(context.Background()); h.Status != component.StatusDegraded {
		t.Fatalf("expected degraded health, got %s", h.Status)
	}
}

func TestEngine_SkipsInvalidPipelines(t *testing.T) {
	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		e.AddPipeline("empty")
		e.AddPipeline("ok").Add(newSliceSource("src", Synchronous))
		return nil
	}))

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed with one valid pipeline, got %v", err)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	empty, _ := e.Pipeline("empty")
	if empty.Status() != StatusInit {
		t.Fatalf("expected invalid pipeline to stay init, got %s", empty.Status())
	}
}

func TestEngine_StartErrors(t *testing.T) {
	composeErr := apperrors.InvalidInput("positions", "no positions")
	tests := []struct {
		name string
		cfg  Composer
		code apperrors.ErrorCode
	}{
		{"nil composer", nil, apperrors.ErrCodeNotImplemented},
		{"nil compose func", ComposeFunc(nil), apperrors.ErrCodeNotImplemented},
		{"compose error", ComposeFunc(func(*Engine) error { return composeErr }), apperrors.ErrCodeInvalidInput},
		{"no pipelines", ComposeFunc(func(*Engine) error { return nil }), apperrors.ErrCodeInvalidState},
		{"only invalid pipelines", ComposeFunc(func(e *Engine) error {
			e.AddPipeline("empty")
			return nil
		}), apperrors.ErrCodeInvalidState},
		{"compose panics", ComposeFunc(func(*Engine) error { panic("oops") }), apperrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.cfg)
			err := e.Start(context.Background())
			if !apperrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if e.Status() != EngineStopped {
				t.Fatalf("expected stopped, got %s", e.Status())
			}
			waitDone(t, e.Done(), time.Second)
			if err := e.Wait(); !apperrors.HasCode(err, tt.code) {
				t.Fatalf("expected Wait to report %s, got %v", tt.code, err)
			}
		})
	}
}

func TestEngine_CancelStopsEverything(t *testing.T) {
	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		for _, name := range []string{"x", "y"} {
			idle := newFuncFilter(name+"-idle", Asynchronous, func(context.Context, *funcFilter) (bool, error) {
				return false, nil
			})
			e.AddPipeline(name).Add(idle, NewBaseFilter(name+"-end", Synchronous))
		}
		return nil
	}))

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h := e.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Fatalf("expected healthy while running, got %s (%s)", h.Status, h.Message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	e.Cancel()
	if e.Status() != EngineStopped {
		t.Fatalf("expected stopped, got %s", e.Status())
	}
}

func TestEngine_CancelFreezesPipes(t *testing.T) {
	var pipes []*Pipe
	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		n := 0
		ticker := newFuncFilter("ticker", Asynchronous, func(_ context.Context, f *funcFilter) (bool, error) {
			n++
			return true, f.EmitValue(n)
		})
		relay := NewBaseFilter("relay", Synchronous)
		forward := NewBaseFilter("forward", Asynchronous)
		p := e.AddPipeline("endless").Add(ticker, relay, forward)
		pipes = []*Pipe{ticker.Output(), relay.Output(), p.Outlet()}
		return nil
	}))

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for pipes[2].Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no message reached the outlet")
		}
		time.Sleep(time.Millisecond)
	}

	e.Cancel()
	waitDone(t, e.Done(), time.Second)

	before := make([]int, len(pipes))
	for i, p := range pipes {
		before[i] = p.Len()
	}
	time.Sleep(20 * time.Millisecond)
	for i, p := range pipes {
		if got := p.Len(); got != before[i] {
			t.Errorf("pipe %d changed after cancel: %d -> %d", i, before[i], got)
		}
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
}

func TestEngine_ParentContextCancels(t *testing.T) {
	e := newTestEngine(ComposeFunc(func(e *Engine) error {
		idle := newFuncFilter("idle", Synchronous, func(context.Context, *funcFilter) (bool, error) {
			return false, nil
		})
		e.AddPipeline("p").Add(idle)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	waitDone(t, e.Done(), time.Second)
}

func TestEngine_HealthBeforeStart(t *testing.T) {
	e := newTestEngine(ComposeFunc(func(*Engine) error { return nil }))
	h := e.Health(context.Background())
	if h.Status != component.StatusDegraded || h.Name != "engine" {
		t.Fatalf("unexpected health before start: %+v", h)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}

func TestEngine_Snapshot(t *testing.T) {
	e := New(NewLinear("solo", newSliceSource("src", Synchronous)), WithName("analysis"), WithSettings(fastSettings))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = e.Wait()

	s := e.Snapshot()
	if s.Name != "analysis" || s.RunID == "" || s.StartedAt == nil {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if s.Status != "stopped" || len(s.Pipelines) != 1 || s.Pipelines[0].Status != "completed" {
		t.Fatalf("unexpected snapshot state: %+v", s)
	}
}

func TestEngineStatus_Advance(t *testing.T) {
	var c engineStatusCell
	if !c.advance(EngineRunning) {
		t.Fatal("expected forward move")
	}
	if c.advance(EngineComposed) {
		t.Fatal("status must never move backwards")
	}
	if c.load() != EngineRunning {
		t.Fatalf("expected running, got %s", c.load())
	}
}
