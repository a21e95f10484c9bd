package component

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kbukum/tsengine/logger"
)

// fakeComponent records lifecycle calls into a shared journal as
// "start:name" and "stop:name".
type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	health   Health
	journal  *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	f.note("start")
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	f.note("stop")
	return f.stopErr
}

func (f *fakeComponent) Health(context.Context) Health { return f.health }

func (f *fakeComponent) note(event string) {
	if f.journal != nil {
		*f.journal = append(*f.journal, event+":"+f.name)
	}
}

func newRegistry(t *testing.T, comps ...Component) *Registry {
	t.Helper()
	r := NewRegistry(logger.NewNop())
	for _, c := range comps {
		if err := r.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}
	return r
}

func TestRegisterAndGet(t *testing.T) {
	r := newRegistry(t, &fakeComponent{name: "engine"})

	if err := r.Register(&fakeComponent{name: "engine"}); err == nil {
		t.Error("duplicate name accepted")
	}
	if c := r.Get("engine"); c == nil || c.Name() != "engine" {
		t.Errorf("Get(engine) = %v", c)
	}
	if c := r.Get("missing"); c != nil {
		t.Errorf("Get(missing) = %v", c)
	}
	if n := len(r.All()); n != 1 {
		t.Errorf("All() has %d components", n)
	}
}

func TestLifecycleOrder(t *testing.T) {
	var journal []string
	r := newRegistry(t,
		&fakeComponent{name: "telemetry", journal: &journal},
		&fakeComponent{name: "engine", journal: &journal},
		&fakeComponent{name: "server", journal: &journal},
	)

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("second StopAll: %v", err)
	}

	want := "start:telemetry start:engine start:server stop:server stop:engine stop:telemetry"
	if got := strings.Join(journal, " "); got != want {
		t.Errorf("journal = %q\nwant      %q", got, want)
	}
}

func TestStartFailureLeavesEarlierStarted(t *testing.T) {
	var journal []string
	r := newRegistry(t,
		&fakeComponent{name: "telemetry", journal: &journal},
		&fakeComponent{name: "engine", journal: &journal, startErr: fmt.Errorf("no pipelines")},
		&fakeComponent{name: "server", journal: &journal},
	)

	err := r.StartAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "engine") {
		t.Fatalf("StartAll error = %v", err)
	}
	_ = r.StopAll(context.Background())

	want := "start:telemetry start:engine stop:telemetry"
	if got := strings.Join(journal, " "); got != want {
		t.Errorf("journal = %q, want %q", got, want)
	}
}

func TestStopAllSkipsUnstarted(t *testing.T) {
	var journal []string
	r := newRegistry(t, &fakeComponent{name: "engine", journal: &journal})
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if len(journal) != 0 {
		t.Errorf("unstarted component was stopped: %v", journal)
	}
}

func TestStopAllJoinsErrors(t *testing.T) {
	errA, errB := fmt.Errorf("a"), fmt.Errorf("b")
	r := newRegistry(t,
		&fakeComponent{name: "engine", stopErr: errA},
		&fakeComponent{name: "server", stopErr: errB},
	)
	_ = r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("StopAll error = %v, want both", err)
	}
}

func TestHealthAll(t *testing.T) {
	r := newRegistry(t,
		&fakeComponent{name: "engine", health: Health{Name: "engine", Status: StatusHealthy, Message: "running"}},
		&fakeComponent{name: "server", health: Health{Name: "server", Status: StatusUnhealthy, Message: "listen failed"}},
	)
	results := r.HealthAll(context.Background())
	if len(results) != 2 || results[0].Status != StatusHealthy || results[1].Status != StatusUnhealthy {
		t.Fatalf("HealthAll = %+v", results)
	}
	if got := Overall(results); got != StatusUnhealthy {
		t.Errorf("Overall = %s", got)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name    string
		results []Health
		want    HealthStatus
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", []Health{{Status: StatusHealthy}, {Status: StatusHealthy}}, StatusHealthy},
		{"degraded", []Health{{Status: StatusHealthy}, {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", []Health{{Status: StatusDegraded}, {Status: StatusUnhealthy}, {Status: StatusHealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.results); got != tt.want {
				t.Errorf("Overall() = %s, want %s", got, tt.want)
			}
		})
	}
}

type describedComponent struct {
	fakeComponent
	desc Description
}

func (d *describedComponent) Describe() Description { return d.desc }

func TestDescribe(t *testing.T) {
	r := newRegistry(t,
		&fakeComponent{name: "plain"},
		&describedComponent{fakeComponent: fakeComponent{name: "http"}, desc: Description{Type: "server", Port: 8080}},
	)

	descs := r.Describe()
	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if descs[0].Name != "http" || descs[0].Port != 8080 {
		t.Errorf("unexpected description %+v", descs[0])
	}
}
