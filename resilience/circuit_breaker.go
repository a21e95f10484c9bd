package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/tsengine/component"
)

// State is the position of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int `yaml:"max_failures" mapstructure:"max_failures" validate:"gte=0"`
	// Timeout is how long the circuit stays open before letting probes through.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	// HalfOpenMaxCalls probes must succeed to close the circuit again.
	HalfOpenMaxCalls int `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls" validate:"gte=0"`

	// IsFailure decides which errors count against the circuit. By default
	// every error does except context cancellation.
	IsFailure func(err error) bool `yaml:"-" mapstructure:"-"`
	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(name string, from, to State) `yaml:"-" mapstructure:"-"`
}

// DefaultCircuitBreakerConfig returns the defaults for a breaker called name.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// ApplyDefaults fills unset limits from DefaultCircuitBreakerConfig.
func (c *CircuitBreakerConfig) ApplyDefaults() {
	d := DefaultCircuitBreakerConfig(c.Name)
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAsFailure
	}
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

type transition struct{ from, to State }

// CircuitBreaker fails calls fast once a dependency keeps failing. After
// MaxFailures consecutive failures it opens and rejects every call for
// Timeout; it then lets HalfOpenMaxCalls probes through, closing again if
// they all succeed and reopening on the first failure.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	succeeded int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.ApplyDefaults()
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the circuit is open, and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.acquire() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current state. An open circuit whose timeout has
// elapsed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	s, t := cb.refreshLocked()
	cb.mu.Unlock()
	cb.notify(t)
	return s
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.moveLocked(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	cb.notify(t)
}

// Health maps the state onto component health: closed is healthy,
// half-open degraded and open unhealthy.
func (cb *CircuitBreaker) Health(_ context.Context) component.Health {
	h := component.Health{Name: cb.cfg.Name, Status: component.StatusHealthy}
	switch s := cb.State(); s {
	case StateHalfOpen:
		h.Status = component.StatusDegraded
		h.Message = "circuit " + s.String()
	case StateOpen:
		h.Status = component.StatusUnhealthy
		h.Message = fmt.Sprintf("circuit open after %d failures", cb.Failures())
	}
	return h
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	s, t := cb.refreshLocked()
	ok := s == StateClosed
	if s == StateHalfOpen && cb.inFlight < cb.cfg.HalfOpenMaxCalls {
		cb.inFlight++
		ok = true
	}
	cb.mu.Unlock()
	cb.notify(t)
	return ok
}

func (cb *CircuitBreaker) record(err error) {
	var t *transition
	cb.mu.Lock()
	if cb.cfg.IsFailure(err) {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			t = cb.moveLocked(StateOpen)
		}
	} else if err != nil {
		if cb.state == StateHalfOpen && cb.inFlight > 0 {
			cb.inFlight--
		}
	} else {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.succeeded++
			if cb.succeeded >= cb.cfg.HalfOpenMaxCalls {
				t = cb.moveLocked(StateClosed)
			}
		}
	}
	cb.mu.Unlock()
	cb.notify(t)
}

// refreshLocked moves an expired open circuit to half-open.
func (cb *CircuitBreaker) refreshLocked() (State, *transition) {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		return StateHalfOpen, cb.moveLocked(StateHalfOpen)
	}
	return cb.state, nil
}

func (cb *CircuitBreaker) moveLocked(to State) *transition {
	if cb.state == to {
		return nil
	}
	t := &transition{from: cb.state, to: to}
	cb.state = to
	cb.inFlight = 0
	cb.succeeded = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
	return t
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}
