package filters

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/kbukum/tsengine/engine"
)

// ThrottleFilter forwards messages no faster than a rate limiter allows.
type ThrottleFilter struct {
	*engine.BaseFilter
	limiter *rate.Limiter
}

// Throttle returns a synchronous stage that forwards a message only when
// limiter has a token for it. Over-budget messages stay queued in the input
// pipe, so Evaluate never blocks and ordering is kept.
func Throttle(name string, limiter *rate.Limiter, opts ...Option) *ThrottleFilter {
	return &ThrottleFilter{BaseFilter: newBase(name, engine.Synchronous, opts), limiter: limiter}
}

// PerSecond builds a limiter for n messages per second with bursts of burst.
func PerSecond(n float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(n), burst)
}

func (f *ThrottleFilter) Evaluate(_ context.Context) (bool, error) {
	_, ok, err := f.Peek()
	if err != nil {
		return false, err
	}
	if !ok {
		if f.Exhausted() {
			f.Complete()
		}
		return false, nil
	}
	if !f.limiter.Allow() {
		return false, nil
	}
	msg, ok, err := f.Poll()
	if err != nil || !ok {
		return false, err
	}
	return true, f.Emit(msg)
}
