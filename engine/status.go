package engine

import "sync/atomic"

// Status is the lifecycle state of a filter or pipeline.
type Status int32

const (
	// StatusInit means constructed but not yet evaluated.
	StatusInit Status = iota
	// StatusRunning means evaluation has begun.
	StatusRunning
	// StatusCompleted is terminal: no more data will ever be produced.
	StatusCompleted
	// StatusFailed is terminal for pipelines whose loop returned an error.
	// Filters never enter it.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether s is Completed or Failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// statusCell holds a Status that is written by one goroutine and read by
// many. Every transition is a single atomic operation.
type statusCell struct {
	v atomic.Int32
}

func (c *statusCell) load() Status { return Status(c.v.Load()) }

func (c *statusCell) store(s Status) { c.v.Store(int32(s)) }

func (c *statusCell) cas(from, to Status) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}

// EngineStatus is the lifecycle state of an Engine. It only moves forward.
type EngineStatus int32

const (
	EngineInitialized EngineStatus = iota
	EngineComposed
	EngineRunning
	EngineStopped
)

func (s EngineStatus) String() string {
	switch s {
	case EngineInitialized:
		return "initialized"
	case EngineComposed:
		return "composed"
	case EngineRunning:
		return "running"
	case EngineStopped:
		return "stopped"
	}
	return "unknown"
}

type engineStatusCell struct {
	v atomic.Int32
}

func (c *engineStatusCell) load() EngineStatus { return EngineStatus(c.v.Load()) }

// advance moves the status forward to s. It never moves backwards and
// reports whether the status changed.
func (c *engineStatusCell) advance(s EngineStatus) bool {
	for {
		cur := c.v.Load()
		if cur >= int32(s) {
			return false
		}
		if c.v.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}
