// Package engine is a pipe-and-filter dataflow runtime for time-series
// analysis.
//
// A Filter is a named processing stage with one input and one output Pipe.
// A Pipeline is an ordered composition of filters; adding a filter wires a
// new Pipe between it and the previous one. An Engine owns any number of
// pipelines, the cancellation signal they share, and the overall lifecycle.
// Topology is supplied by a Composer (usually a Configuration
// specialization) whose Compose method the engine calls on Start.
//
// # Execution model
//
// Synchronous filters are evaluated cooperatively on their pipeline's own
// goroutine, once per pass in composition order, so stage i always gets a
// chance to drain before stage i+1 is polled again. Asynchronous filters
// run on their own goroutine each and are not ordered relative to the
// pipeline loop. A pipeline reports completion only after its synchronous
// filters have all completed and every asynchronous filter it owns has
// exited.
//
// Pipe operations never block. When a pass over the synchronous filters
// produces nothing, the loop waits for an enqueue on one of its pipes or an
// exponential idle back-off, whichever comes first.
//
// Pipes are unbounded: there is no flow control, and a stalled consumer
// lets its input pipe grow without limit.
//
// # Usage
//
//	cfg := engine.NewLinear("ticks", feed, scanner, report)
//	e := engine.New(cfg, engine.WithLogger(log))
//	if err := e.Start(ctx); err != nil {
//	    return err
//	}
//	defer e.Cancel()
//	return e.Wait()
package engine
