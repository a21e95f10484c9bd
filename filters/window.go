package filters

import (
	"context"

	"gonum.org/v1/gonum/stat"

	"github.com/kbukum/tsengine/engine"
)

// Reducer condenses a window of samples, oldest first, into one value.
type Reducer func(samples []float64) float64

// Rolling statistics over a window.
var (
	Mean     Reducer = func(x []float64) float64 { return stat.Mean(x, nil) }
	StdDev   Reducer = func(x []float64) float64 { return stat.StdDev(x, nil) }
	Variance Reducer = func(x []float64) float64 { return stat.Variance(x, nil) }
)

// Stat is a window result: the reduced value together with the payload
// that completed the window.
type Stat[T any] struct {
	Item  T
	Value float64
	// Count is the number of payloads the window has seen so far.
	Count int
}

// WindowFilter computes a rolling statistic over the last size samples.
type WindowFilter[T any] struct {
	*engine.BaseFilter
	size    int
	sample  func(T) float64
	reduce  Reducer
	samples []float64
	count   int
}

// Window returns a synchronous stage that extracts a sample from each
// payload and, once size samples have arrived, emits a Stat for every
// further payload. A size below 1 is treated as 1.
func Window[T any](name string, size int, sample func(T) float64, reduce Reducer, opts ...Option) *WindowFilter[T] {
	if size < 1 {
		size = 1
	}
	return &WindowFilter[T]{
		BaseFilter: newBase(name, engine.Synchronous, opts),
		size:       size,
		sample:     sample,
		reduce:     reduce,
		samples:    make([]float64, 0, size),
	}
}

// Samples is the sample function for float64 payloads.
func Samples(v float64) float64 { return v }

func (f *WindowFilter[T]) Evaluate(_ context.Context) (bool, error) {
	msg, ok, err := f.Receive()
	if err != nil || !ok {
		return false, err
	}
	v, err := decode[T](f.Name(), msg)
	if err != nil {
		return false, err
	}

	if len(f.samples) == f.size {
		copy(f.samples, f.samples[1:])
		f.samples = f.samples[:f.size-1]
	}
	f.samples = append(f.samples, f.sample(v))
	f.count++
	if len(f.samples) < f.size {
		return false, nil
	}
	return true, f.EmitValue(Stat[T]{Item: v, Value: f.reduce(f.samples), Count: f.count})
}
