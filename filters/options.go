package filters

import (
	"fmt"

	"github.com/kbukum/tsengine/engine"
	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
)

// Option configures a stage.
type Option func(*options)

type options struct {
	mode engine.Mode
	log  *logger.Logger
}

// WithMode overrides the stage's scheduling mode.
func WithMode(m engine.Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithLogger sets the stage's logger instead of inheriting the pipeline's.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func newBase(name string, mode engine.Mode, opts []Option) *engine.BaseFilter {
	o := options{mode: mode}
	for _, opt := range opts {
		opt(&o)
	}
	var fopts []engine.FilterOption
	if o.log != nil {
		fopts = append(fopts, engine.WithFilterLogger(o.log))
	}
	return engine.NewBaseFilter(name, o.mode, fopts...)
}

// decode asserts the payload of m to T.
func decode[T any](stage string, m engine.Message) (T, error) {
	v, ok := engine.PayloadAs[T](m)
	if !ok {
		return v, apperrors.InvalidInput("payload",
			fmt.Sprintf("stage %s expects %T, got %T", stage, v, m.Payload()))
	}
	return v, nil
}
