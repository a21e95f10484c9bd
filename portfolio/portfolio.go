package portfolio

import (
	"sync"

	"github.com/kbukum/tsengine/engine"
	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
)

// Portfolio is an engine configuration holding one position per symbol.
// It composes one pipeline per position, named after the symbol.
type Portfolio struct {
	log *logger.Logger

	mu        sync.RWMutex
	positions []*Position
}

// Option configures a Portfolio.
type Option func(*Portfolio)

// WithLogger sets the portfolio's logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Portfolio) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns an empty portfolio.
func New(opts ...Option) *Portfolio {
	p := &Portfolio{log: logger.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("portfolio")
	return p
}

// AddPosition appends pos. A nil position or a symbol already held is
// rejected.
func (p *Portfolio) AddPosition(pos *Position) error {
	if pos == nil {
		return apperrors.InvalidInput("position", "position is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexLocked(pos.Symbol()) >= 0 {
		p.log.Warn("ignoring duplicate position", logger.Fields("symbol", pos.Symbol()))
		return apperrors.AlreadyExists("position").WithDetail("symbol", pos.Symbol())
	}
	p.positions = append(p.positions, pos)
	return nil
}

// RemovePosition drops the position for symbol and reports whether it was
// held.
func (p *Portfolio) RemovePosition(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexLocked(symbol)
	if i < 0 {
		return false
	}
	p.positions = append(p.positions[:i], p.positions[i+1:]...)
	return true
}

// Position returns the position for symbol.
func (p *Portfolio) Position(symbol string) (*Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i := p.indexLocked(symbol); i >= 0 {
		return p.positions[i], true
	}
	return nil, false
}

// Positions returns the positions in the order they were added.
func (p *Portfolio) Positions() []*Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Position, len(p.positions))
	copy(out, p.positions)
	return out
}

// Compose adds one pipeline per position to e.
func (p *Portfolio) Compose(e *engine.Engine) error {
	positions := p.Positions()
	if len(positions) == 0 {
		return apperrors.InvalidInput("positions", "portfolio has no positions")
	}
	for _, pos := range positions {
		e.AddPipeline(pos.Symbol()).Add(pos.Filters()...)
	}
	p.log.Info("portfolio composed", logger.Fields("positions", len(positions)))
	return nil
}

// Report summarizes the orders of every position.
func (p *Portfolio) Report() Report {
	var r Report
	for _, pos := range p.Positions() {
		s := pos.Summary()
		r.Positions = append(r.Positions, s)
		r.Orders += s.Orders
		r.Turnover = r.Turnover.Add(s.Turnover)
	}
	return r
}

func (p *Portfolio) indexLocked(symbol string) int {
	for i, pos := range p.positions {
		if pos.Symbol() == symbol {
			return i
		}
	}
	return -1
}
