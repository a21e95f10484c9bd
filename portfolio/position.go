package portfolio

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/kbukum/tsengine/engine"
	"github.com/kbukum/tsengine/feed"
	"github.com/kbukum/tsengine/filters"
	"github.com/kbukum/tsengine/logger"
)

// Stage names used for a position's default pipeline.
const (
	StageFeed    = "feed"
	StageScanner = "scanner"
	StageMean    = "mean"
	StageSignal  = "signal"
	StageRisk    = "risk"
	StageRate    = "order-rate"
	StageBroker  = "broker"
	StageReport  = "report"
)

// Position is the configuration of one symbol's pipeline. The embedded
// Configuration holds the stages in order; edit it before the engine
// starts to add or replace stages.
type Position struct {
	engine.Configuration

	symbol   string
	strategy Strategy

	source  engine.Filter
	scanner engine.Filter
	signals engine.Filter
	broker  engine.Filter
	report  *filters.CollectFilter[Order]
}

// PositionOption configures a Position.
type PositionOption func(*positionOptions)

type positionOptions struct {
	decorate []func(engine.Filter) engine.Filter
	log      *logger.Logger
}

// WithDecorator wraps every default stage with d, for instance
// engine.WithTracing or engine.WithMetrics. Decorators apply in the order
// given, so the last one is outermost.
func WithDecorator(d func(engine.Filter) engine.Filter) PositionOption {
	return func(o *positionOptions) {
		if d != nil {
			o.decorate = append(o.decorate, d)
		}
	}
}

// WithPositionLogger sets the logger of the default stages.
func WithPositionLogger(l *logger.Logger) PositionOption {
	return func(o *positionOptions) { o.log = l }
}

// NewPosition builds the default pipeline configuration for symbol: bars
// from the feed are screened, averaged over the strategy window, turned
// into signals, capped by position size, paced to the order rate, sent to
// broker and finally recorded for the report. A nil broker paper-trades.
func NewPosition(symbol string, bars feed.Iterator[Bar], strategy Strategy, broker Broker, opts ...PositionOption) *Position {
	var o positionOptions
	for _, opt := range opts {
		opt(&o)
	}
	var fopts []filters.Option
	if o.log != nil {
		fopts = append(fopts, filters.WithLogger(o.log.WithFields(logger.Fields("symbol", symbol))))
	}
	if broker == nil {
		broker = NewPaperBroker(o.log)
	}
	strategy.ApplyDefaults()
	risk := newRiskCap(strategy)

	p := &Position{symbol: symbol, strategy: strategy}
	p.report = filters.Collect[Order](StageReport, fopts...)

	decorate := func(f engine.Filter) engine.Filter {
		for _, d := range o.decorate {
			f = d(f)
		}
		return f
	}

	p.source = decorate(filters.Source(StageFeed, bars, fopts...))
	p.scanner = decorate(filters.Scan(StageScanner, Bar.Valid, fopts...))
	mean := decorate(filters.Window(StageMean, strategy.Window, Bar.CloseFloat, filters.Mean, fopts...))
	p.signals = decorate(filters.Expand(StageSignal, func(_ context.Context, s filters.Stat[Bar]) ([]Signal, error) {
		sig, ok := strategy.signal(s.Item, s.Value)
		if !ok {
			return nil, nil
		}
		return []Signal{sig}, nil
	}, fopts...))
	riskStage := decorate(filters.Expand(StageRisk, func(_ context.Context, sig Signal) ([]Order, error) {
		qty, ok := risk.approve(sig)
		if !ok {
			return nil, nil
		}
		return []Order{{
			ID: uuid.NewString(), Symbol: sig.Symbol, Time: sig.Time,
			Side: sig.Side, Quantity: qty, Price: sig.Price,
		}}, nil
	}, fopts...))
	rate := decorate(filters.Throttle(StageRate, filters.PerSecond(strategy.OrderRate, strategy.OrderBurst), fopts...))
	// Placing an order may wait out retry back-off, so the broker gets its
	// own goroutine instead of holding up the position's loop.
	brokerOpts := append(slices.Clone(fopts), filters.WithMode(engine.Asynchronous))
	p.broker = decorate(filters.Tap(StageBroker, broker.PlaceOrder, brokerOpts...))

	p.Append(p.source, p.scanner, mean, p.signals, riskStage, rate, p.broker, decorate(p.report))
	return p
}

// Symbol returns the position's symbol; it names the pipeline.
func (p *Position) Symbol() string { return p.symbol }

// Strategy returns the parameters the position was built with.
func (p *Position) Strategy() Strategy { return p.strategy }

// Source returns the data-origin stage.
func (p *Position) Source() engine.Filter { return p.source }

// Scanner returns the bar screening stage.
func (p *Position) Scanner() engine.Filter { return p.scanner }

// Signals returns the stage that turns rolling means into signals.
func (p *Position) Signals() engine.Filter { return p.signals }

// Broker returns the stage that places orders.
func (p *Position) Broker() engine.Filter { return p.broker }

// Orders returns the orders that reached the end of the pipeline.
func (p *Position) Orders() []Order { return p.report.Items() }

// Summary condenses the position's orders.
func (p *Position) Summary() PositionSummary {
	s := PositionSummary{Symbol: p.symbol}
	for _, o := range p.report.Items() {
		s.Orders++
		s.Net = s.Net.Add(o.Quantity.Mul(o.Side.Sign()))
		s.Turnover = s.Turnover.Add(o.Notional())
		if o.Time.After(s.LastOrder) {
			s.LastOrder = o.Time
		}
	}
	return s
}
