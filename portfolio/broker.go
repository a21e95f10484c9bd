package portfolio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbukum/tsengine/component"
	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/resilience"
)

// Broker executes approved orders. Vendor adapters implement it outside
// this module.
type Broker interface {
	PlaceOrder(ctx context.Context, o Order) error
}

// BrokerFunc adapts a function to the Broker interface.
type BrokerFunc func(ctx context.Context, o Order) error

// PlaceOrder calls fn(ctx, o).
func (fn BrokerFunc) PlaceOrder(ctx context.Context, o Order) error { return fn(ctx, o) }

// PaperBroker fills every order immediately at its limit price and keeps
// the fills in memory.
type PaperBroker struct {
	log *logger.Logger

	mu    sync.Mutex
	fills []Order
	net   map[string]decimal.Decimal
}

// NewPaperBroker returns a paper broker logging fills to log. A nil log
// discards them.
func NewPaperBroker(log *logger.Logger) *PaperBroker {
	if log == nil {
		log = logger.NewNop()
	}
	return &PaperBroker{log: log.WithComponent("paper-broker"), net: make(map[string]decimal.Decimal)}
}

func (b *PaperBroker) PlaceOrder(_ context.Context, o Order) error {
	b.mu.Lock()
	b.fills = append(b.fills, o)
	b.net[o.Symbol] = b.net[o.Symbol].Add(o.Quantity.Mul(o.Side.Sign()))
	b.mu.Unlock()

	b.log.Debug("order filled", logger.Fields(
		"order_id", o.ID, "symbol", o.Symbol, "side", o.Side.String(),
		"quantity", o.Quantity.String(), "price", o.Price.String(),
	))
	return nil
}

// Fills returns every filled order in arrival order.
func (b *PaperBroker) Fills() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Order, len(b.fills))
	copy(out, b.fills)
	return out
}

// Net returns the filled net position for symbol.
func (b *PaperBroker) Net(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net[symbol]
}

// GuardConfig configures a GuardedBroker.
type GuardConfig struct {
	Retry   resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	Breaker resilience.CircuitBreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// GuardedBroker retries rejected orders with backoff and, once a broker
// keeps failing, fails orders fast until its circuit breaker lets a probe
// through again.
type GuardedBroker struct {
	next    Broker
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewGuardedBroker wraps next. Retries and state changes are logged to log.
func NewGuardedBroker(next Broker, cfg GuardConfig, log *logger.Logger) *GuardedBroker {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("broker-guard")
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "broker"
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			log.Warn("order rejected, retrying", logger.Fields(
				"attempt", attempt, "backoff", backoff.String(), logger.FieldError, err.Error(),
			))
		}
	}
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(name string, from, to resilience.State) {
			log.Warn("broker circuit changed", logger.Fields("breaker", name, "from", from.String(), "to", to.String()))
		}
	}
	cfg.Retry.ApplyDefaults()
	return &GuardedBroker{next: next, retry: cfg.Retry, breaker: resilience.NewCircuitBreaker(cfg.Breaker)}
}

// PlaceOrder sends o to the wrapped broker. An order refused by the open
// circuit fails with an EXTERNAL_SERVICE_ERROR.
func (g *GuardedBroker) PlaceOrder(ctx context.Context, o Order) error {
	err := g.breaker.Execute(func() error {
		return resilience.RetryFunc(ctx, g.retry, func() error {
			return g.next.PlaceOrder(ctx, o)
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.ExternalServiceError(g.breaker.Name(), err).WithDetail("order_id", o.ID)
	}
	return err
}

// Health reports the state of the circuit breaker.
func (g *GuardedBroker) Health(ctx context.Context) component.Health {
	return g.breaker.Health(ctx)
}

// State returns the circuit breaker state.
func (g *GuardedBroker) State() resilience.State { return g.breaker.State() }
