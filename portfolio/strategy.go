package portfolio

import "github.com/shopspring/decimal"

// Strategy parameterizes the stages of a position.
type Strategy struct {
	// Window is the number of bars in the rolling mean.
	Window int `yaml:"window" mapstructure:"window" validate:"gte=1"`
	// Threshold is the relative distance from the mean, as a fraction,
	// beyond which the close triggers a signal. Zero means the default.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold" validate:"gt=0,lt=1"`
	// Quantity is the size of every order.
	Quantity int64 `yaml:"quantity" mapstructure:"quantity" validate:"gte=1"`
	// MaxPosition caps the absolute net position.
	MaxPosition int64 `yaml:"max_position" mapstructure:"max_position" validate:"gtefield=Quantity"`
	// OrderRate is the number of orders per second sent to the broker.
	OrderRate float64 `yaml:"order_rate" mapstructure:"order_rate" validate:"gt=0"`
	// OrderBurst is the number of orders that may be sent at once.
	OrderBurst int `yaml:"order_burst" mapstructure:"order_burst" validate:"gte=1"`
}

// DefaultStrategy returns the defaults ApplyDefaults fills in.
func DefaultStrategy() Strategy {
	return Strategy{
		Window:      20,
		Threshold:   0.02,
		Quantity:    1,
		MaxPosition: 10,
		OrderRate:   5,
		OrderBurst:  1,
	}
}

// ApplyDefaults fills zero fields with DefaultStrategy values.
func (s *Strategy) ApplyDefaults() {
	d := DefaultStrategy()
	if s.Window == 0 {
		s.Window = d.Window
	}
	if s.Threshold == 0 {
		s.Threshold = d.Threshold
	}
	if s.Quantity == 0 {
		s.Quantity = d.Quantity
	}
	if s.MaxPosition == 0 {
		s.MaxPosition = max(d.MaxPosition, s.Quantity)
	}
	if s.OrderRate == 0 {
		s.OrderRate = d.OrderRate
	}
	if s.OrderBurst == 0 {
		s.OrderBurst = d.OrderBurst
	}
}

// signal compares the close of bar with the rolling mean. It returns false
// while the close stays inside the threshold band.
func (s Strategy) signal(bar Bar, mean float64) (Signal, bool) {
	closePrice := bar.CloseFloat()
	var side Side
	switch {
	case closePrice < mean*(1-s.Threshold):
		side = Buy
	case closePrice > mean*(1+s.Threshold):
		side = Sell
	default:
		return Signal{}, false
	}
	return Signal{Symbol: bar.Symbol, Time: bar.Time, Side: side, Price: bar.Close, Mean: mean}, true
}

// riskCap tracks the net position of one symbol and rejects orders that
// would take it past the cap.
type riskCap struct {
	quantity decimal.Decimal
	limit    decimal.Decimal
	net      decimal.Decimal
}

func newRiskCap(s Strategy) *riskCap {
	return &riskCap{
		quantity: decimal.NewFromInt(s.Quantity),
		limit:    decimal.NewFromInt(s.MaxPosition),
	}
}

// approve sizes sig and reports whether it fits under the cap. Approved
// orders update the net position.
func (r *riskCap) approve(sig Signal) (decimal.Decimal, bool) {
	next := r.net.Add(r.quantity.Mul(sig.Side.Sign()))
	if next.Abs().GreaterThan(r.limit) {
		return decimal.Zero, false
	}
	r.net = next
	return r.quantity, true
}
