package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV sample for a symbol.
type Bar struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Valid reports whether the bar is internally consistent: positive prices,
// a low no higher than the high, a close inside that range and no negative
// volume.
func (b Bar) Valid() bool {
	if b.Symbol == "" || b.Time.IsZero() {
		return false
	}
	if !b.Low.IsPositive() || b.High.LessThan(b.Low) {
		return false
	}
	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return false
	}
	return !b.Volume.IsNegative()
}

// CloseFloat returns the close price as a float64 sample.
func (b Bar) CloseFloat() float64 {
	f, _ := b.Close.Float64()
	return f
}

// Side is the direction of a signal or order.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Sign returns +1 for Buy and -1 for Sell.
func (s Side) Sign() decimal.Decimal {
	if s == Sell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Signal is a trading intent derived from the market.
type Signal struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Side   Side            `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Mean   float64         `json:"mean"`
}

// Order is a signal sized and approved by the risk stage.
type Order struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Time     time.Time       `json:"time"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Notional returns quantity times price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

var barTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// BarParser returns a CSV record parser for symbol. Records hold
// time,open,high,low,close,volume; time is RFC 3339, "2006-01-02 15:04:05"
// or a bare date.
func BarParser(symbol string) func(record []string) (Bar, error) {
	return func(record []string) (Bar, error) {
		if len(record) < 6 {
			return Bar{}, fmt.Errorf("want 6 fields, got %d", len(record))
		}
		ts, err := parseBarTime(strings.TrimSpace(record[0]))
		if err != nil {
			return Bar{}, err
		}
		var vals [5]decimal.Decimal
		for i := range vals {
			if vals[i], err = decimal.NewFromString(strings.TrimSpace(record[i+1])); err != nil {
				return Bar{}, fmt.Errorf("field %d: %w", i+2, err)
			}
		}
		return Bar{
			Symbol: symbol, Time: ts,
			Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		}, nil
	}
}

func parseBarTime(s string) (time.Time, error) {
	for _, layout := range barTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
