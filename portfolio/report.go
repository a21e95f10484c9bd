package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSummary condenses the orders of one position.
type PositionSummary struct {
	Symbol    string          `json:"symbol"`
	Orders    int             `json:"orders"`
	Net       decimal.Decimal `json:"net"`
	Turnover  decimal.Decimal `json:"turnover"`
	LastOrder time.Time       `json:"last_order,omitzero"`
}

// Report aggregates the summaries of every position.
type Report struct {
	Positions []PositionSummary `json:"positions"`
	Orders    int               `json:"orders"`
	Turnover  decimal.Decimal   `json:"turnover"`
}

// Position returns the summary for symbol.
func (r Report) Position(symbol string) (PositionSummary, bool) {
	for _, s := range r.Positions {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return PositionSummary{}, false
}
