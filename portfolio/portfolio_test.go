package portfolio

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbukum/tsengine/component"
	"github.com/kbukum/tsengine/config"
	"github.com/kbukum/tsengine/engine"
	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/feed"
	"github.com/kbukum/tsengine/filters"
	"github.com/kbukum/tsengine/resilience"
)

var fastSettings = engine.Settings{IdleBackoffMin: 10 * time.Microsecond, IdleBackoffMax: time.Millisecond}

var testStrategy = Strategy{
	Window:      3,
	Threshold:   0.05,
	Quantity:    1,
	MaxPosition: 2,
	OrderRate:   1e6,
	OrderBurst:  100,
}

var day0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func bar(symbol string, day int, closePrice float64) Bar {
	c := decimal.NewFromFloat(closePrice)
	return Bar{
		Symbol: symbol,
		Time:   day0.AddDate(0, 0, day),
		Open:   c,
		High:   c.Add(decimal.NewFromInt(1)),
		Low:    c.Sub(decimal.NewFromInt(1)),
		Close:  c,
		Volume: decimal.NewFromInt(1000),
	}
}

// trendingBars produces buy, buy, rejected buy, sell with testStrategy.
func trendingBars(symbol string) []Bar {
	closes := []float64{100, 100, 100, 90, 80, 70, 130}
	bars := make([]Bar, 0, len(closes)+1)
	for i, c := range closes {
		bars = append(bars, bar(symbol, i, c))
		if i == 2 {
			broken := bar(symbol, i, 50)
			broken.Low = decimal.NewFromInt(60)
			bars = append(bars, broken)
		}
	}
	return bars
}

func flatBars(symbol string, n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = bar(symbol, i, 100)
	}
	return bars
}

func runEngine(t *testing.T, p *Portfolio) *engine.Engine {
	t.Helper()
	e := engine.New(p, engine.WithSettings(fastSettings))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-e.Done():
	case <-ctx.Done():
		t.Fatal("engine did not stop")
	}
	return e
}

func TestBarValid(t *testing.T) {
	good := bar("AAA", 0, 10)
	tests := []struct {
		name   string
		mutate func(*Bar)
		want   bool
	}{
		{"valid", func(*Bar) {}, true},
		{"no symbol", func(b *Bar) { b.Symbol = "" }, false},
		{"no time", func(b *Bar) { b.Time = time.Time{} }, false},
		{"low above high", func(b *Bar) { b.Low = b.High.Add(decimal.NewFromInt(1)) }, false},
		{"close outside range", func(b *Bar) { b.Close = b.High.Add(decimal.NewFromInt(1)) }, false},
		{"non-positive low", func(b *Bar) { b.Low = decimal.Zero }, false},
		{"negative volume", func(b *Bar) { b.Volume = decimal.NewFromInt(-1) }, false},
		{"zero volume", func(b *Bar) { b.Volume = decimal.Zero }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := good
			tt.mutate(&b)
			if got := b.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBarParser(t *testing.T) {
	parse := BarParser("AAA")
	tests := []struct {
		name    string
		record  []string
		wantErr bool
	}{
		{"date", []string{"2026-01-05", "1", "2", "0.5", "1.5", "100"}, false},
		{"rfc3339", []string{"2026-01-05T14:30:00Z", "1", "2", "0.5", "1.5", "100"}, false},
		{"datetime", []string{"2026-01-05 14:30:00", "1", "2", "0.5", "1.5", "100"}, false},
		{"bad time", []string{"yesterday", "1", "2", "0.5", "1.5", "100"}, true},
		{"bad price", []string{"2026-01-05", "1", "two", "0.5", "1.5", "100"}, true},
		{"short record", []string{"2026-01-05", "1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := parse(tt.record)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (b.Symbol != "AAA" || !b.Close.Equal(decimal.RequireFromString("1.5"))) {
				t.Errorf("parsed %+v", b)
			}
		})
	}
}

func TestStrategyDefaults(t *testing.T) {
	var s Strategy
	s.ApplyDefaults()
	if s != DefaultStrategy() {
		t.Errorf("ApplyDefaults = %+v, want %+v", s, DefaultStrategy())
	}

	if err := config.ValidateStruct(s); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if err := config.ValidateStruct(Strategy{Window: 1, Quantity: 1, MaxPosition: 1, OrderRate: 1, OrderBurst: 1}); !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("zero threshold should fail validation, got %v", err)
	}

	big := Strategy{Quantity: 50}
	big.ApplyDefaults()
	if big.MaxPosition != 50 {
		t.Errorf("MaxPosition = %d, want it raised to the order quantity", big.MaxPosition)
	}
}

func TestStrategySignal(t *testing.T) {
	s := Strategy{Threshold: 0.1}
	tests := []struct {
		close float64
		mean  float64
		want  Side
		ok    bool
	}{
		{close: 80, mean: 100, want: Buy, ok: true},
		{close: 120, mean: 100, want: Sell, ok: true},
		{close: 95, mean: 100, ok: false},
		{close: 105, mean: 100, ok: false},
	}
	for _, tt := range tests {
		sig, ok := s.signal(bar("AAA", 0, tt.close), tt.mean)
		if ok != tt.ok || (ok && sig.Side != tt.want) {
			t.Errorf("signal(close %v, mean %v) = %v %v, want %v %v", tt.close, tt.mean, sig.Side, ok, tt.want, tt.ok)
		}
	}
}

func TestRiskCap(t *testing.T) {
	r := newRiskCap(Strategy{Quantity: 1, MaxPosition: 2})
	sides := []Side{Buy, Buy, Buy, Sell, Sell, Sell, Sell, Sell}
	want := []bool{true, true, false, true, true, true, true, false}
	for i, side := range sides {
		if _, ok := r.approve(Signal{Side: side}); ok != want[i] {
			t.Errorf("order %d (%s): approved %v, want %v", i, side, ok, want[i])
		}
	}
	if !r.net.Equal(decimal.NewFromInt(-2)) {
		t.Errorf("net = %s, want -2", r.net)
	}
}

func TestPortfolioPositions(t *testing.T) {
	p := New()
	a := NewPosition("AAA", feed.FromSlice(flatBars("AAA", 1)), testStrategy, nil)
	b := NewPosition("BBB", feed.FromSlice(flatBars("BBB", 1)), testStrategy, nil)

	if err := p.AddPosition(a); err != nil {
		t.Fatal(err)
	}
	if err := p.AddPosition(b); err != nil {
		t.Fatal(err)
	}
	dup := NewPosition("AAA", feed.FromSlice[Bar](nil), testStrategy, nil)
	if err := p.AddPosition(dup); !apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists) {
		t.Errorf("duplicate symbol: err = %v, want ALREADY_EXISTS", err)
	}
	if err := p.AddPosition(nil); !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("nil position: err = %v, want INVALID_INPUT", err)
	}

	got := p.Positions()
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Positions = %v", got)
	}
	if pos, ok := p.Position("BBB"); !ok || pos != b {
		t.Error("Position(BBB) not found")
	}
	if !p.RemovePosition("AAA") || p.RemovePosition("AAA") {
		t.Error("RemovePosition should succeed once")
	}
	if got := p.Positions(); len(got) != 1 || got[0] != b {
		t.Errorf("after removal Positions = %v", got)
	}
}

func TestPositionDefaultStages(t *testing.T) {
	pos := NewPosition("AAA", feed.FromSlice[Bar](nil), testStrategy, nil)
	want := []string{StageFeed, StageScanner, StageMean, StageSignal, StageRisk, StageRate, StageBroker, StageReport}
	got := pos.Filters()
	if len(got) != len(want) {
		t.Fatalf("got %d stages, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.Name() != want[i] {
			t.Errorf("stage %d = %q, want %q", i, f.Name(), want[i])
		}
	}
	for _, i := range []int{0, 6} {
		if got[i].Mode() != engine.Asynchronous {
			t.Errorf("%s stage should be asynchronous", got[i].Name())
		}
	}
	if got[5].Mode() != engine.Synchronous {
		t.Errorf("%s stage should be synchronous", got[5].Name())
	}
}

func TestComposeEmptyPortfolio(t *testing.T) {
	e := engine.New(New())
	err := e.Start(context.Background())
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Fatalf("Start = %v, want INVALID_INPUT", err)
	}
}

func TestPortfolioRun(t *testing.T) {
	broker := NewPaperBroker(nil)
	p := New()
	if err := p.AddPosition(NewPosition("AAA", feed.FromSlice(trendingBars("AAA")), testStrategy, broker)); err != nil {
		t.Fatal(err)
	}
	if err := p.AddPosition(NewPosition("BBB", feed.FromSlice(flatBars("BBB", 10)), testStrategy, broker)); err != nil {
		t.Fatal(err)
	}

	e := runEngine(t, p)
	if err := e.Err(); err != nil {
		t.Fatalf("engine error: %v", err)
	}
	for _, name := range []string{"AAA", "BBB"} {
		pl, ok := e.Pipeline(name)
		if !ok {
			t.Fatalf("no pipeline named %s", name)
		}
		if pl.Status() != engine.StatusCompleted {
			t.Errorf("pipeline %s status = %v", name, pl.Status())
		}
	}

	aaa, _ := p.Position("AAA")
	orders := aaa.Orders()
	wantSides := []Side{Buy, Buy, Sell}
	if len(orders) != len(wantSides) {
		t.Fatalf("AAA orders = %+v, want %d", orders, len(wantSides))
	}
	for i, o := range orders {
		if o.Side != wantSides[i] || o.ID == "" || o.Symbol != "AAA" {
			t.Errorf("order %d = %+v", i, o)
		}
	}

	r := p.Report()
	if r.Orders != 3 {
		t.Errorf("report orders = %d, want 3", r.Orders)
	}
	if !r.Turnover.Equal(decimal.NewFromInt(300)) {
		t.Errorf("turnover = %s, want 300", r.Turnover)
	}
	if s, ok := r.Position("AAA"); !ok || !s.Net.Equal(decimal.NewFromInt(1)) {
		t.Errorf("AAA summary = %+v", s)
	}
	if s, ok := r.Position("BBB"); !ok || s.Orders != 0 {
		t.Errorf("BBB summary = %+v", s)
	}

	if len(broker.Fills()) != 3 || !broker.Net("AAA").Equal(decimal.NewFromInt(1)) {
		t.Errorf("broker fills = %d, net %s", len(broker.Fills()), broker.Net("AAA"))
	}
}

func TestBrokerFailureIsolated(t *testing.T) {
	rejected := errors.New("rejected by venue")
	broker := BrokerFunc(func(_ context.Context, o Order) error {
		if o.Symbol == "BAD" {
			return rejected
		}
		return nil
	})
	p := New()
	_ = p.AddPosition(NewPosition("BAD", feed.FromSlice(trendingBars("BAD")), testStrategy, broker))
	_ = p.AddPosition(NewPosition("GOOD", feed.FromSlice(trendingBars("GOOD")), testStrategy, broker))

	e := runEngine(t, p)
	if err := e.Err(); !errors.Is(err, rejected) {
		t.Fatalf("engine error = %v, want broker rejection", err)
	}
	bad, _ := e.Pipeline("BAD")
	good, _ := e.Pipeline("GOOD")
	if bad.Status() != engine.StatusFailed || good.Status() != engine.StatusCompleted {
		t.Errorf("statuses: BAD %v, GOOD %v", bad.Status(), good.Status())
	}
	if h := e.Health(context.Background()); h.Status != component.StatusDegraded {
		t.Errorf("health = %v, want degraded", h.Status)
	}
	if s, _ := p.Report().Position("GOOD"); s.Orders != 3 {
		t.Errorf("GOOD orders = %d, want 3", s.Orders)
	}
}

func TestPositionExtraStage(t *testing.T) {
	pos := NewPosition("AAA", feed.FromSlice(trendingBars("AAA")), testStrategy, nil)
	var screened atomic.Int64
	counter := filters.Tap("count", func(context.Context, Bar) error {
		screened.Add(1)
		return nil
	})
	if !pos.InsertAfter(pos.Scanner(), counter) {
		t.Fatal("InsertAfter scanner failed")
	}

	p := New()
	_ = p.AddPosition(pos)
	e := runEngine(t, p)
	if err := e.Err(); err != nil {
		t.Fatal(err)
	}
	if got := screened.Load(); got != 7 {
		t.Errorf("counted %d valid bars, want 7", got)
	}
}

func TestPositionDecorators(t *testing.T) {
	var wrapped int
	count := func(f engine.Filter) engine.Filter {
		wrapped++
		return f
	}
	NewPosition("AAA", feed.FromSlice[Bar](nil), testStrategy, nil, WithDecorator(count), WithDecorator(nil))
	if wrapped != 8 {
		t.Errorf("decorator applied to %d stages, want 8", wrapped)
	}
}

func TestPositionFromCSV(t *testing.T) {
	csv := "time,open,high,low,close,volume\n" +
		"2026-01-05,100,101,99,100,10\n" +
		"2026-01-06,100,101,99,100,10\n" +
		"2026-01-07,100,101,99,100,10\n" +
		"2026-01-08,90,91,89,90,10\n"
	bars := feed.CSV(strings.NewReader(csv), BarParser("CSV"), feed.WithHeader())

	p := New()
	_ = p.AddPosition(NewPosition("CSV", bars, testStrategy, nil))
	e := runEngine(t, p)
	if err := e.Err(); err != nil {
		t.Fatal(err)
	}
	orders := p.Report()
	if orders.Orders != 1 {
		t.Errorf("orders = %d, want 1 buy", orders.Orders)
	}
}

func guardConfig(maxFailures int) GuardConfig {
	return GuardConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		Breaker: resilience.CircuitBreakerConfig{MaxFailures: maxFailures, Timeout: time.Hour},
	}
}

func TestGuardedBrokerRetries(t *testing.T) {
	paper := NewPaperBroker(nil)
	var calls atomic.Int32
	flaky := BrokerFunc(func(ctx context.Context, o Order) error {
		if calls.Add(1) < 3 {
			return errors.New("gateway timeout")
		}
		return paper.PlaceOrder(ctx, o)
	})

	g := NewGuardedBroker(flaky, guardConfig(5), nil)
	o := Order{ID: "o-1", Symbol: "AAA", Side: Buy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}
	if err := g.PlaceOrder(context.Background(), o); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(paper.Fills()) != 1 {
		t.Errorf("fills = %d, want 1", len(paper.Fills()))
	}
	if g.State() != resilience.StateClosed {
		t.Errorf("state = %s, want closed", g.State())
	}
}

func TestGuardedBrokerOpensCircuit(t *testing.T) {
	var calls atomic.Int32
	down := BrokerFunc(func(context.Context, Order) error {
		calls.Add(1)
		return errors.New("connection refused")
	})

	g := NewGuardedBroker(down, guardConfig(2), nil)
	o := Order{ID: "o-1", Symbol: "AAA"}
	for i := 0; i < 2; i++ {
		if err := g.PlaceOrder(context.Background(), o); err == nil {
			t.Fatal("expected failure")
		}
	}
	if calls.Load() != 6 {
		t.Errorf("calls = %d, want 6", calls.Load())
	}

	err := g.PlaceOrder(context.Background(), o)
	if !apperrors.HasCode(err, apperrors.ErrCodeExternalService) {
		t.Errorf("expected EXTERNAL_SERVICE_ERROR, got %v", err)
	}
	if calls.Load() != 6 {
		t.Error("open circuit still called the broker")
	}
	if h := g.Health(context.Background()); h.Status != component.StatusUnhealthy || h.Name != "broker" {
		t.Errorf("health = %+v", h)
	}
}

func TestGuardedBrokerPermanentError(t *testing.T) {
	var calls atomic.Int32
	rejecting := BrokerFunc(func(context.Context, Order) error {
		calls.Add(1)
		return apperrors.InvalidInput("quantity", "below lot size")
	})
	g := NewGuardedBroker(rejecting, guardConfig(5), nil)
	err := g.PlaceOrder(context.Background(), Order{ID: "o-1"})
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
