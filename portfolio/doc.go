// Package portfolio specializes the engine configuration for a trading
// portfolio. Each position gets its own pipeline:
//
//	bars → valid bars → rolling mean → signal → risk cap → order rate → broker → report
//
// Stages are trivial on purpose; callers add or replace stages on a
// position's configuration before the engine starts.
//
//	p := portfolio.New()
//	p.AddPosition(portfolio.NewPosition("AAPL", bars, strategy, broker))
//	e := engine.New(p)
//	e.Start(ctx)
//	e.Wait()
//	report := p.Report()
package portfolio
