package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/tsengine/bootstrap"
	"github.com/kbukum/tsengine/component"
	"github.com/kbukum/tsengine/engine"
	"github.com/kbukum/tsengine/feed"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/observability"
	"github.com/kbukum/tsengine/portfolio"
	"github.com/kbukum/tsengine/server"
	"github.com/kbukum/tsengine/server/endpoint"
	"github.com/kbukum/tsengine/sse"
	"github.com/kbukum/tsengine/version"
)

// spanPrefix names the spans of traced stages.
const spanPrefix = "portfolio"

// application wires the configured portfolio, engine and status API into
// a bootstrap app.
type application struct {
	app       *bootstrap.App[*AppConfig]
	portfolio *portfolio.Portfolio
	engine    *engine.Engine
	events    *sse.Hub
}

func newApplication(cfg *AppConfig, opts ...bootstrap.Option) (*application, error) {
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a := &application{app: app}
	app.OnConfigure(a.configure)
	return a, nil
}

// configure runs once the app starts: it brings up telemetry, builds one
// position per configured symbol and registers the engine and server.
func (a *application) configure(ctx context.Context, app *bootstrap.App[*AppConfig]) error {
	cfg := app.Cfg

	metrics, shutdown, err := setupTelemetry(ctx, cfg.Telemetry, app.Name)
	if err != nil {
		return err
	}
	app.OnStop(shutdown)

	if cfg.Server.Enabled && cfg.Events.Enabled {
		a.events = sse.NewHub(app.Logger)
		if err := app.RegisterComponent(sse.NewComponent(a.events, cfg.Events.Path)); err != nil {
			return err
		}
	}

	guarded := portfolio.NewGuardedBroker(portfolio.NewPaperBroker(app.Logger), cfg.Broker, app.Logger)
	var broker portfolio.Broker = guarded
	if a.events != nil {
		broker = publishFills(guarded, a.events, app.Logger)
	}
	p, err := buildPortfolio(cfg, broker, app.Logger, decorator(metrics, cfg.Telemetry.Tracing, cfg.Debug, app.Logger))
	if err != nil {
		return err
	}
	a.portfolio = p

	a.engine = engine.New(p,
		engine.WithLogger(app.Logger),
		engine.WithSettings(cfg.Engine),
		engine.WithEngineMetrics(metrics),
	)
	if err := app.RegisterComponent(a.engine); err != nil {
		return err
	}
	for _, pos := range p.Positions() {
		app.Summary.TrackPipeline(pos.Symbol(), stageNames(pos.Filters()))
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, app.Logger)
		checker := func(ctx context.Context) []component.Health {
			return append(app.Components.HealthAll(ctx), guarded.Health(ctx))
		}
		srv.ApplyDefaults(app.Name, checker, a.engine)
		srv.GinEngine().GET("/version", func(c *gin.Context) {
			endpoint.RespondOK(c, version.Get())
		})
		if a.events != nil {
			srv.GinEngine().GET(cfg.Events.Path, sse.Handler(a.events, cfg.Events.KeepAlive))
			srv.OnShutdown(a.events.Stop)
		}
		if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
			return err
		}
	}
	return nil
}

// run drives the engine to completion and logs the portfolio report.
func (a *application) run(ctx context.Context) error {
	return a.app.RunTask(ctx, func(ctx context.Context) error {
		err := awaitEngine(ctx, a.engine, a.app.Cfg.Linger)
		logReport(a.app.Logger, a.portfolio.Report())
		if a.events != nil {
			_ = a.events.Publish(sse.TopicEngine, sse.EventStatus, a.engine.Snapshot())
		}
		return err
	})
}

// awaitEngine blocks until every pipeline has stopped. Cancelling ctx
// cancels the engine; that is a clean stop. With linger set it then waits
// for ctx before returning.
func awaitEngine(ctx context.Context, eng *engine.Engine, linger bool) error {
	select {
	case <-eng.Done():
	case <-ctx.Done():
		eng.Cancel()
		<-eng.Done()
		return nil
	}
	if linger {
		<-ctx.Done()
	}
	return eng.Err()
}

// publishFills forwards every order next accepts to the event stream.
func publishFills(next portfolio.Broker, hub *sse.Hub, log *logger.Logger) portfolio.Broker {
	return portfolio.BrokerFunc(func(ctx context.Context, o portfolio.Order) error {
		if err := next.PlaceOrder(ctx, o); err != nil {
			return err
		}
		if err := hub.Publish(sse.OrdersTopic(o.Symbol), sse.EventOrder, o); err != nil {
			log.Warn("publishing fill", logger.ErrorFields("publish", err))
		}
		return nil
	})
}

// buildPortfolio opens every configured CSV file and adds a position
// reading from it and sending orders to broker. Files already opened are
// closed if a later one fails.
func buildPortfolio(cfg *AppConfig, broker portfolio.Broker, log *logger.Logger, decorate func(engine.Filter) engine.Filter) (*portfolio.Portfolio, error) {
	p := portfolio.New(portfolio.WithLogger(log))

	var opened []*os.File
	fail := func(err error) (*portfolio.Portfolio, error) {
		for _, f := range opened {
			f.Close()
		}
		return nil, err
	}

	for _, pc := range cfg.Positions {
		f, err := os.Open(pc.File)
		if err != nil {
			return fail(fmt.Errorf("position %s: %w", pc.Symbol, err))
		}
		opened = append(opened, f)

		csvOpts := []feed.CSVOption{feed.WithCloser(f)}
		if pc.Header {
			csvOpts = append(csvOpts, feed.WithHeader())
		}
		bars := feed.CSV(f, portfolio.BarParser(pc.Symbol), csvOpts...)

		pos := portfolio.NewPosition(pc.Symbol, bars, cfg.strategyFor(pc), broker,
			portfolio.WithPositionLogger(log),
			portfolio.WithDecorator(decorate),
		)
		if err := p.AddPosition(pos); err != nil {
			return fail(err)
		}
	}
	return p, nil
}

// decorator stacks the filter decorators the configuration asks for.
func decorator(metrics *observability.EngineMetrics, tracing, debug bool, log *logger.Logger) func(engine.Filter) engine.Filter {
	return func(f engine.Filter) engine.Filter {
		f = engine.WithMetrics(f, metrics)
		if tracing {
			f = engine.WithTracing(f, spanPrefix)
		}
		if debug {
			f = engine.WithLogging(f, log.WithFilter(f.Name()))
		}
		return f
	}
}

// setupTelemetry starts the enabled OTLP exporters. The returned hook
// flushes and shuts them down.
func setupTelemetry(ctx context.Context, cfg TelemetryConfig, name string) (*observability.EngineMetrics, bootstrap.Hook, error) {
	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.Tracing {
		tp, err := observability.InitTracer(ctx, &cfg.Tracer)
		if err != nil {
			return nil, nil, fmt.Errorf("init tracer: %w", err)
		}
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	var metrics *observability.EngineMetrics
	if cfg.Metrics {
		mp, err := observability.InitMeter(ctx, &cfg.Meter)
		if err != nil {
			shutdown(ctx)
			return nil, nil, fmt.Errorf("init meter: %w", err)
		}
		shutdowns = append(shutdowns, mp.Shutdown)
		metrics, err = observability.NewEngineMetrics(mp.Meter(name))
		if err != nil {
			shutdown(ctx)
			return nil, nil, err
		}
	}
	return metrics, shutdown, nil
}

func stageNames(filters []engine.Filter) []string {
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.Name()
	}
	return names
}

func logReport(log *logger.Logger, r portfolio.Report) {
	for _, s := range r.Positions {
		log.Info("position summary", logger.Fields(
			"symbol", s.Symbol,
			"orders", s.Orders,
			"net", s.Net.String(),
			"turnover", s.Turnover.String(),
		))
	}
	log.Info("portfolio summary", logger.Fields("orders", r.Orders, "turnover", r.Turnover.String()))
}
