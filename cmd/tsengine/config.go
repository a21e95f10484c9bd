package main

import (
	"fmt"

	"github.com/kbukum/tsengine/config"
	"github.com/kbukum/tsengine/engine"
	"github.com/kbukum/tsengine/observability"
	"github.com/kbukum/tsengine/portfolio"
	"github.com/kbukum/tsengine/server"
	"github.com/kbukum/tsengine/sse"
	"github.com/kbukum/tsengine/version"
)

const serviceName = "tsengine"

// AppConfig is the application configuration loaded from config.yml, .env
// and the environment.
type AppConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Engine    engine.Settings       `yaml:"engine" mapstructure:"engine"`
	Server    server.Config         `yaml:"server" mapstructure:"server"`
	Telemetry TelemetryConfig       `yaml:"telemetry" mapstructure:"telemetry"`
	Strategy  portfolio.Strategy    `yaml:"strategy" mapstructure:"strategy"`
	Broker    portfolio.GuardConfig `yaml:"broker" mapstructure:"broker"`
	Events    sse.Config            `yaml:"events" mapstructure:"events"`
	Positions []PositionConfig      `yaml:"positions" mapstructure:"positions" validate:"required,min=1,unique=Symbol,dive"`

	// Linger keeps the status API up after every pipeline has stopped,
	// until the process is signalled.
	Linger bool `yaml:"linger" mapstructure:"linger"`
}

// PositionConfig names one symbol and the CSV file holding its bars.
type PositionConfig struct {
	Symbol string `yaml:"symbol" mapstructure:"symbol" validate:"required"`
	File   string `yaml:"file" mapstructure:"file" validate:"required"`
	// Strategy overrides the portfolio-wide strategy for this symbol.
	Strategy *portfolio.Strategy `yaml:"strategy" mapstructure:"strategy"`
	// Header reports whether the file starts with a header row.
	Header bool `yaml:"header" mapstructure:"header"`
}

// TelemetryConfig switches the OTLP exporters on.
type TelemetryConfig struct {
	Tracing bool                       `yaml:"tracing" mapstructure:"tracing"`
	Metrics bool                       `yaml:"metrics" mapstructure:"metrics"`
	Tracer  observability.TracerConfig `yaml:"tracer" mapstructure:"tracer"`
	Meter   observability.MeterConfig  `yaml:"meter" mapstructure:"meter"`
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	c.ServiceConfig.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Strategy.ApplyDefaults()
	c.Broker.Retry.ApplyDefaults()
	c.Broker.Breaker.ApplyDefaults()
	c.Events.ApplyDefaults()
	for i := range c.Positions {
		if s := c.Positions[i].Strategy; s != nil {
			s.ApplyDefaults()
		}
	}

	c.Telemetry.applyDefaults(c.ServiceConfig)
}

func (t *TelemetryConfig) applyDefaults(svc config.ServiceConfig) {
	tracer := observability.DefaultTracerConfig(svc.Name)
	if t.Tracer.Endpoint == "" {
		t.Tracer.Endpoint = tracer.Endpoint
		t.Tracer.Insecure = tracer.Insecure
	}
	if t.Tracer.SampleRate == 0 {
		t.Tracer.SampleRate = tracer.SampleRate
	}
	meter := observability.DefaultMeterConfig(svc.Name)
	if t.Meter.Endpoint == "" {
		t.Meter.Endpoint = meter.Endpoint
		t.Meter.Insecure = meter.Insecure
	}
	if t.Meter.Interval == 0 {
		t.Meter.Interval = meter.Interval
	}

	version := svc.Version
	if version == "" {
		version = tracer.ServiceVersion
	}
	t.Tracer.ServiceName, t.Meter.ServiceName = svc.Name, svc.Name
	t.Tracer.ServiceVersion, t.Meter.ServiceVersion = version, version
	t.Tracer.Environment, t.Meter.Environment = svc.Environment, svc.Environment
}

// Validate checks the configuration after defaults are applied.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := config.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if c.Events.Enabled && !c.Server.Enabled {
		return fmt.Errorf("config.events: the event stream needs server.enabled")
	}
	return nil
}

// strategyFor returns the strategy a position runs with.
func (c *AppConfig) strategyFor(p PositionConfig) portfolio.Strategy {
	if p.Strategy != nil {
		return *p.Strategy
	}
	return c.Strategy
}
