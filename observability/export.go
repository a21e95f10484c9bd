package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	defaultEndpoint = "localhost:4318"
	defaultVersion  = "1.0.0"
	defaultEnv      = "development"
)

// ExportConfig is what the trace and metric exporters share: where to
// send data and how to label the service.
type ExportConfig struct {
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	Environment    string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP/HTTP collector as host:port.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

func defaultExport(serviceName string) ExportConfig {
	return ExportConfig{
		ServiceName:    serviceName,
		ServiceVersion: defaultVersion,
		Environment:    defaultEnv,
		Endpoint:       defaultEndpoint,
		Insecure:       true,
	}
}

func (c ExportConfig) resource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(c.ServiceName),
			semconv.ServiceVersion(c.ServiceVersion),
			attribute.String("environment", c.Environment),
		),
	)
}
