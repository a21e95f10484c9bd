package component

import "context"

// HealthStatus is a component's self-reported condition.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is one component's entry in the /health response.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a part of the service with a start/stop lifecycle, such as
// the analysis engine, the HTTP server or the event hub. The registry
// starts components in registration order and stops them in reverse.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	// Stop must return once ctx is done even if shutdown is incomplete.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Overall is the worst status among results; an empty list is healthy.
func Overall(results []Health) HealthStatus {
	worst := StatusHealthy
	for _, h := range results {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			worst = StatusDegraded
		}
	}
	return worst
}

// Description is a component's line in the startup summary. An empty Name
// falls back to the component's registered name; Port is 0 when the
// component does not listen.
type Description struct {
	Name    string
	Type    string
	Details string
	Port    int
}

// Describable components appear in the startup summary.
type Describable interface {
	Describe() Description
}

// Route is an HTTP route listed in the startup summary.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is implemented by components that serve HTTP.
type RouteProvider interface {
	Routes() []Route
}
