package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/tsengine/component"
)

// PipelineInfo describes one analysis pipeline for the startup summary.
type PipelineInfo struct {
	Name   string
	Stages []string
}

// Summary tracks and displays the application bootstrap process.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	pipelines       []PipelineInfo
	routes          []component.Route
}

// NewSummary creates a new bootstrap summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// StartupDuration returns the recorded startup time.
func (s *Summary) StartupDuration() time.Duration { return s.startupDuration }

// TrackPipeline records a pipeline and its stages in order.
func (s *Summary) TrackPipeline(name string, stages []string) {
	s.pipelines = append(s.pipelines, PipelineInfo{Name: name, Stages: stages})
}

// TrackRoute records an HTTP route not reported by a RouteProvider.
func (s *Summary) TrackRoute(method, path, handler string) {
	s.routes = append(s.routes, component.Route{Method: method, Path: path, Handler: handler})
}

// Pipelines returns the tracked pipelines.
func (s *Summary) Pipelines() []PipelineInfo { return s.pipelines }

// Display writes the bootstrap summary including live health from the
// registry. A nil registry prints only what was tracked.
func (s *Summary) Display(ctx context.Context, w io.Writer, registry *component.Registry) {
	fmt.Fprintf(w, "\n🚀 %s v%s started in %.2fs\n\n", s.serviceName, s.version, s.startupDuration.Seconds())

	var descriptions []component.Description
	routes := append([]component.Route(nil), s.routes...)
	if registry != nil {
		descriptions = registry.Describe()
		for _, c := range registry.All() {
			if rp, ok := c.(component.RouteProvider); ok {
				routes = append(routes, rp.Routes()...)
			}
		}
	}

	if len(descriptions) > 0 {
		fmt.Fprintf(w, "📊 Infrastructure\n")
		for i, d := range descriptions {
			details := d.Details
			if d.Port > 0 {
				details = fmt.Sprintf("%s (:%d)", details, d.Port)
			}
			fmt.Fprintf(w, "   %s %s [%s]: %s\n", treePrefix(i, len(descriptions)), d.Name, d.Type, details)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "   └── No components registered\n")
	}

	if len(s.pipelines) > 0 {
		fmt.Fprintf(w, "🔀 Pipelines (%d)\n", len(s.pipelines))
		for i, p := range s.pipelines {
			fmt.Fprintf(w, "   %s %s: %s\n", treePrefix(i, len(s.pipelines)), p.Name, strings.Join(p.Stages, " → "))
		}
		fmt.Fprintln(w)
	}

	if len(routes) > 0 {
		fmt.Fprintf(w, "🌐 Routes (%d)\n", len(routes))
		for i, r := range routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", treePrefix(i, len(routes)), r.Method, r.Path, r.Handler)
		}
		fmt.Fprintln(w)
	}

	if registry == nil {
		return
	}
	results := registry.HealthAll(ctx)
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(w, "🏥 Health Check\n")
	healthy := 0
	for i, h := range results {
		msg := ""
		if h.Message != "" {
			msg = " (" + h.Message + ")"
		}
		if h.Status == component.StatusHealthy {
			healthy++
		}
		fmt.Fprintf(w, "   %s %s %s: %s%s\n", treePrefix(i, len(results)), healthStatusIcon(h.Status), h.Name, h.Status, msg)
	}
	if healthy == len(results) {
		fmt.Fprintf(w, "\n✅ All components healthy (%d/%d)\n\n", healthy, len(results))
	} else {
		fmt.Fprintf(w, "\n⚠️  Some components have issues (%d/%d healthy)\n\n", healthy, len(results))
	}
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
