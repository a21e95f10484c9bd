package server

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/tsengine/component"
)

const componentName = "http-server"

var (
	_ component.Component     = (*ServerComponent)(nil)
	_ component.Describable   = (*ServerComponent)(nil)
	_ component.RouteProvider = (*ServerComponent)(nil)
)

// systemPaths are listed after the API routes in the startup summary.
var systemPaths = map[string]bool{"/health": true}

var methodRank = map[string]int{"GET": 0, "POST": 1, "PUT": 2, "PATCH": 3, "DELETE": 4}

// ServerComponent runs a Server under the component registry.
type ServerComponent struct {
	server *Server
}

func NewComponent(s *Server) *ServerComponent {
	return &ServerComponent{server: s}
}

func (sc *ServerComponent) Name() string                    { return componentName }
func (sc *ServerComponent) Start(ctx context.Context) error { return sc.server.Start(ctx) }
func (sc *ServerComponent) Stop(ctx context.Context) error  { return sc.server.Stop(ctx) }

// Health is healthy once the listener is bound.
func (sc *ServerComponent) Health(_ context.Context) component.Health {
	sc.server.mu.RLock()
	listening := sc.server.listener != nil
	sc.server.mu.RUnlock()

	h := component.Health{Name: componentName, Status: component.StatusHealthy}
	if !listening {
		h.Status = component.StatusUnhealthy
		h.Message = "HTTP server not listening"
	}
	return h
}

func (sc *ServerComponent) Describe() component.Description {
	return component.Description{
		Name:    "HTTP Server",
		Type:    "server",
		Details: sc.server.Addr(),
		Port:    sc.server.config.Port,
	}
}

// Routes lists the registered routes: API routes by path and method, then
// system routes marked "(system)".
func (sc *ServerComponent) Routes() []component.Route {
	info := sc.server.engine.Routes()
	slices.SortFunc(info, func(a, b gin.RouteInfo) int {
		if sa, sb := systemPaths[a.Path], systemPaths[b.Path]; sa != sb {
			if sa {
				return 1
			}
			return -1
		}
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(rank(a.Method), rank(b.Method)))
	})

	routes := make([]component.Route, len(info))
	for i, r := range info {
		handler := formatHandlerName(r.Handler)
		if systemPaths[r.Path] {
			handler += " (system)"
		}
		routes[i] = component.Route{Method: r.Method, Path: r.Path, Handler: handler}
	}
	return routes
}

func rank(method string) int {
	if r, ok := methodRank[method]; ok {
		return r
	}
	return len(methodRank)
}

// formatHandlerName shortens a Gin handler name for display:
// "pkg/endpoint.Status.func1" becomes "status" (the function that built the
// closure) and "pkg/port.(*UserPort).List-fm" becomes "UserPort.List".
func formatHandlerName(full string) string {
	name := strings.TrimSuffix(full, "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.NewReplacer("(*", "", ")", "").Replace(name)

	parts := strings.Split(name, ".")
	if strings.Contains(name, ".func") {
		for i := len(parts) - 1; i >= 0; i-- {
			if !strings.HasPrefix(parts[i], "func") {
				return strings.ToLower(parts[i])
			}
		}
	}
	if len(parts) > 1 && parts[0] == strings.ToLower(parts[0]) {
		return strings.Join(parts[1:], ".")
	}
	return name
}
