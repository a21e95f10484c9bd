package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/server/endpoint"
	"github.com/kbukum/tsengine/server/middleware"
)

// shutdownGrace bounds how long Stop waits for in-flight requests.
const shutdownGrace = 5 * time.Second

// Server is the HTTP status API, backed by Gin and served over HTTP/1.1 and
// h2c on one port.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	h2s        *http2.Server
	config     Config
	log        *logger.Logger

	mu       sync.RWMutex
	listener net.Listener
}

// New creates a new Server. The Gin engine is created but no middleware is
// applied yet; call ApplyMiddleware, or ApplyDefaults, before Start.
func New(cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          120 * time.Second,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h2c.NewHandler(mux, h2s),
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		engine:     engine,
		mux:        mux,
		h2s:        h2s,
		config:     cfg,
		log:        log.WithComponent("server"),
	}
}

// GinEngine returns the underlying Gin engine for route registration.
func (s *Server) GinEngine() *gin.Engine {
	return s.engine
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the port and serves in the background. It returns once the
// listener is bound, so a nil error means the port is accepting.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped serving")
		}
	}()

	s.log.Info("http server listening", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, giving in-flight requests up to
// shutdownGrace or ctx's deadline, whichever comes first.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("http server shutdown incomplete")
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// OnShutdown registers f to run when Stop begins shutting down, for
// handlers holding long-lived connections open.
func (s *Server) OnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}

// Addr returns the bound address once the server has started, and the
// configured one before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// ApplyMiddleware wraps every route in the standard stack: recovery,
// request ID, CORS, rate limiting and request logging.
func (s *Server) ApplyMiddleware() {
	chain := middleware.Chain(
		middleware.Recovery(s.log),
		middleware.RequestID(),
		middleware.CORS(&s.config.CORS),
		middleware.RateLimit(s.config.RateLimit),
		middleware.RequestLogger(s.log),
	)
	s.httpServer.Handler = h2c.NewHandler(chain(s.mux), s.h2s)
}

// RegisterDefaultEndpoints registers /health and, when e is not nil, the
// engine status API: GET /status, GET /pipelines/:name and POST /cancel.
func (s *Server) RegisterDefaultEndpoints(serviceName string, checker endpoint.HealthChecker, e endpoint.EngineView) {
	s.engine.GET("/health", endpoint.Health(serviceName, checker))
	if e == nil {
		return
	}
	s.engine.GET("/status", endpoint.Status(e))
	s.engine.GET("/pipelines/:name", endpoint.Pipeline(e))
	s.engine.POST("/cancel", endpoint.Cancel(e))
}

// ApplyDefaults applies the standard middleware stack and registers default endpoints.
func (s *Server) ApplyDefaults(serviceName string, checker endpoint.HealthChecker, e endpoint.EngineView) {
	s.ApplyMiddleware()
	s.RegisterDefaultEndpoints(serviceName, checker, e)
}
