// Package server exposes the kernel session manager over HTTP so several
// agent processes can share one pool of kernels.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chemagent/internal/kernel"
	"chemagent/internal/logging"
	"chemagent/internal/observability"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// SessionService is the part of kernel.Manager the server needs.
type SessionService interface {
	ExecuteDetailed(ctx context.Context, conversationID, code string, timeout time.Duration) (kernel.ExecResult, error)
	Close(ctx context.Context, conversationID string) error
	CloseAll(ctx context.Context) error
	Sessions() []kernel.SessionInfo
}

// Config configures the HTTP listener.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Debug           bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics serves the collector on /metrics.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(s *Server) { s.metrics = metrics }
}

// Server is the kernel server.
type Server struct {
	cfg      Config
	sessions SessionService
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	engine   *gin.Engine
	started  time.Time
}

// New builds the server and its routes.
func New(sessions SessionService, cfg Config, opts ...Option) *Server {
	s := &Server{cfg: cfg, sessions: sessions, started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	if s.cfg.ShutdownTimeout <= 0 {
		s.cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(observabilityMiddleware(s.logger))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	s.engine = engine
	s.setupRoutes()
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return c
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.engine.Group("/")
	api.Use(jsonMiddleware())
	api.POST("/execute", s.handleExecute)
	api.GET("/sessions", s.handleListSessions)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains requests and closes every
// kernel session.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Kernel server listening on %s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down kernel server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown: %w", err))
		}
		if err := s.sessions.CloseAll(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
		s.logger.Info("Kernel server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}
