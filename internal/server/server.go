// Package server routes the harness endpoints and applies the configured
// delay, error and readiness simulation.
//
// Routes:
//
//	GET /api/status  service identity and current time
//	GET /api/items   fixed catalog, optional case-insensitive ?filter=
//	GET /api/slow    responds after ?ms= (or the configured default) milliseconds
//	GET /api/error   fails according to the configured error mode
//	GET /healthz     liveness, always 200 "ok"
//	GET /ready       readiness, 503 until the readiness delay has elapsed
//
// Every request passes through the access logger exactly once.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mumumio1/wtarget/internal/catalog"
	"github.com/mumumio1/wtarget/internal/config"
	"github.com/mumumio1/wtarget/internal/fault"
	"github.com/mumumio1/wtarget/internal/log"
	"github.com/mumumio1/wtarget/internal/metrics"
	"github.com/mumumio1/wtarget/internal/ratelimit"
	"github.com/mumumio1/wtarget/internal/readiness"
)

// Version is reported by /api/status
const Version = "1.0.0"

// Server is the harness HTTP server
type Server struct {
	cfg      *config.Config
	logger   log.Logger
	gate     *readiness.Gate
	catalog  *catalog.Catalog
	injector *fault.Injector
	metrics  *metrics.Metrics
	now      func() time.Time

	limiter      ratelimit.Limiter
	keyExtractor ratelimit.KeyExtractor

	httpServer *http.Server
}

// Option customizes a Server
type Option func(*Server)

// WithMetrics enables request and simulation metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithInjector replaces the error injector derived from the config
func WithInjector(i *fault.Injector) Option {
	return func(s *Server) {
		s.injector = i
	}
}

// WithClock replaces time.Now for /api/status timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a server for cfg. gate is shared with whoever started the
// readiness countdown.
func New(cfg *config.Config, logger log.Logger, gate *readiness.Gate, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		gate:     gate,
		catalog:  catalog.Default(),
		injector: fault.NewInjector(cfg.Simulation.ErrorMode),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		s.keyExtractor = ratelimit.IPKeyExtractor
		if cfg.RateLimit.ByAPIKey {
			s.keyExtractor = ratelimit.APIKeyExtractor(cfg.RateLimit.APIKeyHeader)
		}
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/items", s.handleItems)
	mux.HandleFunc("GET /api/slow", s.handleSlow)
	mux.HandleFunc("GET /api/error", s.handleError)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	return mux
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.routes()

	if s.metrics != nil {
		handler = s.metricsMiddleware(handler)
	}
	if s.limiter != nil {
		handler = s.rateLimitMiddleware(handler)
	}
	handler = s.recoveryMiddleware(handler)
	handler = s.accessLogMiddleware(handler)
	handler = s.requestIDMiddleware(handler)

	return handler
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln, plus the metrics listener when metrics are enabled,
// until ctx is done or a listener fails. In-flight requests are given
// the configured shutdown timeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              net.JoinHostPort(s.cfg.Server.Address, strconv.Itoa(s.cfg.Metrics.Port)),
			Handler:           mux,
			ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		}

		g.Go(func() error {
			s.logger.Info("metrics server started",
				log.String("address", metricsSrv.Addr),
				log.String("path", s.cfg.Metrics.Path),
			)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("app started",
			log.String("address", ln.Addr().String()),
			log.Int("port", s.cfg.Server.Port),
			log.String("app_mode", s.cfg.App.Mode),
			log.String("error_mode", string(s.injector.Mode())),
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(metricsSrv)
	})

	return g.Wait()
}

func (s *Server) shutdown(metricsSrv *http.Server) error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}
