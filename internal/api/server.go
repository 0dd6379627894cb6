package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	mw "github.com/tphakala/leafnet-go/internal/api/middleware"
	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/classifier"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
	"github.com/tphakala/leafnet-go/internal/monitor"
	"github.com/tphakala/leafnet-go/internal/observability"
)

// Server is the HTTP prediction server. It owns the echo instance and routes
// requests for every loaded slot through the decoder and the engine.
type Server struct {
	echo   *echo.Echo
	config *Config

	registry *classifier.Registry
	engine   *classifier.Engine
	decoder  *imaging.Decoder

	metrics   *observability.Metrics
	build     *buildinfo.Context
	cache     *predictionCache
	resources ResourceReporter

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics enables request and prediction metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the build metadata reported on the health endpoint.
func WithBuildInfo(b *buildinfo.Context) ServerOption {
	return func(s *Server) {
		s.build = b
	}
}

// ResourceReporter supplies host resource usage for the health endpoint.
type ResourceReporter interface {
	Sample(ctx context.Context) monitor.Resources
}

// WithResources adds host resource usage to the health endpoint.
func WithResources(r ResourceReporter) ServerOption {
	return func(s *Server) {
		s.resources = r
	}
}

// New creates the server. The registry and decoder are required and are
// not closed by the server.
func New(config *Config, registry *classifier.Registry, decoder *imaging.Decoder, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || decoder == nil {
		return nil, errors.Newf("server needs a model registry and an image decoder").
			Component("api").
			Category(errors.CategoryState).
			Build()
	}

	s := &Server{
		config:    config,
		registry:  registry,
		decoder:   decoder,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var recorder classifier.Recorder
	if s.metrics != nil {
		recorder = s.metrics.Classifier
	}
	s.engine = classifier.NewEngine(recorder)

	if config.CacheEnabled {
		s.cache = newPredictionCache(config.CacheTTL)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Int("slots", len(registry.Names())),
		logger.Bool("cache", config.CacheEnabled),
		logger.Bool("rate_limit", config.RateLimitEnabled),
		logger.Bool("metrics", s.metricsEnabled()))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLogger(GetLogger().Module("http")))

	if s.metrics != nil {
		s.echo.Use(mw.NewHTTPMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewCORS(mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}))
	s.echo.Use(mw.NewSecureHeaders())
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
}

// setupRoutes registers the status routes and one predict route per loaded slot.
func (s *Server) setupRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/healthz", s.handleHealth)

	var predictMiddleware []echo.MiddlewareFunc
	if s.config.RateLimitEnabled {
		rl := mw.RateLimitConfig{RPS: s.config.RateLimitRPS, Burst: s.config.RateLimitBurst}
		if s.metrics != nil {
			rl.OnDeny = s.metrics.HTTP.RecordRateLimited
		}
		predictMiddleware = append(predictMiddleware, mw.NewRateLimit(rl))
	}

	predict := s.echo.Group("/predict", predictMiddleware...)
	for _, slot := range s.registry.Names() {
		predict.POST("/"+slot, s.handlePredict(slot))
	}

	if s.metricsEnabled() {
		s.echo.GET(s.config.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) metricsEnabled() bool {
	return s.metrics != nil && s.config.MetricsEnabled
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address())
	if err != nil {
		return errors.New(fmt.Errorf("listen on %s: %w", s.config.Address(), err)).
			Component("api").
			Category(errors.CategoryNetwork).
			Build()
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or serving fails.
// In-flight requests get up to the shutdown timeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		GetLogger().Info("Starting HTTP server", logger.String("address", ln.Addr().String()))
		if err := s.echo.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops the server within the shutdown timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	GetLogger().Info("Server shutdown complete", logger.Duration("uptime", time.Since(s.startTime)))
	return nil
}
