// Package server bootstraps a plugin service from its configuration: logger,
// metrics, tracing, router, health routes and the HTTP server itself.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/config"
	"github.com/Suhaibinator/SPlugin/pkg/httpclient"
	"github.com/Suhaibinator/SPlugin/pkg/metrics"
	"github.com/Suhaibinator/SPlugin/pkg/middleware"
	"github.com/Suhaibinator/SPlugin/pkg/request"
	"github.com/Suhaibinator/SPlugin/pkg/router"
	"github.com/Suhaibinator/SPlugin/pkg/tracing"
)

// Health route paths.
const (
	HealthzPath = "/-/healthz"
	ReadyPath   = "/-/ready"
	CheckUpPath = "/-/check-up"
	MetricsPath = "/-/metrics"
)

// Status values reported by health routes.
const (
	StatusOK = "OK"
	StatusKO = "KO"
)

// CheckFunc reports the health of a dependency. A nil error is healthy.
type CheckFunc func(ctx context.Context) error

// HealthBody is the body of every health route.
type HealthBody struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Options are the optional parts of a Service.
type Options struct {
	Logger *zap.Logger
	// Registry collects the service metrics. A new registry is created when nil.
	Registry *prometheus.Registry
	// Healthiness, Readiness and CheckUp back the health routes. Nil checks pass.
	Healthiness CheckFunc
	Readiness   CheckFunc
	CheckUp     CheckFunc
	// Middlewares are applied to every plugin route.
	Middlewares []common.Middleware
}

// Service is a configured plugin service.
type Service struct {
	Config   config.Service
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Router   *router.Router

	opts     Options
	draining atomic.Bool
}

// NewLogger builds a zap logger at level, encoding JSON or console output.
func NewLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	if !json {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

// New builds the service described by cfg. Health routes and, when
// ExposeMetrics is set, the metrics route are registered on the router.
func New(cfg config.Service, opts Options) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return nil, err
		}
	}
	reg := opts.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	routeMetrics, err := metrics.NewRouteMetrics(reg, metrics.RouteMetricsConfig{
		EnableLatency:    true,
		EnableThroughput: true,
		EnableQPS:        true,
		EnableErrors:     true,
	})
	if err != nil {
		return nil, err
	}

	settings := &request.Settings{
		Headers:            cfg.HeaderConfig(),
		AdditionalHeaders:  cfg.AdditionalHeaders(),
		GatewayServiceName: cfg.GatewayServiceName,
		Logger:             logger,
	}
	if cfg.EnableHTTPClientMetrics {
		settings.ClientMetrics, err = metrics.NewClientMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.HTTPClientTimeout > 0 {
		settings.ClientOptions = httpclient.Options{Timeout: cfg.HTTPClientTimeout}
	}

	var rateLimit *middleware.RateLimitConfig
	if cfg.RateLimitPerSecond > 0 {
		rateLimit = &middleware.RateLimitConfig{
			BucketName: "global",
			Limit:      cfg.RateLimitPerSecond,
			Window:     time.Second,
		}
	}

	s := &Service{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		opts:     opts,
		Router: router.NewRouter(router.RouterConfig{
			Logger:            logger,
			Settings:          settings,
			GlobalTimeout:     cfg.RequestTimeout,
			GlobalMaxBodySize: cfg.MaxBodySize,
			GlobalRateLimit:   rateLimit,
			ThrottlePerSecond: cfg.ThrottlePerSecond,
			Metrics:           routeMetrics,
			Middlewares:       opts.Middlewares,
		}),
	}
	s.registerOpsRoutes()
	return s, nil
}

func (s *Service) registerOpsRoutes() {
	s.addOpsRoute(HealthzPath, s.opts.Healthiness, false)
	s.addOpsRoute(ReadyPath, s.opts.Readiness, true)
	s.addOpsRoute(CheckUpPath, s.opts.CheckUp, false)

	if s.Config.ExposeMetrics {
		h := metrics.Handler(s.Registry)
		s.Router.AddRawCustomPlugin(http.MethodGet, MetricsPath, func(_ *request.Context, w http.ResponseWriter, r *http.Request) error {
			h.ServeHTTP(w, r)
			return nil
		})
	}
}

func (s *Service) addOpsRoute(path string, check CheckFunc, gated bool) {
	s.Router.AddRawCustomPlugin(http.MethodGet, path, func(c *request.Context, w http.ResponseWriter, r *http.Request) error {
		body := HealthBody{Name: s.Config.ServiceName, Version: s.Config.ServiceVersion, Status: StatusOK}
		status := http.StatusOK

		var err error
		if gated && s.draining.Load() {
			err = errors.New("shutting down")
		} else if check != nil {
			err = check(r.Context())
		}
		if err != nil {
			c.Logger().Warn("health check failed", zap.String("path", path), zap.Error(err))
			body.Status = StatusKO
			status = http.StatusServiceUnavailable
		}
		common.WriteJSON(w, status, body)
		return nil
	})
}

// Handler returns the root handler: the router instrumented with tracing.
func (s *Service) Handler() http.Handler {
	return tracing.Handler(s.Router, s.Config.ServiceName)
}

// Serve serves on ln until ctx is done, then drains in-flight requests for
// at most ShutdownTimeout.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down http server")
	s.draining.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()

	routerErr := s.Router.Shutdown(shutdownCtx)
	srvErr := srv.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		srvErr = errors.Join(srvErr, err)
	}
	return errors.Join(routerErr, srvErr)
}

// Run builds the service, lets setup register the plugin routes, and serves
// on HTTPPort until ctx is done.
func Run(ctx context.Context, cfg config.Service, setup func(*router.Router) error, opts Options) error {
	s, err := New(cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Logger.Sync() }()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:  cfg.EnableTracing,
		Endpoint: cfg.OTLPEndpoint,
		Sample:   cfg.TraceSample,
		Service:  cfg.ServiceName,
		Version:  cfg.ServiceVersion,
	})
	if err != nil {
		s.Logger.Error("tracing init failed", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	if setup != nil {
		if err := setup(s.Router); err != nil {
			return fmt.Errorf("setup plugin routes: %w", err)
		}
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.HTTPPort))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
