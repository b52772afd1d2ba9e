package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/codec"
	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/decorator"
	"github.com/Suhaibinator/SPlugin/pkg/middleware"
	"github.com/Suhaibinator/SPlugin/pkg/request"
	"github.com/Suhaibinator/SPlugin/pkg/schema"
)

// Router is the main router struct that implements http.Handler.
// It provides routing, middleware support, graceful shutdown, and the plugin
// registration helpers.
type Router struct {
	config      RouterConfig
	router      *httprouter.Router
	logger      *zap.Logger
	settings    *request.Settings
	middlewares []common.Middleware
	rateLimiter middleware.RateLimiter
	wg          sync.WaitGroup
	shutdown    bool
	shutdownMu  sync.RWMutex
}

// contextKey is a type for context keys.
// It's used to store and retrieve values from request contexts.
type contextKey string

const (
	// ParamsKey is the key used to store httprouter.Params in the request context.
	// This allows route parameters to be accessed from handlers and middleware.
	ParamsKey contextKey = "params"
)

// NewRouter creates a new Router with the given configuration.
// It initializes the underlying httprouter, sets up logging, and registers routes from sub-routers.
func NewRouter(config RouterConfig) *Router {
	hr := httprouter.New()

	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	var settings request.Settings
	if config.Settings != nil {
		settings = *config.Settings
	} else {
		settings = *request.DefaultSettings()
		settings.Logger = nil
	}
	if settings.Logger == nil {
		settings.Logger = logger
	}

	r := &Router{
		config:      config,
		router:      hr,
		logger:      logger,
		settings:    &settings,
		middlewares: config.Middlewares,
		rateLimiter: middleware.NewWindowRateLimiter(),
	}

	hr.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		common.WriteError(w, http.StatusNotFound, "Route "+req.Method+":"+req.URL.Path+" not found")
	})
	hr.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		common.WriteError(w, http.StatusMethodNotAllowed, "Method "+req.Method+" not allowed")
	})

	for _, sr := range config.SubRouters {
		r.registerSubRouter(sr)
	}

	return r
}

// Settings returns the settings handed to every handler context.
func (r *Router) Settings() *request.Settings {
	return r.settings
}

// registerSubRouter registers all routes in a sub-router.
// It applies the sub-router's path prefix to all routes and registers them with the router.
func (r *Router) registerSubRouter(sr SubRouterConfig) {
	for _, route := range sr.Routes {
		fullPath := sr.PathPrefix + route.Path

		timeout := r.getEffectiveTimeout(route.Timeout, sr.TimeoutOverride)
		maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, sr.MaxBodySizeOverride)
		rateLimit := r.getEffectiveRateLimit(route.RateLimit, sr.RateLimitOverride)

		middlewares := make([]common.Middleware, 0, len(sr.Middlewares)+len(route.Middlewares))
		middlewares = append(middlewares, sr.Middlewares...)
		middlewares = append(middlewares, route.Middlewares...)

		handler := r.wrapHandler(r.adapt(route.Handler), fullPath, timeout, maxBodySize, rateLimit, route.BodySchema, middlewares)
		r.handle(route.Methods, fullPath, handler)
	}
}

// RegisterRoute registers a route with the router.
// For typed routes use RegisterGenericRoute instead.
func (r *Router) RegisterRoute(route RouteConfig) *Router {
	timeout := r.getEffectiveTimeout(route.Timeout, 0)
	maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
	rateLimit := r.getEffectiveRateLimit(route.RateLimit, nil)

	handler := r.wrapHandler(r.adapt(route.Handler), route.Path, timeout, maxBodySize, rateLimit, route.BodySchema, route.Middlewares)
	r.handle(route.Methods, route.Path, handler)
	return r
}

// AddRawCustomPlugin registers handler for method and path.
func (r *Router) AddRawCustomPlugin(method, path string, handler Handler, opts ...RouteOption) *Router {
	route := RouteConfig{Path: path, Methods: []string{method}, Handler: handler}
	for _, opt := range opts {
		opt(&route)
	}
	return r.RegisterRoute(route)
}

// AddPreDecorator registers a pre decorator on POST path.
func (r *Router) AddPreDecorator(path string, handler decorator.PreHandler, opts ...RouteOption) *Router {
	return r.AddRawCustomPlugin(http.MethodPost, path, func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		return decorator.ServePre(w, req, c.Params, c.Settings(), handler)
	}, opts...)
}

// AddPostDecorator registers a post decorator on POST path.
func (r *Router) AddPostDecorator(path string, handler decorator.PostHandler, opts ...RouteOption) *Router {
	return r.AddRawCustomPlugin(http.MethodPost, path, func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		return decorator.ServePost(w, req, c.Params, c.Settings(), handler)
	}, opts...)
}

// RegisterGenericRoute registers a route with typed request and response bodies.
// This is a standalone function rather than a method because Go methods cannot have type parameters.
func RegisterGenericRoute[Req any, Resp any](r *Router, route GenericRouteConfig[Req, Resp]) *Router {
	timeout := r.getEffectiveTimeout(route.Timeout, 0)
	maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
	rateLimit := r.getEffectiveRateLimit(route.RateLimit, nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, err := route.Codec.Decode(req)
		if err != nil {
			r.handleError(w, req, err, http.StatusBadRequest, "Failed to decode request")
			return
		}

		resp, err := route.Handler(request.New(req, GetParams(req), r.settings), data)
		if err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if err := route.Codec.Encode(w, resp); err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Failed to encode response")
		}
	})

	wrapped := r.wrapHandler(handler, route.Path, timeout, maxBodySize, rateLimit, route.BodySchema, route.Middlewares)
	r.handle(route.Methods, route.Path, wrapped)
	return r
}

func (r *Router) handle(methods []string, path string, handler http.Handler) {
	for _, method := range methods {
		r.router.Handle(method, path, r.convertToHTTPRouterHandle(handler))
	}
}

// adapt turns a plugin Handler into an http.Handler building its context.
func (r *Router) adapt(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c := request.New(req, GetParams(req), r.settings)
		if err := h(c, w, req); err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Internal Server Error")
		}
	})
}

// convertToHTTPRouterHandle converts an http.Handler to an httprouter.Handle.
// It stores the route parameters in the request context so they can be accessed by handlers.
func (r *Router) convertToHTTPRouterHandle(handler http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(req.Context(), ParamsKey, ps)
		handler.ServeHTTP(w, req.WithContext(ctx))
	}
}

// wrapHandler wraps a handler with the router middleware chain:
// recovery, request id, logging, metrics, global and route middlewares,
// throttling, rate limiting, shutdown tracking, body size limit, body
// validation and timeout.
func (r *Router) wrapHandler(handler http.Handler, route string, timeout time.Duration, maxBodySize int64, rateLimit *middleware.RateLimitConfig, bodySchema *schema.Schema, middlewares []Middleware) http.Handler {
	h := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// First add to the wait group before checking shutdown status
		r.wg.Add(1)

		r.shutdownMu.RLock()
		isShutdown := r.shutdown
		r.shutdownMu.RUnlock()

		if isShutdown {
			r.wg.Done()
			common.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
			return
		}
		defer r.wg.Done()

		common.NewMiddlewareChain(
			middleware.MaxBodySize(maxBodySize),
			r.validateBody(bodySchema),
			middleware.Timeout(timeout, r.logger),
		).Then(handler).ServeHTTP(w, req)
	}))

	hc := r.settings.Headers
	chain := common.NewMiddlewareChain(
		middleware.Recovery(r.logger),
		middleware.RequestID(),
		middleware.Logging(r.logger, hc),
		r.config.Metrics.Middleware(route),
	)
	chain = chain.Append(r.middlewares...)
	chain = chain.Append(middlewares...)
	chain = chain.Append(middleware.Throttle(r.config.ThrottlePerSecond, middleware.IdentityKey(hc)))
	if rateLimit != nil {
		if rateLimit.Key == nil {
			keyed := *rateLimit
			keyed.Key = middleware.IdentityKey(hc)
			rateLimit = &keyed
		}
		chain = chain.Append(middleware.RateLimit(rateLimit, r.rateLimiter, r.logger))
	}

	return chain.Then(h)
}

// validateBody rejects requests whose body does not match s.
// The body is restored for the handler.
func (r *Router) validateBody(s *schema.Schema) Middleware {
	if s == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			raw, err := codec.NewJSONCodec[json.RawMessage, any]().Decode(req)
			if err != nil {
				r.handleError(w, req, err, http.StatusBadRequest, "Failed to decode request")
				return
			}
			if err := s.Validate(raw); err != nil {
				r.handleError(w, req, err, http.StatusBadRequest, err.Error())
				return
			}
			req.Body = io.NopCloser(bytes.NewReader(raw))
			next.ServeHTTP(w, req)
		})
	}
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Shutdown stops accepting new requests and waits for in-flight ones to
// finish or for ctx to be done.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetParams retrieves the httprouter.Params from the request context.
func GetParams(r *http.Request) httprouter.Params {
	params, _ := r.Context().Value(ParamsKey).(httprouter.Params)
	return params
}

// GetParam retrieves a specific parameter from the request context.
func GetParam(r *http.Request, name string) string {
	return GetParams(r).ByName(name)
}

// getEffectiveTimeout returns the effective timeout for a route.
// It considers route-specific, sub-router, and global timeout settings in that order of precedence.
func (r *Router) getEffectiveTimeout(routeTimeout, subRouterTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	if subRouterTimeout > 0 {
		return subRouterTimeout
	}
	return r.config.GlobalTimeout
}

// getEffectiveMaxBodySize returns the effective max body size for a route.
func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize, subRouterMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	if subRouterMaxBodySize > 0 {
		return subRouterMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}

// getEffectiveRateLimit returns the effective rate limit for a route.
func (r *Router) getEffectiveRateLimit(routeRateLimit, subRouterRateLimit *middleware.RateLimitConfig) *middleware.RateLimitConfig {
	if routeRateLimit != nil {
		return routeRateLimit
	}
	if subRouterRateLimit != nil {
		return subRouterRateLimit
	}
	return r.config.GlobalRateLimit
}

// handleError logs err and writes an error body. statusCode and message are
// used unless err is an *HTTPError, a rejected decorator envelope (400) or
// an oversized body (413).
func (r *Router) handleError(w http.ResponseWriter, req *http.Request, err error, statusCode int, message string) {
	var (
		httpErr     *HTTPError
		envErr      *decorator.EnvelopeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &httpErr):
		statusCode, message = httpErr.StatusCode, httpErr.Message
	case errors.As(err, &maxBytesErr):
		statusCode, message = http.StatusRequestEntityTooLarge, "Request body too large"
	case errors.As(err, &envErr):
		statusCode, message = http.StatusBadRequest, envErr.Error()
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", statusCode),
	}
	if id := middleware.GetRequestID(req); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if statusCode >= http.StatusInternalServerError {
		r.logger.Error(message, fields...)
	} else {
		r.logger.Warn(message, fields...)
	}

	common.WriteError(w, statusCode, message)
}

// HTTPError represents an HTTP error with a status code and message.
// When returned from a handler, the router uses the status code and message
// to build the error response.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message to be sent in the response body
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}
