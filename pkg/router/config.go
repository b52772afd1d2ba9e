// Package router binds plugin handlers to HTTP routes.
// It wires identity decoding, service proxies and the decorator pipelines
// into every handler, and applies logging, metrics, rate limiting, timeouts
// and body limits.
package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/metrics"
	"github.com/Suhaibinator/SPlugin/pkg/middleware"
	"github.com/Suhaibinator/SPlugin/pkg/request"
	"github.com/Suhaibinator/SPlugin/pkg/schema"
)

// RouterConfig defines the global configuration for the router.
// It includes settings for logging, timeouts, metrics, and middleware.
type RouterConfig struct {
	Logger            *zap.Logger                 // Logger for all router operations
	Settings          *request.Settings           // Identity headers, proxy settings and logger handed to handlers
	GlobalTimeout     time.Duration               // Default response timeout for all routes
	GlobalMaxBodySize int64                       // Default maximum request body size in bytes
	GlobalRateLimit   *middleware.RateLimitConfig // Default rate limit for all routes
	ThrottlePerSecond int                         // Per identity pacing applied to all routes, 0 disables it
	Metrics           *metrics.RouteMetrics       // Inbound route metrics (optional)
	SubRouters        []SubRouterConfig           // Sub-routers with their own configurations
	Middlewares       []common.Middleware         // Global middlewares applied to all routes
}

// SubRouterConfig defines configuration for a group of routes with a common path prefix.
type SubRouterConfig struct {
	PathPrefix          string                      // Common path prefix for all routes in this sub-router
	TimeoutOverride     time.Duration               // Override global timeout for all routes in this sub-router
	MaxBodySizeOverride int64                       // Override global max body size for all routes in this sub-router
	RateLimitOverride   *middleware.RateLimitConfig // Override global rate limit for all routes in this sub-router
	Routes              []RouteConfig               // Routes in this sub-router
	Middlewares         []common.Middleware         // Middlewares applied to all routes in this sub-router
}

// RouteConfig defines a route served by a plugin Handler.
type RouteConfig struct {
	Path        string                      // Route path (prefixed with the sub-router path prefix if applicable)
	Methods     []string                    // HTTP methods this route handles
	Timeout     time.Duration               // Override timeout for this specific route
	MaxBodySize int64                       // Override max body size for this specific route
	RateLimit   *middleware.RateLimitConfig // Rate limit for this specific route
	BodySchema  *schema.Schema              // JSON Schema the request body must match (optional)
	Handler     Handler                     // Plugin handler
	Middlewares []common.Middleware         // Middlewares applied to this specific route
}

// GenericRouteConfig defines a route with typed request and response bodies.
type GenericRouteConfig[T any, U any] struct {
	Path        string
	Methods     []string
	Timeout     time.Duration
	MaxBodySize int64
	RateLimit   *middleware.RateLimitConfig
	BodySchema  *schema.Schema
	Codec       Codec[T, U]          // Codec for the request and response bodies
	Handler     GenericHandler[T, U] // Typed handler
	Middlewares []common.Middleware
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// Handler is a plugin handler. It receives the handler context carrying the
// caller identity and service proxy access. A returned error is answered
// by the router: *HTTPError with its own status, anything else with a 500.
type Handler func(c *request.Context, w http.ResponseWriter, r *http.Request) error

// GenericHandler defines a handler function with typed request and response bodies.
// When used with RegisterGenericRoute, the router decodes the request and
// encodes the response with the route's Codec.
type GenericHandler[T any, U any] func(c *request.Context, data T) (U, error)

// Codec defines an interface for marshaling and unmarshaling request and response data.
type Codec[T any, U any] interface {
	// Decode extracts and deserializes data from an HTTP request into a value of type T.
	Decode(r *http.Request) (T, error)

	// Encode serializes a value of type U and writes it to the HTTP response.
	Encode(w http.ResponseWriter, resp U) error
}

// RouteOption tunes a route registered through AddRawCustomPlugin or the
// decorator helpers.
type RouteOption func(*RouteConfig)

// WithTimeout overrides the route timeout.
func WithTimeout(timeout time.Duration) RouteOption {
	return func(rc *RouteConfig) { rc.Timeout = timeout }
}

// WithMaxBodySize overrides the route max body size.
func WithMaxBodySize(size int64) RouteOption {
	return func(rc *RouteConfig) { rc.MaxBodySize = size }
}

// WithRateLimit sets the route rate limit.
func WithRateLimit(cfg *middleware.RateLimitConfig) RouteOption {
	return func(rc *RouteConfig) { rc.RateLimit = cfg }
}

// WithBodySchema validates request bodies against s before the handler runs.
// Bodies that do not match are answered with a 400.
func WithBodySchema(s *schema.Schema) RouteOption {
	return func(rc *RouteConfig) { rc.BodySchema = s }
}

// WithMiddlewares appends route middlewares.
func WithMiddlewares(mws ...Middleware) RouteOption {
	return func(rc *RouteConfig) { rc.Middlewares = append(rc.Middlewares, mws...) }
}
