// Package request defines the context handed to every plugin handler.
//
// A Context wraps the inbound request together with the service settings
// resolved at startup. Identity accessors decode the identity headers on
// every call, and service proxies built from a Context forward that
// identity to the called service.
package request

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/headers"
	"github.com/Suhaibinator/SPlugin/pkg/httpclient"
	"github.com/Suhaibinator/SPlugin/pkg/metrics"
	"github.com/Suhaibinator/SPlugin/pkg/middleware"
	"github.com/Suhaibinator/SPlugin/pkg/proxy"
)

// Settings is the service level configuration shared by every Context.
type Settings struct {
	// Headers names the identity headers.
	Headers headers.Config
	// AdditionalHeaders lists inbound headers forwarded verbatim by proxies.
	AdditionalHeaders []string
	// GatewayServiceName is the target of ServiceProxy.
	GatewayServiceName string
	// ClientOptions are the base options of every proxy.
	ClientOptions httpclient.Options
	// ClientMetrics records outbound call durations when set.
	ClientMetrics *metrics.ClientMetrics
	Logger        *zap.Logger
}

// DefaultSettings returns settings with the default header names.
func DefaultSettings() *Settings {
	return &Settings{Headers: headers.DefaultConfig(), Logger: zap.NewNop()}
}

// Context is the per-invocation context of a handler.
type Context struct {
	// Request is the inbound HTTP request.
	Request *http.Request
	// Params are the route parameters.
	Params httprouter.Params

	settings *Settings
	source   headers.Getter
}

// New returns a Context reading identity from r's headers.
func New(r *http.Request, params httprouter.Params, s *Settings) *Context {
	return NewWithHeaders(r, params, s, r.Header)
}

// NewWithHeaders returns a Context reading identity from h instead of the
// inbound headers. Decorators use it with the headers of the original
// request carried in their envelope.
func NewWithHeaders(r *http.Request, params httprouter.Params, s *Settings, h headers.Getter) *Context {
	if s == nil {
		s = DefaultSettings()
	}
	return &Context{Request: r, Params: params, settings: s, source: h}
}

// Ctx returns the context of the inbound request.
func (c *Context) Ctx() context.Context { return c.Request.Context() }

// Settings returns the service settings.
func (c *Context) Settings() *Settings { return c.settings }

// Headers returns the header source identity is decoded from.
func (c *Context) Headers() headers.Getter { return c.source }

// Param returns the value of the named route parameter.
func (c *Context) Param(name string) string { return c.Params.ByName(name) }

// Logger returns the service logger annotated with the request id.
func (c *Context) Logger() *zap.Logger {
	logger := c.settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if id := middleware.GetRequestID(c.Request); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}

// UserID returns the caller user id, or nil.
func (c *Context) UserID() *string {
	return headers.DecodeUserID(c.source.Get(c.settings.Headers.UserIDHeaderKey))
}

// UserProperties returns the decoded user properties, or nil.
func (c *Context) UserProperties() any {
	return headers.DecodeUserProperties(c.source.Get(c.settings.Headers.UserPropertiesHeaderKey))
}

// Groups returns the caller groups. It is never nil.
func (c *Context) Groups() []string {
	return headers.DecodeGroups(c.source.Get(c.settings.Headers.GroupsHeaderKey))
}

// ClientType returns the caller client type, or nil.
func (c *Context) ClientType() *string {
	return headers.DecodeClientType(c.source.Get(c.settings.Headers.ClientTypeHeaderKey))
}

// IsFromBackOffice reports whether the call comes from the back office.
func (c *Context) IsFromBackOffice() bool {
	return headers.DecodeBackOffice(c.source.Get(c.settings.Headers.BackOfficeHeaderKey))
}

// Identity decodes the whole identity at once.
func (c *Context) Identity() headers.Identity {
	return c.settings.Headers.Decode(c.source)
}

// HeadersToProxy returns the headers to forward on a manual outbound call:
// the mia headers when injectMia is true, plus the allow-listed additional
// headers found on the request.
func (c *Context) HeadersToProxy(injectMia bool) map[string]string {
	out := map[string]string{}
	if injectMia {
		for k, v := range c.settings.Headers.EncodeMiaHeaders(c.Identity()) {
			out[k] = v
		}
	}
	for k, v := range c.settings.Headers.Pick(c.source, c.settings.AdditionalHeaders) {
		out[k] = v
	}
	return out
}

// ProxyBuilder returns a proxy builder scoped to the caller identity.
func (c *Context) ProxyBuilder() *proxy.Builder {
	opts := c.settings.ClientOptions
	if opts.Logger == nil {
		opts.Logger = c.Logger()
	}
	return &proxy.Builder{
		GatewayServiceName: c.settings.GatewayServiceName,
		MiaHeaders:         c.settings.Headers.EncodeMiaHeaders(c.Identity()),
		ExtraHeaders:       c.settings.Headers.Pick(c.source, c.settings.AdditionalHeaders),
		Options:            opts,
		Metrics:            c.settings.ClientMetrics,
		Logger:             c.Logger(),
	}
}

// DirectServiceProxy returns a proxy calling service directly.
func (c *Context) DirectServiceProxy(service string, opts proxy.Options) (*proxy.Proxy, error) {
	return c.ProxyBuilder().Direct(service, opts)
}

// ServiceProxy returns a proxy calling through the configured gateway.
func (c *Context) ServiceProxy(opts proxy.Options) (*proxy.Proxy, error) {
	return c.ProxyBuilder().Gateway(opts)
}
