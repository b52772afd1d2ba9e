// Package proxy builds service proxies: HTTP clients bound to another
// service of the mesh that forward the caller's identity headers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/httpclient"
	"github.com/Suhaibinator/SPlugin/pkg/metrics"
)

var (
	// ErrGatewayNotConfigured is returned by Builder.Gateway when no gateway
	// service name is set.
	ErrGatewayNotConfigured = errors.New("proxy: gateway service name not configured")
	// ErrInvalidProtocol is returned for protocols other than http and https.
	ErrInvalidProtocol = errors.New("proxy: invalid protocol")
	// ErrMissingService is returned by Builder.Direct for an empty target.
	ErrMissingService = errors.New("proxy: missing service name")
)

// Options tunes how a proxy reaches its target.
type Options struct {
	// Port of the target. Zero keeps the protocol default.
	Port int
	// Protocol is http or https. Empty means http.
	Protocol string
	// Prefix is prepended to every call path.
	Prefix string
	// Client holds the base options of every call made by the proxy.
	Client httpclient.Options
}

// Builder creates proxies that carry a fixed identity.
// It is typically built once per inbound request.
type Builder struct {
	// GatewayServiceName is the target of gateway mediated proxies.
	GatewayServiceName string
	// MiaHeaders are the encoded identity headers of the caller.
	MiaHeaders map[string]string
	// ExtraHeaders are allow-listed inbound headers forwarded verbatim.
	ExtraHeaders map[string]string
	// Options are merged under the options given to Direct and Gateway.
	Options httpclient.Options
	Metrics *metrics.ClientMetrics
	Logger  *zap.Logger
}

// Direct returns a proxy towards service. A service starting with http://
// or https:// is used as the base URL verbatim and opts' protocol, port and
// prefix are ignored.
func (b *Builder) Direct(service string, opts Options) (*Proxy, error) {
	if service == "" {
		return nil, ErrMissingService
	}
	if isURL(service) {
		return b.build(service, opts.Client)
	}
	target, err := targetURL(service, opts)
	if err != nil {
		return nil, err
	}
	return b.build(target, opts.Client)
}

// Gateway returns a proxy towards the configured gateway service.
func (b *Builder) Gateway(opts Options) (*Proxy, error) {
	if b.GatewayServiceName == "" {
		return nil, ErrGatewayNotConfigured
	}
	return b.Direct(b.GatewayServiceName, opts)
}

func (b *Builder) build(target string, callOpts httpclient.Options) (*Proxy, error) {
	base := b.Options.Merge(callOpts)
	if base.Logger == nil {
		base.Logger = b.Logger
	}

	identity := make(map[string]string, len(b.MiaHeaders)+len(b.ExtraHeaders))
	for k, v := range b.MiaHeaders {
		identity[k] = v
	}
	for k, v := range b.ExtraHeaders {
		identity[k] = v
	}

	client, err := httpclient.New(httpclient.Config{
		BaseURL:    target,
		MiaHeaders: identity,
		Options:    base,
		Metrics:    b.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	return &Proxy{client: client}, nil
}

// Proxy issues calls against a single service. It is immutable and safe for
// concurrent use.
type Proxy struct {
	client *httpclient.Client
}

// Target returns the base URL of the proxy.
func (p *Proxy) Target() string { return p.client.BaseURL() }

// Get issues a GET call.
func (p *Proxy) Get(ctx context.Context, path string, opts ...httpclient.Options) (*httpclient.Response, error) {
	return p.client.Get(ctx, path, opts...)
}

// Post issues a POST call.
func (p *Proxy) Post(ctx context.Context, path string, body any, opts ...httpclient.Options) (*httpclient.Response, error) {
	return p.client.Post(ctx, path, body, opts...)
}

// Put issues a PUT call.
func (p *Proxy) Put(ctx context.Context, path string, body any, opts ...httpclient.Options) (*httpclient.Response, error) {
	return p.client.Put(ctx, path, body, opts...)
}

// Patch issues a PATCH call.
func (p *Proxy) Patch(ctx context.Context, path string, body any, opts ...httpclient.Options) (*httpclient.Response, error) {
	return p.client.Patch(ctx, path, body, opts...)
}

// Delete issues a DELETE call.
func (p *Proxy) Delete(ctx context.Context, path string, body any, opts ...httpclient.Options) (*httpclient.Response, error) {
	return p.client.Delete(ctx, path, body, opts...)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func targetURL(service string, opts Options) (string, error) {
	protocol := opts.Protocol
	if protocol == "" {
		protocol = "http"
	}
	if protocol != "http" && protocol != "https" {
		return "", fmt.Errorf("%w: %q", ErrInvalidProtocol, opts.Protocol)
	}

	host := service
	if opts.Port > 0 {
		host = net.JoinHostPort(service, strconv.Itoa(opts.Port))
	}

	prefix := strings.TrimSuffix(opts.Prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return protocol + "://" + host + prefix, nil
}
