package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ReturnAs selects how a response body is materialized.
type ReturnAs string

const (
	// JSON decodes the body as JSON. It is the default.
	JSON ReturnAs = "JSON"
	// Buffer returns the raw body bytes.
	Buffer ReturnAs = "BUFFER"
	// Stream hands the body to the caller as an io.ReadCloser.
	Stream ReturnAs = "STREAM"
)

// DefaultErrorMessageKey is the JSON key read from error bodies.
const DefaultErrorMessageKey = "message"

// Options configures a call. A Client carries base Options; every call can
// override them with its own.
type Options struct {
	// Headers sent with the call. Base headers override mia headers and
	// per-call headers override base headers.
	Headers map[string]string

	// Query parameters appended to the request URL.
	Query map[string]string

	// Timeout of the whole call. For STREAM it keeps running until the
	// stream is closed. Zero means no timeout.
	Timeout time.Duration

	// ReturnAs selects the response shape. Empty means JSON.
	ReturnAs ReturnAs

	// ValidateStatus reports whether a status code is accepted.
	// Nil accepts 2xx only.
	ValidateStatus func(statusCode int) bool

	// ErrorMessageKey is the key of the message in JSON error bodies.
	ErrorMessageKey string

	TLS   *TLSOptions
	Proxy *ProxyOptions

	// IsMiaHeaderInjected controls whether the identity headers are sent.
	// Nil means true.
	IsMiaHeaderInjected *bool

	// Logger used for the call. Nil disables logging.
	Logger *zap.Logger

	Metrics MetricsOptions
}

// MetricsOptions tunes duration metric emission for a call.
type MetricsOptions struct {
	// URLLabel replaces the request path in the "url" label,
	// typically with a templated path such as /users/:id.
	URLLabel string
	Disabled bool
}

// TLSOptions carries PEM encoded client certificate material.
type TLSOptions struct {
	Cert               []byte
	Key                []byte
	CA                 []byte
	InsecureSkipVerify bool
}

// ProxyOptions routes calls through an outbound HTTP proxy.
type ProxyOptions struct {
	Protocol string // http or https, default http
	Host     string
	Port     int
	Auth     *ProxyAuth
}

// ProxyAuth is the basic auth used against the proxy.
type ProxyAuth struct {
	Username string
	Password string
}

// Bool returns a pointer to b, for use with Options.IsMiaHeaderInjected.
func Bool(b bool) *bool { return &b }

// DefaultValidateStatus accepts the 2xx range.
func DefaultValidateStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// Merge returns o overridden by the non-zero fields of over. Headers and
// query parameters are merged key by key.
func (o Options) Merge(over Options) Options {
	out := o
	out.Headers = mergeHeaders(o.Headers, over.Headers)
	out.Query = mergeMaps(o.Query, over.Query)
	if over.Timeout > 0 {
		out.Timeout = over.Timeout
	}
	if over.ReturnAs != "" {
		out.ReturnAs = over.ReturnAs
	}
	if over.ValidateStatus != nil {
		out.ValidateStatus = over.ValidateStatus
	}
	if over.ErrorMessageKey != "" {
		out.ErrorMessageKey = over.ErrorMessageKey
	}
	if over.TLS != nil {
		out.TLS = over.TLS
	}
	if over.Proxy != nil {
		out.Proxy = over.Proxy
	}
	if over.IsMiaHeaderInjected != nil {
		out.IsMiaHeaderInjected = over.IsMiaHeaderInjected
	}
	if over.Logger != nil {
		out.Logger = over.Logger
	}
	if over.Metrics.URLLabel != "" {
		out.Metrics.URLLabel = over.Metrics.URLLabel
	}
	out.Metrics.Disabled = o.Metrics.Disabled || over.Metrics.Disabled
	return out
}

func (o Options) returnAs() (ReturnAs, error) {
	switch o.ReturnAs {
	case "":
		return JSON, nil
	case JSON, Buffer, Stream:
		return o.ReturnAs, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReturnAs, o.ReturnAs)
	}
}

func (o Options) miaHeaderInjected() bool {
	return o.IsMiaHeaderInjected == nil || *o.IsMiaHeaderInjected
}

func (o Options) validateStatus() func(int) bool {
	if o.ValidateStatus != nil {
		return o.ValidateStatus
	}
	return DefaultValidateStatus
}

func (o Options) errorMessageKey() string {
	if o.ErrorMessageKey != "" {
		return o.ErrorMessageKey
	}
	return DefaultErrorMessageKey
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (t *TLSOptions) config() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // opt-in per call
	}
	if len(t.Cert) > 0 || len(t.Key) > 0 {
		pair, err := tls.X509KeyPair(t.Cert, t.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: client certificate: %v", ErrInvalidTLS, err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}
	if len(t.CA) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(t.CA) {
			return nil, fmt.Errorf("%w: no certificates found in CA", ErrInvalidTLS)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func (p *ProxyOptions) url() (*url.URL, error) {
	protocol := p.Protocol
	if protocol == "" {
		protocol = "http"
	}
	if protocol != "http" && protocol != "https" {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidProxy, p.Protocol)
	}
	if p.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidProxy)
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	u := &url.URL{Scheme: protocol, Host: host}
	if p.Auth != nil {
		u.User = url.UserPassword(p.Auth.Username, p.Auth.Password)
	}
	return u, nil
}

// mergeHeaders flattens header layers, later layers winning. Keys are
// canonicalized so that "foo" and "Foo" collide as they do on the wire.
func mergeHeaders(layers ...map[string]string) map[string]string {
	n := 0
	for _, l := range layers {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for _, l := range layers {
		for k, v := range l {
			out[http.CanonicalHeaderKey(k)] = v
		}
	}
	return out
}

func mergeMaps(maps ...map[string]string) map[string]string {
	n := 0
	for _, m := range maps {
		n += len(m)
	}
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

var (
	// ErrInvalidReturnAs is returned, before any I/O, for an unknown ReturnAs.
	ErrInvalidReturnAs = errors.New("httpclient: invalid returnAs")
	// ErrInvalidTLS is returned when TLS material cannot be loaded.
	ErrInvalidTLS = errors.New("httpclient: invalid TLS options")
	// ErrInvalidProxy is returned for unusable proxy settings.
	ErrInvalidProxy = errors.New("httpclient: invalid proxy options")
	// ErrInvalidBaseURL is returned by New for a malformed target.
	ErrInvalidBaseURL = errors.New("httpclient: invalid base URL")
)
