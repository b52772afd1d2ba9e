// Package httpclient performs outbound HTTP calls for mesh services.
//
// It adds policy around net/http: identity header injection with a fixed
// precedence, body encoding, response materialization (JSON, BUFFER or
// STREAM), status validation with message extraction, TLS and proxy
// settings, timeouts with a distinguishable error, duration metrics and
// structured logging.
//
// A Client is immutable after New and safe for concurrent use.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/metrics"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the call target, for example http://crud-service:3000/prefix.
	BaseURL string

	// MiaHeaders are the identity headers captured for this client.
	// They have the lowest precedence of all header layers.
	MiaHeaders map[string]string

	// Options are the base options of every call.
	Options Options

	// Metrics, when set, receives the duration of every call.
	Metrics *metrics.ClientMetrics

	// Transport overrides the default transport. TLS and proxy options are
	// ignored when it is set.
	Transport http.RoundTripper
}

// Client issues outbound calls against a single target.
type Client struct {
	baseURL    *url.URL
	base       string
	miaHeaders map[string]string
	options    Options
	metrics    *metrics.ClientMetrics
	transport  http.RoundTripper
	http       *http.Client
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if _, err := cfg.Options.returnAs(); err != nil {
		return nil, err
	}

	rt, _, err := newTransport(cfg.Transport, cfg.Options.TLS, cfg.Options.Proxy)
	if err != nil {
		return nil, err
	}

	mia := make(map[string]string, len(cfg.MiaHeaders))
	for k, v := range cfg.MiaHeaders {
		mia[k] = v
	}

	return &Client{
		baseURL:    u,
		base:       strings.TrimSuffix(cfg.BaseURL, "/"),
		miaHeaders: mia,
		options:    cfg.Options,
		metrics:    cfg.Metrics,
		transport:  cfg.Transport,
		http:       &http.Client{Transport: rt},
	}, nil
}

// BaseURL returns the call target.
func (c *Client) BaseURL() string { return c.base }

// Get issues a GET call.
func (c *Client) Get(ctx context.Context, path string, opts ...Options) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST call.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...Options) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT call.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...Options) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Patch issues a PATCH call.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...Options) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete issues a DELETE call.
func (c *Client) Delete(ctx context.Context, path string, body any, opts ...Options) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, body, opts...)
}

// Do issues a single call. Options given here are merged over the client's
// base options in order.
//
// Configuration errors (bad ReturnAs, TLS or proxy settings) are returned
// before any network I/O. Failures to reach the target are returned as
// *TransportError, rejected statuses as *StatusError and undecodable JSON
// bodies as *DecodeError.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...Options) (*Response, error) {
	o := c.options
	for _, over := range opts {
		o = o.Merge(over)
	}

	returnAs, err := o.returnAs()
	if err != nil {
		return nil, err
	}
	payload, err := encodeBody(method, body)
	if err != nil {
		return nil, err
	}
	target, err := c.resolve(path, o.Query)
	if err != nil {
		return nil, err
	}
	hc, closeIdle, err := c.httpClientFor(o)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	stopTimer := func() {}
	if o.Timeout > 0 {
		timer := time.AfterFunc(o.Timeout, func() {
			timedOut.Store(true)
			cancel()
		})
		stopTimer = func() { timer.Stop() }
	}
	release := func() {
		stopTimer()
		cancel()
		closeIdle()
	}

	req, err := http.NewRequestWithContext(callCtx, method, target, nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	payload.attach(req)
	if o.miaHeaderInjected() {
		for k, v := range c.miaHeaders {
			req.Header.Set(k, v)
		}
	}
	for k, v := range o.Headers {
		req.Header.Set(k, v)
	}

	logger := o.logger().With(
		zap.String("method", method),
		zap.String("baseURL", c.base),
		zap.String("path", path),
	)
	logger.Debug("make call")
	start := time.Now()

	resp, err := hc.Do(req)
	if err != nil {
		release()
		terr := newTransportError(err, timedOut.Load())
		logger.Error("error in http call", zap.String("code", terr.Code), zap.Error(err))
		return nil, terr
	}

	validate := o.validateStatus()
	if returnAs == Stream && validate(resp.StatusCode) {
		c.observe(o, method, path, resp.StatusCode, time.Since(start))
		logger.Debug("response info",
			zap.Int("statusCode", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)
		return &Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Payload: &streamBody{
				ReadCloser: resp.Body,
				cancel:     release,
				timedOut:   timedOut.Load,
			},
		}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	release()
	if err != nil {
		terr := newTransportError(err, timedOut.Load())
		logger.Error("error in http call", zap.String("code", terr.Code), zap.Error(err))
		return nil, terr
	}

	duration := time.Since(start)
	c.observe(o, method, path, resp.StatusCode, duration)

	if !validate(resp.StatusCode) {
		errPayload, message := errorPayload(raw, returnAs, o.errorMessageKey())
		logger.Error("error in http call",
			zap.Int("statusCode", resp.StatusCode),
			zap.Duration("duration", duration),
			zap.String("message", message),
		)
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Payload:    errPayload,
			Message:    message,
		}
	}

	out := &Response{StatusCode: resp.StatusCode, Headers: resp.Header, raw: raw}
	switch returnAs {
	case Buffer:
		out.Payload = raw
	case JSON:
		if len(bytes.TrimSpace(raw)) > 0 {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				logger.Error("error in http call",
					zap.Int("statusCode", resp.StatusCode),
					zap.Error(err),
				)
				return nil, &DecodeError{StatusCode: resp.StatusCode, Headers: resp.Header, Body: raw, Err: err}
			}
			out.Payload = decoded
		}
	}

	logger.Debug("response info",
		zap.Int("statusCode", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	return out, nil
}

// resolve joins path onto the base URL and applies query.
// Absolute URLs in path replace the target.
func (c *Client) resolve(path string, query map[string]string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("httpclient: invalid path %q: %w", path, err)
	}

	var u url.URL
	if ref.IsAbs() {
		u = *ref
	} else {
		u = *c.baseURL
		if ref.Path != "" {
			u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
			u.RawPath = ""
		}
		u.RawQuery = ref.RawQuery
	}

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// httpClientFor returns the http.Client serving o. Calls overriding the
// client's TLS or proxy settings get a dedicated transport, released by
// the returned func.
func (c *Client) httpClientFor(o Options) (*http.Client, func(), error) {
	if c.transport != nil || (o.TLS == c.options.TLS && o.Proxy == c.options.Proxy) {
		return c.http, func() {}, nil
	}
	rt, t, err := newTransport(nil, o.TLS, o.Proxy)
	if err != nil {
		return nil, nil, err
	}
	return &http.Client{Transport: rt}, t.CloseIdleConnections, nil
}

func (c *Client) observe(o Options, method, path string, statusCode int, d time.Duration) {
	if c.metrics == nil || o.Metrics.Disabled {
		return
	}
	label := o.Metrics.URLLabel
	if label == "" {
		label = path
		if i := strings.IndexByte(label, '?'); i >= 0 {
			label = label[:i]
		}
	}
	c.metrics.ObserveCall(method, label, c.base, statusCode, d)
}

func newTransportError(err error, timedOut bool) *TransportError {
	if timedOut {
		return &TransportError{Code: CodeTimeout, Err: err}
	}
	return &TransportError{Code: transportCode(err), Err: err}
}
