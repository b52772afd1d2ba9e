package httpclient

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// newTransport builds a transport for the given TLS and proxy settings.
// When base is set it is used as is and tlsOpts/proxyOpts are ignored.
// The result is instrumented so that trace context is propagated downstream.
func newTransport(base http.RoundTripper, tlsOpts *TLSOptions, proxyOpts *ProxyOptions) (http.RoundTripper, *http.Transport, error) {
	if base != nil {
		return otelhttp.NewTransport(base), nil, nil
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	if tlsOpts != nil {
		cfg, err := tlsOpts.config()
		if err != nil {
			return nil, nil, err
		}
		t.TLSClientConfig = cfg
	}
	if proxyOpts != nil {
		u, err := proxyOpts.url()
		if err != nil {
			return nil, nil, err
		}
		t.Proxy = http.ProxyURL(u)
	}
	return otelhttp.NewTransport(t), t, nil
}
