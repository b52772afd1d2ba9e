// Package config resolves the service configuration of a plugin from
// command line flags and environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/Suhaibinator/SPlugin/pkg/headers"
)

// Service is the configuration of a plugin service.
type Service struct {
	HTTPPort       int
	LogLevel       string
	LogJSON        bool
	ServiceName    string
	ServiceVersion string

	UserIDHeaderKey         string
	UserPropertiesHeaderKey string
	GroupsHeaderKey         string
	ClientTypeHeaderKey     string
	BackOfficeHeaderKey     string

	GatewayServiceName       string
	AdditionalHeadersToProxy string

	EnableHTTPClientMetrics bool
	ExposeMetrics           bool
	EnableTracing           bool
	OTLPEndpoint            string
	TraceSample             float64

	RequestTimeout     time.Duration
	HTTPClientTimeout  time.Duration
	MaxBodySize        int64
	RateLimitPerSecond int
	ThrottlePerSecond  int
	ShutdownTimeout    time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *Service) {
	d := headers.DefaultConfig()

	fs.IntVar(&c.HTTPPort, "http-port", 3000, "listen TCP port (1..65535)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or console (false)")
	fs.StringVar(&c.ServiceName, "service-name", "", "service name reported by health routes and traces")
	fs.StringVar(&c.ServiceVersion, "service-version", "", "service version reported by health routes and traces")

	fs.StringVar(&c.UserIDHeaderKey, "userid-header-key", d.UserIDHeaderKey, "header carrying the user id")
	fs.StringVar(&c.UserPropertiesHeaderKey, "user-properties-header-key", d.UserPropertiesHeaderKey, "header carrying the JSON user properties")
	fs.StringVar(&c.GroupsHeaderKey, "groups-header-key", d.GroupsHeaderKey, "header carrying the comma separated user groups")
	fs.StringVar(&c.ClientTypeHeaderKey, "clienttype-header-key", d.ClientTypeHeaderKey, "header carrying the client type")
	fs.StringVar(&c.BackOfficeHeaderKey, "backoffice-header-key", d.BackOfficeHeaderKey, "header set on back-office requests")

	fs.StringVar(&c.GatewayServiceName, "microservice-gateway-service-name", "", "gateway used by service proxies")
	fs.StringVar(&c.AdditionalHeadersToProxy, "additional-headers-to-proxy", "", "comma separated inbound headers forwarded by service proxies")

	fs.BoolVar(&c.EnableHTTPClientMetrics, "enable-http-client-metrics", false, "record outbound call durations")
	fs.BoolVar(&c.ExposeMetrics, "expose-metrics", true, "serve prometheus metrics on /-/metrics")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export traces to otel-exporter-otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otel-exporter-otlp-endpoint", "", "OTLP/HTTP endpoint URL traces are pushed to")
	fs.Float64Var(&c.TraceSample, "trace-sample", 1.0, "trace sampling ratio (0..1)")

	fs.DurationVar(&c.RequestTimeout, "request-timeout", 0, "timeout of every route, 0 disables it")
	fs.DurationVar(&c.HTTPClientTimeout, "http-client-timeout", 0, "default timeout of outbound calls made through service proxies, 0 disables it")
	fs.Int64Var(&c.MaxBodySize, "max-body-size", 1<<20, "maximum request body size in bytes, 0 disables it")
	fs.IntVar(&c.RateLimitPerSecond, "rate-limit-per-second", 0, "requests admitted per caller per second, 0 disables it")
	fs.IntVar(&c.ThrottlePerSecond, "throttle-per-second", 0, "requests served per caller per second, excess requests wait, 0 disables it")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey returns the environment variable read for flag name.
func EnvKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// Load parses args into a Service, filling unset flags from the environment,
// and validates the result.
func Load(name string, args []string, logf func(string, ...any)) (Service, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var c Service
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	FillFromEnv(fs, "", logf)
	return c, Validate(c)
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c Service) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	for key, v := range map[string]string{
		"USERID_HEADER_KEY":          c.UserIDHeaderKey,
		"USER_PROPERTIES_HEADER_KEY": c.UserPropertiesHeaderKey,
		"GROUPS_HEADER_KEY":          c.GroupsHeaderKey,
		"CLIENTTYPE_HEADER_KEY":      c.ClientTypeHeaderKey,
		"BACKOFFICE_HEADER_KEY":      c.BackOfficeHeaderKey,
	} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if u, err := url.Parse(c.OTLPEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT must be a URL (got %q)", c.OTLPEndpoint))
		}
	}

	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("invalid REQUEST_TIMEOUT %s (must be >= 0)", c.RequestTimeout))
	}
	if c.HTTPClientTimeout < 0 {
		errs = append(errs, fmt.Errorf("invalid HTTP_CLIENT_TIMEOUT %s (must be >= 0)", c.HTTPClientTimeout))
	}
	if c.MaxBodySize < 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_BODY_SIZE %d (must be >= 0)", c.MaxBodySize))
	}
	if c.RateLimitPerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_PER_SECOND %d (must be >= 0)", c.RateLimitPerSecond))
	}
	if c.ThrottlePerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid THROTTLE_PER_SECOND %d (must be >= 0)", c.ThrottlePerSecond))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %s (must be > 0)", c.ShutdownTimeout))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HeaderConfig returns the identity header names.
func (c Service) HeaderConfig() headers.Config {
	return headers.Config{
		UserIDHeaderKey:         c.UserIDHeaderKey,
		UserPropertiesHeaderKey: c.UserPropertiesHeaderKey,
		GroupsHeaderKey:         c.GroupsHeaderKey,
		ClientTypeHeaderKey:     c.ClientTypeHeaderKey,
		BackOfficeHeaderKey:     c.BackOfficeHeaderKey,
	}
}

// AdditionalHeaders returns the lower-cased, non-empty entries of
// AdditionalHeadersToProxy.
func (c Service) AdditionalHeaders() []string {
	out := []string{}
	for _, h := range strings.Split(c.AdditionalHeadersToProxy, ",") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}
