package config

import (
	"flag"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Suhaibinator/SPlugin/pkg/headers"
)

// newTestConfig registers flags on a fresh FlagSet and parses args.
func newTestConfig(t *testing.T, args []string) (*Service, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := &Service{}
	Register(fs, c)
	require.NoError(t, fs.Parse(args))
	return c, fs
}

func TestRegisterDefaults(t *testing.T) {
	c, _ := newTestConfig(t, nil)

	assert.Equal(t, 3000, c.HTTPPort)
	assert.Equal(t, "info", c.LogLevel)
	assert.True(t, c.LogJSON)
	assert.Equal(t, headers.DefaultConfig(), c.HeaderConfig())
	assert.Empty(t, c.GatewayServiceName)
	assert.Empty(t, c.AdditionalHeaders())
	assert.False(t, c.EnableTracing)
	assert.Equal(t, 1.0, c.TraceSample)
	assert.Equal(t, int64(1<<20), c.MaxBodySize)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.NoError(t, Validate(*c))
}

func TestFillFromEnv(t *testing.T) {
	t.Setenv("USERID_HEADER_KEY", "x-user")
	t.Setenv("MICROSERVICE_GATEWAY_SERVICE_NAME", "gateway")
	t.Setenv("ADDITIONAL_HEADERS_TO_PROXY", " X-Tenant , ,x-trace")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("HTTP_CLIENT_TIMEOUT", "500ms")
	t.Setenv("THROTTLE_PER_SECOND", "50")

	c, fs := newTestConfig(t, nil)
	FillFromEnv(fs, "", nil)

	assert.Equal(t, "x-user", c.UserIDHeaderKey)
	assert.Equal(t, "x-user", c.HeaderConfig().UserIDHeaderKey)
	assert.Equal(t, "gateway", c.GatewayServiceName)
	assert.Equal(t, []string{"x-tenant", "x-trace"}, c.AdditionalHeaders())
	assert.Equal(t, 2*time.Second, c.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, c.HTTPClientTimeout)
	assert.Equal(t, 50, c.ThrottlePerSecond)
}

func TestFillFromEnvPrefix(t *testing.T) {
	t.Setenv("PLUGIN_HTTP_PORT", "8081")
	t.Setenv("HTTP_PORT", "9999")

	c, fs := newTestConfig(t, nil)
	FillFromEnv(fs, "PLUGIN_", nil)
	assert.Equal(t, 8081, c.HTTPPort)
}

func TestFillFromEnvCLIWins(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")

	var logged []string
	c, fs := newTestConfig(t, []string{"-http-port=8080"})
	FillFromEnv(fs, "", func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})

	assert.Equal(t, 8080, c.HTTPPort)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "overrides env HTTP_PORT")
}

func TestFillFromEnvInvalidValueKeepsDefault(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")

	var logged []string
	c, fs := newTestConfig(t, nil)
	FillFromEnv(fs, "", func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})

	assert.Equal(t, 3000, c.HTTPPort)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "ignoring invalid env HTTP_PORT")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "MICROSERVICE_GATEWAY_SERVICE_NAME", EnvKey("", "microservice-gateway-service-name"))
	assert.Equal(t, "APP_LOG_LEVEL", EnvKey("APP_", "log-level"))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	c, _ := newTestConfig(t, nil)
	c.HTTPPort = 0
	c.LogLevel = "loud"
	c.GroupsHeaderKey = " "
	c.TraceSample = 2
	c.EnableTracing = true
	c.RateLimitPerSecond = -1
	c.HTTPClientTimeout = -time.Second

	err := Validate(*c)
	require.Error(t, err)
	for _, want := range []string{
		"HTTP_PORT",
		"LOG_LEVEL",
		"GROUPS_HEADER_KEY",
		"TRACE_SAMPLE",
		"OTEL_EXPORTER_OTLP_ENDPOINT required",
		"RATE_LIMIT_PER_SECOND",
		"HTTP_CLIENT_TIMEOUT",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateTracingEndpoint(t *testing.T) {
	c, _ := newTestConfig(t, nil)
	c.EnableTracing = true
	c.OTLPEndpoint = "collector:4318"
	assert.ErrorContains(t, Validate(*c), "must be a URL")

	c.OTLPEndpoint = "http://collector:4318"
	assert.NoError(t, Validate(*c))
}

func TestLoad(t *testing.T) {
	t.Setenv("SERVICE_NAME", "my-plugin")

	c, err := Load("plugin", []string{"-log-level=debug"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "my-plugin", c.ServiceName)
	assert.Equal(t, "debug", c.LogLevel)

	_, err = Load("plugin", []string{"-http-port=0"}, nil)
	assert.ErrorContains(t, err, "HTTP_PORT")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("ADDITIONAL_HEADERS_TO_PROXY", "X-Tenant")

	c, err := Load("test", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.RequestTimeout)
	assert.Equal(t, []string{"x-tenant"}, c.AdditionalHeaders())
}
