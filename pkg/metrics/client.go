package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientDurationMetricName is the name of the outbound call histogram.
const ClientDurationMetricName = "http_request_duration_milliseconds"

// ClientMetrics records the duration of outbound HTTP calls.
type ClientMetrics struct {
	duration *prometheus.HistogramVec
}

// NewClientMetrics creates the outbound call histogram and registers it with reg.
// Labels are method, url (the templated path or an explicit label),
// baseUrl (the call target) and statusCode.
func NewClientMetrics(reg prometheus.Registerer) (*ClientMetrics, error) {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    ClientDurationMetricName,
		Help:    "request duration in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"method", "url", "baseUrl", "statusCode"})

	hist, err := register(reg, hist)
	if err != nil {
		return nil, err
	}
	return &ClientMetrics{duration: hist}, nil
}

// ObserveCall records a single completed call.
func (m *ClientMetrics) ObserveCall(method, url, baseURL string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(method, url, baseURL, strconv.Itoa(statusCode)).
		Observe(float64(d) / float64(time.Millisecond))
}
