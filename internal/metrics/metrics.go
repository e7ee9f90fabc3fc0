package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upstream (speech vendor) metrics
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_portal_upstream_requests_total",
			Help: "Total requests sent to the speech vendor",
		},
		[]string{"operation", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speech_portal_upstream_request_duration_seconds",
			Help:    "Speech vendor request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// Usage metrics
	UsageAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_portal_usage_amount_total",
			Help: "Total metered usage recorded, in each kind's unit",
		},
		[]string{"kind"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_portal_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "status"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_portal_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		UsageAmountTotal,
		HTTPRequestsTotal,
		RateLimitedTotal,
	)
}

// ObserveUpstream records one vendor call. status is the HTTP status code, or
// 0 when the request never got a response.
func ObserveUpstream(operation string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestsTotal.WithLabelValues(operation, label).Inc()
	UpstreamRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
