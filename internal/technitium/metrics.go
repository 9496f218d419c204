package technitium

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records upstream API calls. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	invalid  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isotope_upstream_requests_total",
			Help: "DNS server API calls by endpoint and envelope status",
		},
			[]string{"endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isotope_upstream_request_duration_seconds",
			Help:    "DNS server API call latency",
			Buckets: prometheus.DefBuckets,
		},
			[]string{"endpoint"},
		),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isotope_upstream_invalid_tokens_total",
			Help: "replies that rejected the bearer token",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.invalid)
	return m
}

func (m *Metrics) observe(endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
	m.duration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// statusLabel folds an envelope status into a fixed label set.
func statusLabel(status string) string {
	switch status {
	case StatusOK, StatusError, StatusInvalidToken:
		return status
	default:
		return "other"
	}
}

func (m *Metrics) invalidToken() {
	if m == nil {
		return
	}
	m.invalid.Inc()
}
