// Package metrics exposes session lifecycle counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devicesession"

type Metrics struct {
	registry *prometheus.Registry
	issued   prometheus.Counter
	refresh  *prometheus.CounterVec
	revoked  *prometheus.CounterVec
}

// New builds the counters on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Sessions created by login.",
		}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refresh_total",
			Help:      "Refresh attempts by result.",
		}, []string{"result"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.issued,
		m.refresh,
		m.revoked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SessionIssued() {
	m.issued.Inc()
}

func (m *Metrics) RefreshCompleted(result string) {
	m.refresh.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionsRevoked(reason string, n int) {
	if n <= 0 {
		return
	}
	m.revoked.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
