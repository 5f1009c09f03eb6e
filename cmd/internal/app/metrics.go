package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beacon/cmd/internal/presence"
)

// Metrics owns the process Prometheus registry and the beacon collectors.
//
// It implements authapi.Metrics (rotation outcomes) and presence.Subscriber
// (online-users gauge), so it plugs straight into both subsystems.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	rotations *prometheus.CounterVec

	onlineUsers         prometheus.Gauge
	presenceTransitions prometheus.Counter
}

// NewMetrics builds and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_http_requests_total",
			Help: "HTTP requests by method, path and status class.",
		}, []string{"method", "path", "class"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beacon_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_session_rotations_total",
			Help: "Renewable credential rotations by outcome.",
		}, []string{"outcome"}),

		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_presence_online_users",
			Help: "Users with a live presence connection.",
		}),

		presenceTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_presence_transitions_total",
			Help: "Presence connect/disconnect transitions.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.rotations,
		m.onlineUsers,
		m.presenceTransitions,
	)
	return m
}

// Handler exposes the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncRotation implements authapi.Metrics.
func (m *Metrics) IncRotation(outcome string) {
	m.rotations.WithLabelValues(outcome).Inc()
}

// PresenceChanged implements presence.Subscriber.
func (m *Metrics) PresenceChanged(ev presence.Event) {
	m.onlineUsers.Set(float64(len(ev.Online)))
	m.presenceTransitions.Inc()
}

// WithHTTPMetrics observes every request. Mount inside the logging wrapper so
// both see the final status.
func (m *Metrics) WithHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw, ok := w.(*loggingResponseWriter)
		if !ok {
			lrw = &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			w = lrw
		}

		next.ServeHTTP(w, r)

		m.httpRequests.WithLabelValues(r.Method, r.URL.Path, statusClass(lrw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
