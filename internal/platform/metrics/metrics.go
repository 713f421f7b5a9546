package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streamer"

// Metrics holds Prometheus counters and gauges for the streaming server.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	negotiationsTotal     *prometheus.CounterVec
	sessionsAdmittedTotal *prometheus.CounterVec
	sessionsRetiredTotal  *prometheus.CounterVec
	packetsSentTotal      *prometheus.CounterVec
	packetsDroppedTotal   *prometheus.CounterVec
	writeErrorsTotal      *prometheus.CounterVec
	slicesTotal           *prometheus.CounterVec
	slicePackets          *prometheus.HistogramVec
	streamDuration        *prometheus.HistogramVec
	queueLength           prometheus.Gauge
	activeSessions        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the streaming server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_requests_total",
			Help:      "Total number of admin HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_errors_total",
			Help:      "Total number of admin HTTP responses with error status (4xx or 5xx)",
		}),
		negotiationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiations_total",
			Help:      "Negotiation requests answered, by accepted resolution",
		}, []string{"resolution"}),
		sessionsAdmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_admitted_total",
			Help:      "Stream sessions admitted to the queue",
		}, []string{"transport"}),
		sessionsRetiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_retired_total",
			Help:      "Stream sessions that reached their packet budget",
		}, []string{"transport"}),
		packetsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Stream packets handed to the transport",
		}, []string{"transport"}),
		packetsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Stream packets dropped by the modeled lossy channel",
		}, []string{"transport"}),
		writeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Stream packet writes that returned an error",
		}, []string{"transport"}),
		slicesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_slices_total",
			Help:      "Dispatch slices run by the scheduler",
		}, []string{"policy"}),
		slicePackets: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_slice_packets",
			Help:      "Packets emitted per dispatch slice",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 150},
		}, []string{"policy"}),
		streamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Time from first dispatch to retirement",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"transport"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Sessions waiting in the scheduler queue",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions admitted and not yet retired",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.negotiationsTotal,
		m.sessionsAdmittedTotal,
		m.sessionsRetiredTotal,
		m.packetsSentTotal,
		m.packetsDroppedTotal,
		m.writeErrorsTotal,
		m.slicesTotal,
		m.slicePackets,
		m.streamDuration,
		m.queueLength,
		m.activeSessions,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Negotiated counts an answered negotiation.
func (m *Metrics) Negotiated(resolution string) {
	m.negotiationsTotal.WithLabelValues(resolution).Inc()
}

// SessionAdmitted counts a session entering the queue.
func (m *Metrics) SessionAdmitted(transport string) {
	m.sessionsAdmittedTotal.WithLabelValues(transport).Inc()
}

// SessionRetired counts a finished session and observes its stream duration.
func (m *Metrics) SessionRetired(transport string, streamed time.Duration) {
	m.sessionsRetiredTotal.WithLabelValues(transport).Inc()
	m.streamDuration.WithLabelValues(transport).Observe(streamed.Seconds())
}

// PacketSent counts a packet handed to the transport.
func (m *Metrics) PacketSent(transport string) {
	m.packetsSentTotal.WithLabelValues(transport).Inc()
}

// PacketDropped counts a packet lost to the modeled channel.
func (m *Metrics) PacketDropped(transport string) {
	m.packetsDroppedTotal.WithLabelValues(transport).Inc()
}

// WriteFailed counts a packet write that returned an error.
func (m *Metrics) WriteFailed(transport string) {
	m.writeErrorsTotal.WithLabelValues(transport).Inc()
}

// SliceDispatched counts one scheduler slice and the packets it emitted.
func (m *Metrics) SliceDispatched(policy string, packets int) {
	m.slicesTotal.WithLabelValues(policy).Inc()
	m.slicePackets.WithLabelValues(policy).Observe(float64(packets))
}

// SetQueueLength sets the queue length gauge.
func (m *Metrics) SetQueueLength(n int) {
	m.queueLength.Set(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. queue length).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
