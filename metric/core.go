package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core runtime metrics shared by every backend.
type Metrics struct {
	// Discovery metrics
	DiscoveryAttempts *prometheus.CounterVec
	BackendsActive    prometheus.Gauge

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	SessionState   *prometheus.GaugeVec

	// Frame metrics
	FramesDelivered *prometheus.CounterVec
	FrameTimeouts   *prometheus.CounterVec
	FrameLatency    *prometheus.HistogramVec

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all core collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		DiscoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webxr",
				Subsystem: "discovery",
				Name:      "attempts_total",
				Help:      "Total number of device probe attempts",
			},
			[]string{"backend", "status"},
		),

		BackendsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "webxr",
				Subsystem: "discovery",
				Name:      "backends",
				Help:      "Number of registered backends",
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "webxr",
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Number of sessions currently active",
			},
		),

		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webxr",
				Subsystem: "sessions",
				Name:      "total",
				Help:      "Total number of sessions opened",
			},
			[]string{"backend"},
		),

		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "webxr",
				Subsystem: "sessions",
				Name:      "state",
				Help:      "Session state (0=requested, 1=active, 2=ending, 3=ended, 4=lost)",
			},
			[]string{"session"},
		),

		FramesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webxr",
				Subsystem: "frames",
				Name:      "delivered_total",
				Help:      "Total number of frames delivered to hosts",
			},
			[]string{"session"},
		),

		FrameTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webxr",
				Subsystem: "frames",
				Name:      "timeouts_total",
				Help:      "Total number of frame requests that timed out",
			},
			[]string{"session"},
		),

		FrameLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webxr",
				Subsystem: "frames",
				Name:      "latency_seconds",
				Help:      "Time from frame request to delivery in seconds",
				Buckets:   []float64{.001, .002, .004, .008, .011, .016, .022, .033, .05, .1, .25},
			},
			[]string{"session"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webxr",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),
	}
}

// RecordDiscoveryAttempt increments the probe counter for a backend.
func (c *Metrics) RecordDiscoveryAttempt(backend, status string) {
	c.DiscoveryAttempts.WithLabelValues(backend, status).Inc()
}

// RecordBackendCount updates the registered backend gauge.
func (c *Metrics) RecordBackendCount(n int) {
	c.BackendsActive.Set(float64(n))
}

// RecordSessionOpened increments session counters for a backend.
func (c *Metrics) RecordSessionOpened(backend string) {
	c.SessionsTotal.WithLabelValues(backend).Inc()
	c.SessionsActive.Inc()
}

// RecordSessionClosed decrements the active session gauge.
func (c *Metrics) RecordSessionClosed() {
	c.SessionsActive.Dec()
}

// RecordSessionState updates the state gauge for a session.
func (c *Metrics) RecordSessionState(session string, state int) {
	c.SessionState.WithLabelValues(session).Set(float64(state))
}

// RecordFrameDelivered increments the delivered frame counter and records
// the request-to-delivery latency.
func (c *Metrics) RecordFrameDelivered(session string, latency time.Duration) {
	c.FramesDelivered.WithLabelValues(session).Inc()
	c.FrameLatency.WithLabelValues(session).Observe(latency.Seconds())
}

// RecordFrameTimeout increments the frame timeout counter.
func (c *Metrics) RecordFrameTimeout(session string) {
	c.FrameTimeouts.WithLabelValues(session).Inc()
}

// RecordError increments the error counter.
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
