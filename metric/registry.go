package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/servo/webxr/errors"
)

// MetricsRegistrar defines the interface backends use to register their
// own metrics alongside the core ones.
type MetricsRegistrar interface {
	RegisterCounter(backendName, metricName string, counter prometheus.Counter) error
	RegisterGauge(backendName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(backendName, metricName string, histogram prometheus.Histogram) error
	Unregister(backendName, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core runtime
// metrics and Go process collectors pre-registered.
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	registry.Metrics = NewMetrics()
	registry.registerMetrics()

	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core runtime metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// RegisterCounter registers a counter metric for a backend.
func (r *MetricsRegistry) RegisterCounter(backendName, metricName string, counter prometheus.Counter) error {
	return r.register(backendName, metricName, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a backend.
func (r *MetricsRegistry) RegisterGauge(backendName, metricName string, gauge prometheus.Gauge) error {
	return r.register(backendName, metricName, "RegisterGauge", gauge)
}

// RegisterHistogram registers a histogram metric for a backend.
func (r *MetricsRegistry) RegisterHistogram(backendName, metricName string, histogram prometheus.Histogram) error {
	return r.register(backendName, metricName, "RegisterHistogram", histogram)
}

func (r *MetricsRegistry) register(backendName, metricName, method string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", backendName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for backend %s", metricName, backendName),
			"MetricsRegistry", method, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", method,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", method,
			"failed to register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a metric from the registry.
func (r *MetricsRegistry) Unregister(backendName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", backendName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}

// registerMetrics registers all core runtime metrics.
func (r *MetricsRegistry) registerMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.DiscoveryAttempts,
		r.Metrics.BackendsActive,
		r.Metrics.SessionsActive,
		r.Metrics.SessionsTotal,
		r.Metrics.SessionState,
		r.Metrics.FramesDelivered,
		r.Metrics.FrameTimeouts,
		r.Metrics.FrameLatency,
		r.Metrics.ErrorsTotal,
	)
}
