package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo/webxr/errors"
)

func TestNewMetricsRegistryHasCoreMetrics(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r.CoreMetrics())
	require.NotNil(t, r.PrometheusRegistry())

	r.CoreMetrics().RecordFrameDelivered("s1", 11*time.Millisecond)
	r.CoreMetrics().RecordFrameDelivered("s1", 16*time.Millisecond)
	count := testutil.ToFloat64(r.CoreMetrics().FramesDelivered.WithLabelValues("s1"))
	assert.Equal(t, 2.0, count)
}

func TestRegisterCounterRejectsDuplicates(t *testing.T) {
	r := NewMetricsRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "headless_frames_total"})
	require.NoError(t, r.RegisterCounter("headless", "frames", c))

	err := r.RegisterCounter("headless", "frames", c)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	r := NewMetricsRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "remote_agents"})
	require.NoError(t, r.RegisterGauge("remote", "agents", g))

	assert.True(t, r.Unregister("remote", "agents"))
	assert.False(t, r.Unregister("remote", "agents"))

	require.NoError(t, r.RegisterGauge("remote", "agents", g))
}

func TestSessionCounters(t *testing.T) {
	r := NewMetricsRegistry()
	m := r.CoreMetrics()

	m.RecordSessionOpened("headless")
	m.RecordSessionOpened("headless")
	m.RecordSessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("headless")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
}

func TestFrameTimeoutCounter(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()
	m.RecordFrameTimeout("s1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameTimeouts.WithLabelValues("s1")))
}
