package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo/webxr/session"
)

func TestStatusConstructors(t *testing.T) {
	h := NewHealthy("registry", "backends registered")
	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("transport", "reconnecting")
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)

	u := NewUnhealthy("device", "lost")
	assert.True(t, u.IsUnhealthy())
	assert.False(t, u.Healthy)
}

func TestFromSessionState(t *testing.T) {
	assert.True(t, FromSessionState("s1", session.StateActive).IsHealthy())
	assert.True(t, FromSessionState("s1", session.StateRequested).IsHealthy())
	assert.True(t, FromSessionState("s1", session.StateEnding).IsDegraded())
	assert.True(t, FromSessionState("s1", session.StateLost).IsUnhealthy())
}

func TestAggregateRules(t *testing.T) {
	assert.True(t, Aggregate("agent", nil).IsHealthy())

	all := Aggregate("agent", []Status{
		NewHealthy("a", ""),
		NewHealthy("b", ""),
	})
	assert.True(t, all.IsHealthy())
	assert.Len(t, all.SubStatuses, 2)

	degraded := Aggregate("agent", []Status{
		NewHealthy("a", ""),
		NewDegraded("b", ""),
	})
	assert.True(t, degraded.IsDegraded())

	unhealthy := Aggregate("agent", []Status{
		NewDegraded("a", ""),
		NewUnhealthy("b", ""),
	})
	assert.True(t, unhealthy.IsUnhealthy())
}

func TestWithSubStatusDoesNotShareBacking(t *testing.T) {
	base := NewHealthy("agent", "").WithSubStatus(NewHealthy("a", ""))
	forked1 := base.WithSubStatus(NewHealthy("b", ""))
	forked2 := base.WithSubStatus(NewHealthy("c", ""))

	require.Len(t, forked1.SubStatuses, 2)
	require.Len(t, forked2.SubStatuses, 2)
	assert.Equal(t, "b", forked1.SubStatuses[1].Component)
	assert.Equal(t, "c", forked2.SubStatuses[1].Component)
}

func TestMonitorTracksComponents(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("registry", "2 backends")
	m.UpdateUnhealthy("session-1", "device lost")

	status, ok := m.Get("registry")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "registry", status.Component)

	assert.Equal(t, []string{"registry", "session-1"}, m.Components())
	assert.Equal(t, 2, m.Count())

	agg := m.AggregateHealth("agent")
	assert.True(t, agg.IsUnhealthy())

	m.Remove("session-1")
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.AggregateHealth("agent").IsHealthy())
}

func TestMonitorUpdateStampsNameAndTime(t *testing.T) {
	m := NewMonitor()
	m.Update("transport", Status{Status: "healthy", Healthy: true})

	status, ok := m.Get("transport")
	require.True(t, ok)
	assert.Equal(t, "transport", status.Component)
	assert.WithinDuration(t, time.Now(), status.Timestamp, time.Second)
}

func TestHandlerStatusCodes(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("registry", "")

	rec := httptest.NewRecorder()
	m.Handler("agent").ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.IsHealthy())

	m.UpdateUnhealthy("device", "lost")
	rec = httptest.NewRecorder()
	m.Handler("agent").ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 503, rec.Code)
}
