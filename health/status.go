// Package health tracks the liveness of backends, sessions and the
// transport so operators can tell a healthy agent from a degraded one.
package health

import (
	"time"

	"github.com/servo/webxr/session"
)

// Status is the health state of one component or an aggregate.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries health-related counters for a component.
type Metrics struct {
	Uptime          time.Duration `json:"uptime"`
	FramesDelivered int64         `json:"frames_delivered,omitempty"`
	FrameTimeouts   int64         `json:"frame_timeouts,omitempty"`
	LastFrame       time.Time     `json:"last_frame,omitempty"`
	ActiveSessions  int           `json:"active_sessions,omitempty"`
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy reports whether the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy of the status with a sub-status appended.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// FromSessionState maps a session lifecycle state onto a health status.
// Requested and active sessions are healthy, an ending session is
// degraded until teardown completes, and a lost device is unhealthy.
func FromSessionState(name string, state session.State) Status {
	switch state {
	case session.StateRequested, session.StateActive:
		return NewHealthy(name, "session "+state.String())
	case session.StateEnding:
		return NewDegraded(name, "session ending")
	case session.StateLost:
		return NewUnhealthy(name, "device lost")
	default:
		return NewHealthy(name, "session "+state.String())
	}
}

// Aggregate rolls sub-statuses up into one status. Any unhealthy child
// makes the aggregate unhealthy; otherwise any degraded child makes it
// degraded.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "nothing to monitor")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			hasUnhealthy = true
		} else if sub.IsDegraded() {
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "one or more components are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "one or more components are degraded")
	default:
		status = NewHealthy(component, "all components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
