// Package registry implements device discovery and session granting.
//
// Backends register in order; a session request probes them first to
// last and the first backend whose device can satisfy every required
// feature wins. Registration order is therefore a preference order:
// put the real hardware backend before the fallbacks.
package registry

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/metric"
	"github.com/servo/webxr/session"
	"github.com/servo/webxr/space"
)

// ProbeFailure records why one backend declined a session request.
type ProbeFailure struct {
	Backend string
	Err     error
}

// NoCapableDeviceError reports that every registered backend declined a
// session request, with the per-backend reasons.
type NoCapableDeviceError struct {
	Failures []ProbeFailure
}

// Error implements the error interface.
func (e *NoCapableDeviceError) Error() string {
	if len(e.Failures) == 0 {
		return "no capable device: no backends registered"
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Backend, f.Err)
	}
	return fmt.Sprintf("no capable device: %s", strings.Join(parts, "; "))
}

// Unwrap lets callers match the error with errors.ErrNoCapableDevice.
func (e *NoCapableDeviceError) Unwrap() error {
	return errors.ErrNoCapableDevice
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics wires discovery and session metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the local logger for discovery and granted sessions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithNATS enables publishing session lifecycle logs over NATS.
func WithNATS(nc *nats.Conn) Option {
	return func(r *Registry) { r.nc = nc }
}

// Registry manages device backends and grants sessions against them.
type Registry struct {
	mu       sync.RWMutex
	backends []device.Backend

	factories map[string]*FactoryRegistration

	metrics *metric.Metrics
	logger  *slog.Logger
	nc      *nats.Conn
}

// NewRegistry creates an empty backend registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		factories: make(map[string]*FactoryRegistration),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a backend to the probe order. Backend names must be
// unique.
func (r *Registry) Register(b device.Backend) error {
	if b == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "backend validation")
	}
	if b.Name() == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "backend name validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.backends {
		if existing.Name() == b.Name() {
			msg := fmt.Errorf("backend '%s' is already registered", b.Name())
			return errors.WrapInvalid(msg, "Registry", "Register", "duplicate backend check")
		}
	}

	r.backends = append(r.backends, b)
	if r.metrics != nil {
		r.metrics.RecordBackendCount(len(r.backends))
	}
	return nil
}

// Backends returns the registered backends in probe order.
func (r *Registry) Backends() []device.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make([]device.Backend, len(r.backends))
	copy(result, r.backends)
	return result
}

// SupportsSession reports whether some backend could grant the request.
// No session is opened and no device is claimed.
func (r *Registry) SupportsSession(req device.SessionRequest) bool {
	_, _, err := r.probe(req)
	return err == nil
}

// Probe returns the first device able to satisfy the request without
// opening a session on it.
func (r *Registry) Probe(req device.SessionRequest) (device.Device, error) {
	_, dev, err := r.probe(req)
	return dev, err
}

// RequestSession probes backends in registration order and opens a
// session on the first device that can satisfy every required feature.
// Optional features are granted on a best-effort basis and show up in
// the controller's granted set.
//
// A probe failure moves on to the next backend; a failure to OPEN a
// session on a willing device surfaces immediately, it does not fall
// through, so hosts see real device trouble instead of a silent
// downgrade to a lesser backend.
func (r *Registry) RequestSession(req device.SessionRequest, init device.SessionInit, target space.ReferenceSpace, opts ...session.Option) (*session.Controller, error) {
	backend, dev, err := r.probe(req)
	if err != nil {
		return nil, err
	}

	endpoint, err := dev.OpenSession(init)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("registry", "open_session")
		}
		return nil, errors.Wrap(err, "Registry", "RequestSession", fmt.Sprintf("opening session on backend %s", backend.Name()))
	}

	id := uuid.NewString()
	var pub session.Publisher
	if r.nc != nil {
		pub = r.nc
	}
	sessionLogger := session.NewLogger(backend.Name(), id, pub, r.logger)
	opts = append([]session.Option{
		session.WithLogger(sessionLogger),
		session.WithMetrics(r.metrics),
	}, opts...)

	ctrl, err := session.New(id, backend.Name(), endpoint, dev.Capabilities(), target, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "RequestSession", "starting session controller")
	}

	if r.metrics != nil {
		r.metrics.RecordSessionOpened(backend.Name())
	}
	r.logger.Info("session granted",
		"session", id,
		"backend", backend.Name(),
		"granted", ctrl.GrantedFeatures().List(),
	)
	return ctrl, nil
}

// probe walks the backends in order and returns the first willing one.
func (r *Registry) probe(req device.SessionRequest) (device.Backend, device.Device, error) {
	r.mu.RLock()
	backends := make([]device.Backend, len(r.backends))
	copy(backends, r.backends)
	r.mu.RUnlock()

	var failures []ProbeFailure
	for _, b := range backends {
		dev, err := b.Probe(req)
		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordDiscoveryAttempt(b.Name(), "declined")
			}
			failures = append(failures, ProbeFailure{Backend: b.Name(), Err: err})
			continue
		}
		if r.metrics != nil {
			r.metrics.RecordDiscoveryAttempt(b.Name(), "granted")
		}
		return b, dev, nil
	}

	return nil, nil, &NoCapableDeviceError{Failures: failures}
}
