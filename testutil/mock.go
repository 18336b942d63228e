package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/transform"
)

// MockBackend is a scriptable device.Backend. Thread-safe for concurrent
// use from multiple goroutines.
type MockBackend struct {
	mu sync.Mutex

	name      string
	supported device.FeatureSet

	// FloorTransform and Bounds are copied into granted capabilities.
	FloorTransform *transform.RigidTransform
	Bounds         []transform.Vector3

	// ProbeErr, when set, fails every probe.
	ProbeErr error
	// OpenErr, when set, fails every session open.
	OpenErr error

	probes int
	opens  int

	// LastEndpoint is the endpoint created by the most recent open.
	LastEndpoint *MockEndpoint
}

// NewMockBackend creates a backend supporting the given features.
func NewMockBackend(name string, supported ...device.Feature) *MockBackend {
	return &MockBackend{
		name:      name,
		supported: device.NewFeatureSet(supported...),
	}
}

// Name returns the backend name.
func (b *MockBackend) Name() string { return b.name }

// Probe grants the request when every required feature is supported.
// Optional features are granted on a best-effort basis.
func (b *MockBackend) Probe(req device.SessionRequest) (device.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes++

	if b.ProbeErr != nil {
		return nil, b.ProbeErr
	}
	if missing := b.supported.Missing(req.Required); len(missing) > 0 {
		return nil, errors.WrapInvalid(errors.ErrUnsupportedFeature, "testutil", "Probe",
			fmt.Sprintf("backend %s lacks required features %v", b.name, missing))
	}

	granted := req.Required.Clone()
	granted = granted.Union(b.supported.Intersect(req.Optional))

	return &mockDevice{backend: b, granted: granted}, nil
}

// ProbeCount returns how many times Probe was called.
func (b *MockBackend) ProbeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probes
}

// OpenCount returns how many times a session was opened.
func (b *MockBackend) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

type mockDevice struct {
	backend *MockBackend
	granted device.FeatureSet
}

func (d *mockDevice) Capabilities() device.Capabilities {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	return device.Capabilities{
		Granted:        d.granted.Clone(),
		FloorTransform: d.backend.FloorTransform,
		Bounds:         d.backend.Bounds,
	}
}

func (d *mockDevice) OpenSession(device.SessionInit) (device.Endpoint, error) {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	d.backend.opens++

	if d.backend.OpenErr != nil {
		return nil, d.backend.OpenErr
	}
	ep := NewMockEndpoint()
	d.backend.LastEndpoint = ep
	return ep, nil
}

// MockEndpoint is a scriptable device.Endpoint. Frames queued with
// QueueFrame are served in order; PollFrame blocks on an empty queue
// until a frame arrives, the context expires or the device disconnects.
type MockEndpoint struct {
	frames chan device.FrameUpdate
	lost   chan error

	mu       sync.Mutex
	ended    bool
	endCalls int
	lostOnce sync.Once
}

// NewMockEndpoint creates an endpoint with room for 64 queued frames.
func NewMockEndpoint() *MockEndpoint {
	return &MockEndpoint{
		frames: make(chan device.FrameUpdate, 64),
		lost:   make(chan error, 1),
	}
}

// QueueFrame schedules the next frame update PollFrame will return.
func (e *MockEndpoint) QueueFrame(update device.FrameUpdate) {
	e.frames <- update
}

// Disconnect simulates losing the device. Subsequent polls fail.
func (e *MockEndpoint) Disconnect(err error) {
	e.lostOnce.Do(func() {
		e.lost <- err
		close(e.lost)
	})
}

// PollFrame returns the next queued frame.
func (e *MockEndpoint) PollFrame(ctx context.Context) (device.FrameUpdate, error) {
	select {
	case update := <-e.frames:
		return update, nil
	case err, ok := <-e.lost:
		if !ok || err == nil {
			err = errors.ErrDeviceLost
		}
		return device.FrameUpdate{}, err
	case <-ctx.Done():
		return device.FrameUpdate{}, ctx.Err()
	}
}

// Lost returns the channel signalling device loss.
func (e *MockEndpoint) Lost() <-chan error {
	return e.lost
}

// End marks the endpoint closed.
func (e *MockEndpoint) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = true
	e.endCalls++
	return nil
}

// Ended reports whether End was called.
func (e *MockEndpoint) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// EndCalls returns how many times End was called.
func (e *MockEndpoint) EndCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endCalls
}
