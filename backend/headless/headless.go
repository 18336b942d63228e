// Package headless implements a simulated device backend. It serves
// frames from a ticker with no hardware attached, and exposes controls
// for driving the simulated viewer and input sources, which makes it the
// backing device for tests, development and automation hosts.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/pkg/timestamp"
	"github.com/servo/webxr/transform"
)

// DefaultFrameInterval approximates a 60Hz device.
const DefaultFrameInterval = 16 * time.Millisecond

// Init configures a headless backend instance.
type Init struct {
	// SupportedFeatures lists what the simulated device can grant.
	// Empty means viewer and local tracking only.
	SupportedFeatures []device.Feature `json:"supportedFeatures,omitempty"`
	// FrameIntervalMs is the simulated refresh interval. Zero means 16ms.
	FrameIntervalMs int `json:"frameIntervalMs,omitempty"`
	// FloorHeight, when set, is the viewer origin's height above the
	// physical floor in meters and enables floor-level spaces.
	FloorHeight *float64 `json:"floorHeight,omitempty"`
	// Bounds is the safe boundary polygon in floor space.
	Bounds []transform.Vector3 `json:"bounds,omitempty"`
	// Convention is the coordinate convention control poses are fed in.
	// Poses are converted to the canonical space at frame time.
	Convention transform.Convention `json:"convention,omitempty"`
	// Stereo enables a two-view left/right eye configuration instead of
	// a single mono view.
	Stereo bool `json:"stereo,omitempty"`
	// ViewerOrigin is the starting viewer pose in the configured
	// convention. Nil means the canonical origin.
	ViewerOrigin *transform.RigidTransform `json:"viewerOrigin,omitempty"`
	// InitialInputs are input sources present from the first frame.
	InitialInputs []device.InputSource `json:"initialInputs,omitempty"`
}

// Backend is a simulated device backend. One simulated device backs it,
// so only one session may be open at a time.
type Backend struct {
	init       Init
	interval   time.Duration
	convention transform.Convention
	supported  device.FeatureSet

	mu           sync.Mutex
	viewer       transform.RigidTransform
	tracking     bool
	sources      map[device.InputID]device.InputSource
	poses        map[device.InputID]*transform.RigidTransform
	hands        map[device.InputID]*device.Hand
	claimed      bool
	disconnected bool
	endpoint     *Endpoint
}

// New creates a headless backend.
func New(init Init) *Backend {
	interval := DefaultFrameInterval
	if init.FrameIntervalMs > 0 {
		interval = time.Duration(init.FrameIntervalMs) * time.Millisecond
	}

	supported := device.NewFeatureSet(device.FeatureViewer, device.FeatureLocal)
	supported = supported.Union(device.NewFeatureSet(init.SupportedFeatures...))
	if init.FloorHeight != nil {
		supported = supported.Union(device.NewFeatureSet(device.FeatureLocalFloor))
	}
	if init.FloorHeight != nil && len(init.Bounds) > 0 {
		supported = supported.Union(device.NewFeatureSet(device.FeatureBoundedFloor))
	}

	b := &Backend{
		init:       init,
		interval:   interval,
		convention: init.Convention,
		supported:  supported,
		viewer:     transform.Identity(),
		tracking:   true,
		sources:    make(map[device.InputID]device.InputSource),
		poses:      make(map[device.InputID]*transform.RigidTransform),
		hands:      make(map[device.InputID]*device.Hand),
	}
	if init.ViewerOrigin != nil {
		b.viewer = *init.ViewerOrigin
	}
	for _, src := range init.InitialInputs {
		b.sources[src.ID] = src
	}
	return b
}

// Name returns the backend name.
func (b *Backend) Name() string { return FactoryName }

// Supported returns a copy of the feature set the device can grant.
func (b *Backend) Supported() device.FeatureSet { return b.supported.Clone() }

// Probe grants the request when every required feature is supported.
func (b *Backend) Probe(req device.SessionRequest) (device.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disconnected {
		return nil, errors.WrapFatal(errors.ErrDeviceLost, "headless", "Probe", "probing a disconnected device")
	}
	if missing := b.supported.Missing(req.Required); len(missing) > 0 {
		return nil, errors.WrapInvalid(errors.ErrUnsupportedFeature, "headless", "Probe",
			fmt.Sprintf("device lacks required features %v", missing))
	}

	granted := req.Required.Clone()
	granted = granted.Union(b.supported.Intersect(req.Optional))
	return &simDevice{backend: b, granted: granted}, nil
}

// simDevice is the probed form of the simulated device, carrying the
// granted feature set negotiated for one request.
type simDevice struct {
	backend *Backend
	granted device.FeatureSet
}

func (d *simDevice) Capabilities() device.Capabilities {
	b := d.backend
	caps := device.Capabilities{
		Granted:       d.granted.Clone(),
		FrameInterval: b.interval,
	}
	if b.init.FloorHeight != nil {
		caps.FloorTransform = &transform.RigidTransform{
			Rotation: transform.QuaternionIdentity(),
			Position: transform.Vector3{Y: -*b.init.FloorHeight},
		}
	}
	if len(b.init.Bounds) > 0 {
		caps.Bounds = make([]transform.Vector3, len(b.init.Bounds))
		for i, p := range b.init.Bounds {
			caps.Bounds[i] = b.convention.ToCanonicalPoint(p)
		}
	}
	caps.Views = b.views()
	if len(b.init.InitialInputs) > 0 {
		caps.InitialInputs = make([]device.InputSource, len(b.init.InitialInputs))
		copy(caps.InitialInputs, b.init.InitialInputs)
	}
	return caps
}

func (d *simDevice) OpenSession(device.SessionInit) (device.Endpoint, error) {
	b := d.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disconnected {
		return nil, errors.WrapFatal(errors.ErrDeviceLost, "headless", "OpenSession", "opening a session on a disconnected device")
	}
	if b.claimed {
		return nil, errors.WrapInvalid(errors.ErrSessionUnavailable, "headless", "OpenSession", "opening a second session on a single device")
	}

	b.claimed = true
	ep := &Endpoint{
		backend: b,
		ticker:  time.NewTicker(b.interval),
		lost:    make(chan error, 1),
	}
	b.endpoint = ep
	return ep, nil
}

// views returns the static eye configuration.
func (b *Backend) views() []device.View {
	if !b.init.Stereo {
		return []device.View{{Eye: device.EyeMono, Transform: transform.Identity()}}
	}
	// A plain 64mm interpupillary distance.
	return []device.View{
		{Eye: device.EyeLeft, Transform: transform.RigidTransform{
			Rotation: transform.QuaternionIdentity(),
			Position: transform.Vector3{X: -0.032},
		}},
		{Eye: device.EyeRight, Transform: transform.RigidTransform{
			Rotation: transform.QuaternionIdentity(),
			Position: transform.Vector3{X: 0.032},
		}},
	}
}

// SetViewerPose moves the simulated viewer. The pose is expressed in the
// backend's configured convention.
func (b *Backend) SetViewerPose(p transform.RigidTransform) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.viewer = p
	b.tracking = true
}

// SetTracking toggles simulated tracking loss. While tracking is off,
// frames carry no viewer pose.
func (b *Backend) SetTracking(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracking = on
}

// AddInput attaches a simulated input source.
func (b *Backend) AddInput(src device.InputSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources[src.ID] = src
}

// SetInputPose updates an input source's pose in the configured
// convention. A nil pose marks the source untracked.
func (b *Backend) SetInputPose(id device.InputID, pose *transform.RigidTransform) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poses[id] = pose
}

// SetInputHand updates an input source's hand skeleton, with joint poses
// in the configured convention. A nil hand removes the skeleton.
func (b *Backend) SetInputHand(id device.InputID, hand *device.Hand) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hands[id] = hand
}

// RemoveInput detaches a simulated input source.
func (b *Backend) RemoveInput(id device.InputID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sources, id)
	delete(b.poses, id)
	delete(b.hands, id)
}

// Disconnect simulates pulling the device: the open session loses its
// endpoint and further probes fail.
func (b *Backend) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
	if b.endpoint != nil {
		b.endpoint.disconnect(errors.ErrDeviceLost)
	}
}

// snapshot builds a frame update from the current simulated state. Poses
// cross into the canonical space here.
func (b *Backend) snapshot() device.FrameUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	update := device.FrameUpdate{
		Time:  timestamp.Now(),
		Views: b.views(),
	}
	if b.tracking {
		viewer := b.convention.ToCanonical(b.viewer)
		update.ViewerPose = &viewer
	}

	for id, src := range b.sources {
		update.Sources = append(update.Sources, src)
		in := device.InputFrame{ID: id}
		if p := b.poses[id]; p != nil {
			converted := b.convention.ToCanonical(*p)
			in.Pose = &converted
		}
		if h := b.hands[id]; h != nil {
			converted := h.Map(func(j device.Joint) device.Joint {
				j.Pose = b.convention.ToCanonical(j.Pose)
				return j
			})
			in.Hand = &converted
		}
		update.Inputs = append(update.Inputs, in)
	}
	return update
}

// release returns the device to the pool when its session ends.
func (b *Backend) release(ep *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endpoint == ep {
		b.endpoint = nil
		b.claimed = false
	}
}

// Endpoint serves ticker-paced frames from the simulated device.
type Endpoint struct {
	backend *Backend
	ticker  *time.Ticker
	lost    chan error

	mu       sync.Mutex
	ended    bool
	lostOnce sync.Once
}

// PollFrame blocks until the next simulated refresh tick and returns the
// device state at that instant.
func (e *Endpoint) PollFrame(ctx context.Context) (device.FrameUpdate, error) {
	select {
	case <-e.ticker.C:
		return e.backend.snapshot(), nil
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
func (e *Endpoint) Lost() <-chan error {
	return e.lost
}

// End closes the endpoint and returns the simulated device to the pool.
func (e *Endpoint) End() error {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return nil
	}
	e.ended = true
	e.mu.Unlock()

	e.ticker.Stop()
	e.backend.release(e)
	return nil
}

func (e *Endpoint) disconnect(err error) {
	e.lostOnce.Do(func() {
		e.lost <- err
		close(e.lost)
	})
	e.ticker.Stop()
}
