package device

import (
	"context"
	"time"

	"github.com/servo/webxr/transform"
)

// SessionRequest carries the feature sets a discovery probe must match.
// Required features are strict: a probe fails unless all of them can be
// satisfied. Optional features are best-effort and never fail a probe.
type SessionRequest struct {
	Required FeatureSet `json:"required"`
	Optional FeatureSet `json:"optional,omitempty"`
}

// SessionInit carries session creation parameters beyond feature matching.
type SessionInit struct {
	// Name is an optional host-assigned label used in logs and diagnostics.
	Name string `json:"name,omitempty"`
}

// Capabilities describes what an opened device actually provides. It is
// fixed for the lifetime of the session.
type Capabilities struct {
	// Granted is the feature set the device committed to: all required
	// features plus whichever optional features it supports.
	Granted FeatureSet `json:"granted"`

	// FloorTransform maps native coordinates to the floor-level origin.
	// Nil when the device cannot report a floor level.
	FloorTransform *transform.RigidTransform `json:"floor_transform,omitempty"`

	// Bounds is the play-area boundary polygon at floor level, in native
	// coordinates. Empty when the device has no room-scale data.
	Bounds []transform.Vector3 `json:"bounds,omitempty"`

	// Views are the per-eye views the device renders.
	Views []View `json:"views"`

	// InitialInputs are the input sources present at session start.
	InitialInputs []InputSource `json:"initial_inputs,omitempty"`

	// FrameInterval is the device's nominal refresh interval. Zero means
	// unknown; consumers fall back to their own timeout defaults.
	FrameInterval time.Duration `json:"frame_interval,omitempty"`
}

// FrameUpdate is one raw snapshot produced by a backend's polling loop.
// All poses are in the backend's native space; the frame synchronizer
// resolves them into the session's reference space.
type FrameUpdate struct {
	// Time is the device-reported capture time in Unix milliseconds.
	Time int64 `json:"time"`

	// ViewerPose is the viewer's pose in native coordinates. Nil while
	// tracking is lost.
	ViewerPose *transform.RigidTransform `json:"viewer_pose,omitempty"`

	// Views are the per-eye views for this frame. Empty means the
	// session's capability views still apply.
	Views []View `json:"views,omitempty"`

	// Sources is the complete set of currently connected input sources.
	// The synchronizer diffs consecutive snapshots to detect additions
	// and removals.
	Sources []InputSource `json:"sources,omitempty"`

	// Inputs carry per-source pose data for this frame.
	Inputs []InputFrame `json:"inputs,omitempty"`
}

// Backend is the discovery-facing side of a vendor integration.
//
// Probe returns a usable Device only when the backend is installed, its
// hardware is present, and every required feature of the request can be
// satisfied. A backend never partially claims a session: a failed probe has
// no side effects. Probe errors should wrap errors.ErrNoCapableDevice (or
// errors.ErrUnsupportedFeature) and name the missing features.
type Backend interface {
	// Name identifies the backend in registration, logs, and diagnostics.
	Name() string

	// Probe checks whether this backend can serve the request.
	Probe(req SessionRequest) (Device, error)
}

// Device is a probed handle onto hardware. It holds no session resources
// until OpenSession succeeds.
//
// OpenSession allocates backend-side resources (device polling state, native
// context) and may block briefly for a hardware handshake. It fails with
// errors.ErrSessionUnavailable when the hardware is already claimed by
// another session, and with errors.ErrUnsupportedFeature when a required
// feature can no longer be met despite a passing probe.
type Device interface {
	// Capabilities reports what the device grants. Valid after Probe.
	Capabilities() Capabilities

	// OpenSession claims the hardware and returns the device end of the
	// session. Exactly one session may be open per device at a time.
	OpenSession(init SessionInit) (Endpoint, error)
}

// Endpoint is the device side of an open session. PollFrame runs on the
// session's device loop, never on the content thread.
type Endpoint interface {
	// PollFrame blocks until the device produces its next snapshot, at
	// the hardware's own cadence. A fatal error (wrapping
	// errors.ErrDeviceLost) means the device is gone and the session
	// must transition to Lost.
	PollFrame(ctx context.Context) (FrameUpdate, error)

	// Lost reports asynchronous device loss detected outside a poll
	// cycle (unplugged hardware, broken transport). At most one error is
	// delivered, then the channel is closed.
	Lost() <-chan error

	// End releases the backend's native resources. It is idempotent:
	// calling it twice is a no-op, not an error.
	End() error
}
