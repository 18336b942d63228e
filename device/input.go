package device

import "github.com/servo/webxr/transform"

// InputID identifies an input source. The identity is stable for the
// lifetime of the source: a backend never reuses an ID within a session.
type InputID uint32

// Handedness tags which hand an input source is held in or attached to.
type Handedness int

const (
	// HandNone indicates an input source with no handedness (e.g. gaze).
	HandNone Handedness = iota
	// HandLeft indicates the left hand.
	HandLeft
	// HandRight indicates the right hand.
	HandRight
)

// String returns a string representation of the handedness
func (h Handedness) String() string {
	switch h {
	case HandNone:
		return "none"
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	default:
		return "unknown"
	}
}

// TargetRayMode describes how an input source produces its target ray.
type TargetRayMode int

const (
	// TargetRayGaze follows the viewer's head orientation.
	TargetRayGaze TargetRayMode = iota
	// TargetRayTrackedPointer follows a tracked controller or hand.
	TargetRayTrackedPointer
	// TargetRayScreen originates from a screen touch point.
	TargetRayScreen
)

// String returns a string representation of the target ray mode
func (m TargetRayMode) String() string {
	switch m {
	case TargetRayGaze:
		return "gaze"
	case TargetRayTrackedPointer:
		return "tracked-pointer"
	case TargetRayScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// InputSource describes a tracked controller, hand, or gaze target reported
// by a backend. The descriptor is immutable; per-frame pose data arrives
// separately as InputFrame records.
type InputSource struct {
	ID            InputID       `json:"id"`
	Handedness    Handedness    `json:"handedness"`
	TargetRayMode TargetRayMode `json:"target_ray_mode"`
}

// InputFrame carries one input source's pose for a single frame, in the
// backend's native space. Pose is nil while the source is present but
// untracked. Hand carries the articulated skeleton for hand sources on
// devices that granted FeatureHandTracking.
type InputFrame struct {
	ID   InputID                   `json:"id"`
	Pose *transform.RigidTransform `json:"pose,omitempty"`
	Hand *Hand                     `json:"hand,omitempty"`
}
