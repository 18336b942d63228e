package device

import "github.com/servo/webxr/transform"

// Eye tags which eye a view renders for.
type Eye int

const (
	// EyeMono is the single view of a non-stereo device.
	EyeMono Eye = iota
	// EyeLeft is the left eye of a stereo device.
	EyeLeft
	// EyeRight is the right eye of a stereo device.
	EyeRight
)

// String returns a string representation of the eye
func (e Eye) String() string {
	switch e {
	case EyeMono:
		return "mono"
	case EyeLeft:
		return "left"
	case EyeRight:
		return "right"
	default:
		return "unknown"
	}
}

// View describes one rendered view of the device. Transform is the eye's
// pose relative to the viewer; for mono devices it is the identity.
// Projection and viewport setup are the renderer's concern, not part of this
// contract.
type View struct {
	Eye       Eye                      `json:"eye"`
	Transform transform.RigidTransform `json:"transform"`
}
