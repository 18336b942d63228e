// Package space resolves viewer and input poses into reference spaces.
//
// A reference space is a coordinate frame the host asks poses in. The
// backend reports everything in its native tracking space; the Resolver
// holds one rigid offset per established space and applies it on every
// lookup. Recentering swaps offsets atomically so a pose is never
// composed from a half-updated table.
package space

import "github.com/servo/webxr/transform"

// ReferenceSpace identifies a coordinate frame poses can be expressed in.
type ReferenceSpace int

const (
	// Viewer is locked to the viewer's head. The viewer pose in this
	// space is always identity.
	Viewer ReferenceSpace = iota
	// Local has its origin at the viewer's position when the space was
	// established, at head height.
	Local
	// LocalFloor is Local shifted down to the physical floor.
	LocalFloor
	// BoundedFloor is a floor-level space with a known safe boundary.
	BoundedFloor
	// Unbounded tracks over arbitrary distances without a fixed origin.
	Unbounded
)

// String returns the WebXR-style name for the reference space.
func (s ReferenceSpace) String() string {
	switch s {
	case Viewer:
		return "viewer"
	case Local:
		return "local"
	case LocalFloor:
		return "local-floor"
	case BoundedFloor:
		return "bounded-floor"
	case Unbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// Pose is a rigid transform tagged with the space it is expressed in.
type Pose struct {
	Transform transform.RigidTransform `json:"transform"`
	Space     ReferenceSpace           `json:"space"`
}
