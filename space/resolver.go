package space

import (
	"sync/atomic"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/transform"
)

// Resolver maps poses from a device's native tracking space into the
// reference spaces a session has requested.
//
// Each established space is backed by one rigid offset from native space.
// The offset table is copy-on-write behind an atomic pointer: Resolve
// loads one consistent snapshot, and Recenter installs a whole new table,
// so a concurrent Resolve never observes a partially applied recenter.
type Resolver struct {
	caps    device.Capabilities
	offsets atomic.Pointer[map[ReferenceSpace]transform.RigidTransform]
}

// NewResolver creates a resolver over the capabilities the device granted
// for this session. No space other than Viewer is established until
// Request is called for it.
func NewResolver(caps device.Capabilities) *Resolver {
	r := &Resolver{caps: caps}
	initial := map[ReferenceSpace]transform.RigidTransform{}
	r.offsets.Store(&initial)
	return r
}

// Request establishes a reference space for the session. The viewer
// argument is the device-native viewer pose at the moment of the request;
// Local anchors its origin there. Requesting an already established space
// is a no-op.
//
// Returns ErrSpaceUnsupported when the device lacks what the space needs:
// LocalFloor and BoundedFloor need a floor transform, BoundedFloor also
// needs a boundary, Unbounded must have been granted as a feature.
func (r *Resolver) Request(s ReferenceSpace, viewer transform.RigidTransform) error {
	if s == Viewer {
		return nil
	}

	current := *r.offsets.Load()
	if _, ok := current[s]; ok {
		return nil
	}

	var offset transform.RigidTransform
	switch s {
	case Local:
		offset = viewer.Invert()
	case LocalFloor:
		if r.caps.FloorTransform == nil {
			return errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Request", "establishing local-floor without a floor transform")
		}
		offset = *r.caps.FloorTransform
	case BoundedFloor:
		if r.caps.FloorTransform == nil || len(r.caps.Bounds) == 0 {
			return errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Request", "establishing bounded-floor without floor and boundary data")
		}
		offset = *r.caps.FloorTransform
	case Unbounded:
		if !r.caps.Granted.Contains(device.FeatureUnbounded) {
			return errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Request", "establishing unbounded without the granted feature")
		}
		offset = transform.Identity()
	default:
		return errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Request", "establishing unknown reference space")
	}

	r.update(func(table map[ReferenceSpace]transform.RigidTransform) {
		table[s] = offset
	})
	return nil
}

// Established reports whether the space has been requested and set up.
// Viewer is always established.
func (r *Resolver) Established(s ReferenceSpace) bool {
	if s == Viewer {
		return true
	}
	_, ok := (*r.offsets.Load())[s]
	return ok
}

// Resolve expresses a device-native pose in the given reference space.
// The viewer argument is the device-native viewer pose from the same
// frame; Viewer space is derived from it on every call.
//
// Returns ErrSpaceUnsupported when the space has not been established
// with Request.
func (r *Resolver) Resolve(native transform.RigidTransform, viewer transform.RigidTransform, s ReferenceSpace) (Pose, error) {
	if s == Viewer {
		return Pose{Transform: viewer.Invert().Mul(native), Space: Viewer}, nil
	}

	offset, ok := (*r.offsets.Load())[s]
	if !ok {
		return Pose{}, errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Resolve", "resolving into an unestablished space")
	}
	return Pose{Transform: offset.Mul(native), Space: s}, nil
}

// Recenter resets the origin of an established space to the given
// device-native viewer pose: after the call the viewer resolves to
// identity in that space. Recentering Viewer is a no-op since the space
// already moves with the viewer; recentering Unbounded is rejected
// because it has no stable origin to move.
func (r *Resolver) Recenter(s ReferenceSpace, viewer transform.RigidTransform) error {
	switch s {
	case Viewer:
		return nil
	case Unbounded:
		return errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Recenter", "recentering an unbounded space")
	}

	if !r.Established(s) {
		return errors.WrapInvalid(errors.ErrSpaceUnsupported, "space", "Recenter", "recentering an unestablished space")
	}

	offset := viewer.Invert()
	r.update(func(table map[ReferenceSpace]transform.RigidTransform) {
		table[s] = offset
	})
	return nil
}

// Bounds returns a copy of the safe boundary polygon, expressed in the
// BoundedFloor space, or nil when the device reported none.
func (r *Resolver) Bounds() []transform.Vector3 {
	if len(r.caps.Bounds) == 0 {
		return nil
	}
	out := make([]transform.Vector3, len(r.caps.Bounds))
	copy(out, r.caps.Bounds)
	return out
}

// update swaps in a modified copy of the offset table. Callers hold no
// lock; last writer wins, which is acceptable because Request of the same
// space is idempotent and Recenter races are inherently unordered.
func (r *Resolver) update(mutate func(map[ReferenceSpace]transform.RigidTransform)) {
	for {
		old := r.offsets.Load()
		next := make(map[ReferenceSpace]transform.RigidTransform, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		mutate(next)
		if r.offsets.CompareAndSwap(old, &next) {
			return
		}
	}
}
