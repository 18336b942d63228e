package transform

// Convention describes a device backend's native coordinate conventions.
// The rest of the system works in a canonical right-handed, meters-based
// space; backends convert their raw poses through ToCanonical before handing
// them across the device contract.
type Convention struct {
	// Scale is the multiplier converting native distance units to meters
	// (e.g. 0.001 for a millimeter-based SDK). Zero means 1.
	Scale float64 `json:"scale,omitempty"`

	// LeftHanded indicates the native space is left-handed with Z mirrored
	// relative to the canonical space.
	LeftHanded bool `json:"left_handed,omitempty"`
}

// Canonical is the convention of the canonical space itself.
var Canonical = Convention{Scale: 1}

// ToCanonical converts a pose expressed in the native convention into the
// canonical right-handed, meters-based space.
func (c Convention) ToCanonical(t RigidTransform) RigidTransform {
	scale := c.Scale
	if scale == 0 {
		scale = 1
	}

	out := RigidTransform{
		Rotation: t.Rotation.Normalize(),
		Position: t.Position.Scale(scale),
	}

	if c.LeftHanded {
		// Mirror through the XY plane: conjugating the rotation by the
		// mirror flips the X and Y axis components and negates Z position.
		out.Position.Z = -out.Position.Z
		out.Rotation = Quaternion{
			X: -out.Rotation.X,
			Y: -out.Rotation.Y,
			Z: out.Rotation.Z,
			W: out.Rotation.W,
		}
	}

	return out
}

// ToCanonicalPoint converts a point expressed in the native convention into
// the canonical space.
func (c Convention) ToCanonicalPoint(p Vector3) Vector3 {
	scale := c.Scale
	if scale == 0 {
		scale = 1
	}
	p = p.Scale(scale)
	if c.LeftHanded {
		p.Z = -p.Z
	}
	return p
}
