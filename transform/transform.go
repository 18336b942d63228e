// Package transform provides rigid transform math for the webxr layer.
//
// All poses in the system are expressed as rigid transforms (rotation +
// translation) in a right-handed, meters-based coordinate space. The package
// keeps quaternions normalized on composition so that repeated per-frame
// composition stays numerically stable across long sessions.
package transform

import "math"

// Epsilon is the tolerance used for approximate comparisons. Compose/Invert
// round trips are guaranteed to hold within this bound.
const Epsilon = 1e-9

// Vector3 is a point or direction in 3D space, in meters.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vector3) Dot(o Vector3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the Euclidean length of v.
func (v Vector3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Lerp linearly interpolates between v and o. t is clamped to [0, 1].
func (v Vector3) Lerp(o Vector3, t float64) Vector3 {
	t = clamp01(t)
	return Vector3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

// ApproxEqual reports whether v and o are equal within eps per component.
func (v Vector3) ApproxEqual(o Vector3, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps &&
		math.Abs(v.Y-o.Y) <= eps &&
		math.Abs(v.Z-o.Z) <= eps
}

// Quaternion is a rotation in 3D space. The identity rotation is {0,0,0,1}.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// QuaternionIdentity returns the identity rotation.
func QuaternionIdentity() Quaternion {
	return Quaternion{W: 1}
}

// FromAxisAngle builds a quaternion rotating angle radians about axis.
// A zero axis yields the identity rotation.
func FromAxisAngle(axis Vector3, angle float64) Quaternion {
	length := axis.Length()
	if length == 0 {
		return QuaternionIdentity()
	}
	s := math.Sin(angle/2) / length
	return Quaternion{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: math.Cos(angle / 2),
	}
}

// Mul returns the composition q * o (o applied first, then q).
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Conjugate returns the conjugate of q. For unit quaternions this is the
// inverse rotation.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Norm returns the length of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalize returns q scaled to unit length. A degenerate zero quaternion
// normalizes to the identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return QuaternionIdentity()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Rotate applies the rotation q to v.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	// v' = q * (v, 0) * q^-1, expanded to avoid the intermediate quaternion
	u := Vector3{q.X, q.Y, q.Z}
	s := q.W
	uv := u.Dot(v)
	uu := u.Dot(u)
	cross := Vector3{
		X: u.Y*v.Z - u.Z*v.Y,
		Y: u.Z*v.X - u.X*v.Z,
		Z: u.X*v.Y - u.Y*v.X,
	}
	return u.Scale(2 * uv).
		Add(v.Scale(s*s - uu)).
		Add(cross.Scale(2 * s))
}

// Dot returns the dot product of q and o.
func (q Quaternion) Dot(o Quaternion) float64 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Slerp spherically interpolates between q and o. t is clamped to [0, 1].
// Antipodal quaternions are handled by negating o so interpolation takes the
// short arc.
func (q Quaternion) Slerp(o Quaternion, t float64) Quaternion {
	t = clamp01(t)
	a := q.Normalize()
	b := o.Normalize()

	dot := a.Dot(b)
	if dot < 0 {
		b = Quaternion{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
		dot = -dot
	}

	// Nearly parallel rotations degrade slerp; fall back to nlerp.
	if dot > 0.9995 {
		return Quaternion{
			X: a.X + (b.X-a.X)*t,
			Y: a.Y + (b.Y-a.Y)*t,
			Z: a.Z + (b.Z-a.Z)*t,
			W: a.W + (b.W-a.W)*t,
		}.Normalize()
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return Quaternion{
		X: a.X*wa + b.X*wb,
		Y: a.Y*wa + b.Y*wb,
		Z: a.Z*wa + b.Z*wb,
		W: a.W*wa + b.W*wb,
	}.Normalize()
}

// ApproxEqual reports whether q and o represent the same rotation within eps.
// q and -q denote the same rotation, so the comparison is sign-insensitive.
func (q Quaternion) ApproxEqual(o Quaternion, eps float64) bool {
	return math.Abs(math.Abs(q.Normalize().Dot(o.Normalize()))-1) <= eps
}

// RigidTransform is a rotation followed by a translation. It represents the
// pose of one coordinate frame expressed in another.
type RigidTransform struct {
	Rotation Quaternion `json:"rotation"`
	Position Vector3    `json:"position"`
}

// Identity returns the identity transform.
func Identity() RigidTransform {
	return RigidTransform{Rotation: QuaternionIdentity()}
}

// Mul returns the composition t * o: o is applied first, then t.
// The rotation is renormalized so repeated composition does not drift.
func (t RigidTransform) Mul(o RigidTransform) RigidTransform {
	return RigidTransform{
		Rotation: t.Rotation.Mul(o.Rotation).Normalize(),
		Position: t.Rotation.Rotate(o.Position).Add(t.Position),
	}
}

// Invert returns the inverse transform: Mul(t, t.Invert()) is identity
// within Epsilon.
func (t RigidTransform) Invert() RigidTransform {
	inv := t.Rotation.Normalize().Conjugate()
	return RigidTransform{
		Rotation: inv,
		Position: inv.Rotate(t.Position).Scale(-1),
	}
}

// TransformPoint maps a point through the transform.
func (t RigidTransform) TransformPoint(p Vector3) Vector3 {
	return t.Rotation.Rotate(p).Add(t.Position)
}

// Interpolate blends two rigid transforms: slerp on rotation, lerp on
// position. t is clamped to [0, 1].
func (t RigidTransform) Interpolate(o RigidTransform, f float64) RigidTransform {
	return RigidTransform{
		Rotation: t.Rotation.Slerp(o.Rotation, f),
		Position: t.Position.Lerp(o.Position, f),
	}
}

// ApproxEqual reports whether t and o are equal within eps.
func (t RigidTransform) ApproxEqual(o RigidTransform, eps float64) bool {
	return t.Rotation.ApproxEqual(o.Rotation, eps) &&
		t.Position.ApproxEqual(o.Position, eps)
}

// IsIdentity reports whether t is the identity transform within Epsilon.
func (t RigidTransform) IsIdentity() bool {
	return t.ApproxEqual(Identity(), Epsilon)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
