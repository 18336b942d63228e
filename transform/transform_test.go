package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransforms() []RigidTransform {
	yAxis := Vector3{Y: 1}
	diag := Vector3{X: 1, Y: 1, Z: 1}
	return []RigidTransform{
		Identity(),
		{Rotation: QuaternionIdentity(), Position: Vector3{X: 1.5, Y: -0.2, Z: 3}},
		{Rotation: FromAxisAngle(yAxis, math.Pi/2), Position: Vector3{Z: -2}},
		{Rotation: FromAxisAngle(diag, 1.23), Position: Vector3{X: 0.01, Y: 1.6, Z: -0.4}},
		{Rotation: FromAxisAngle(Vector3{X: 1}, -math.Pi/7), Position: Vector3{Y: 1.8}},
	}
}

func TestComposeInvertRoundTrip(t *testing.T) {
	for _, tr := range sampleTransforms() {
		got := tr.Mul(tr.Invert())
		assert.True(t, got.IsIdentity(), "compose(T, invert(T)) = %+v", got)

		got = tr.Invert().Mul(tr)
		assert.True(t, got.IsIdentity(), "compose(invert(T), T) = %+v", got)
	}
}

func TestRepeatedCompositionStaysNormalized(t *testing.T) {
	// Thousands of frames of composition must not drift beyond epsilon
	// accumulation: the rotation stays unit length throughout.
	step := RigidTransform{
		Rotation: FromAxisAngle(Vector3{Y: 1}, 0.001),
		Position: Vector3{X: 0.0001},
	}
	acc := Identity()
	for i := 0; i < 10000; i++ {
		acc = acc.Mul(step)
	}
	assert.InDelta(t, 1.0, acc.Rotation.Norm(), 1e-9)

	// 10000 steps of 0.001 rad around Y wraps 10 radians total.
	expected := FromAxisAngle(Vector3{Y: 1}, 10.0)
	assert.True(t, acc.Rotation.ApproxEqual(expected, 1e-6))
}

func TestTransformPoint(t *testing.T) {
	// 90 degrees about Y maps +X to -Z.
	rot := RigidTransform{Rotation: FromAxisAngle(Vector3{Y: 1}, math.Pi/2)}
	got := rot.TransformPoint(Vector3{X: 1})
	assert.True(t, got.ApproxEqual(Vector3{Z: -1}, 1e-12), "got %+v", got)

	// Translation applies after rotation.
	tr := RigidTransform{
		Rotation: FromAxisAngle(Vector3{Y: 1}, math.Pi / 2),
		Position: Vector3{X: 10},
	}
	got = tr.TransformPoint(Vector3{X: 1})
	assert.True(t, got.ApproxEqual(Vector3{X: 10, Z: -1}, 1e-12), "got %+v", got)
}

func TestMulMatchesSequentialApplication(t *testing.T) {
	a := RigidTransform{Rotation: FromAxisAngle(Vector3{Z: 1}, 0.7), Position: Vector3{X: 1}}
	b := RigidTransform{Rotation: FromAxisAngle(Vector3{X: 1}, -0.3), Position: Vector3{Y: 2}}
	p := Vector3{X: 0.5, Y: -1, Z: 2}

	want := a.TransformPoint(b.TransformPoint(p))
	got := a.Mul(b).TransformPoint(p)
	assert.True(t, got.ApproxEqual(want, 1e-12))
}

func TestSlerpEndpointsAndMidpoint(t *testing.T) {
	a := QuaternionIdentity()
	b := FromAxisAngle(Vector3{Y: 1}, math.Pi/2)

	assert.True(t, a.Slerp(b, 0).ApproxEqual(a, 1e-12))
	assert.True(t, a.Slerp(b, 1).ApproxEqual(b, 1e-12))

	mid := a.Slerp(b, 0.5)
	want := FromAxisAngle(Vector3{Y: 1}, math.Pi/4)
	assert.True(t, mid.ApproxEqual(want, 1e-12))
}

func TestSlerpShortArc(t *testing.T) {
	a := FromAxisAngle(Vector3{Y: 1}, 0.1)
	b := FromAxisAngle(Vector3{Y: 1}, 0.2)
	negB := Quaternion{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}

	// Interpolating toward the antipodal representation still takes the
	// short arc through the same rotations.
	got := a.Slerp(negB, 0.5)
	want := FromAxisAngle(Vector3{Y: 1}, 0.15)
	assert.True(t, got.ApproxEqual(want, 1e-12))
}

func TestInterpolateRigid(t *testing.T) {
	a := Identity()
	b := RigidTransform{
		Rotation: FromAxisAngle(Vector3{Y: 1}, math.Pi/2),
		Position: Vector3{X: 2, Y: 4},
	}
	mid := a.Interpolate(b, 0.5)
	assert.True(t, mid.Position.ApproxEqual(Vector3{X: 1, Y: 2}, 1e-12))
	assert.True(t, mid.Rotation.ApproxEqual(FromAxisAngle(Vector3{Y: 1}, math.Pi/4), 1e-12))
}

func TestNormalizeDegenerate(t *testing.T) {
	assert.Equal(t, QuaternionIdentity(), Quaternion{}.Normalize())
}

func TestFromAxisAngleZeroAxis(t *testing.T) {
	assert.Equal(t, QuaternionIdentity(), FromAxisAngle(Vector3{}, 1.0))
}

func TestConventionScale(t *testing.T) {
	mm := Convention{Scale: 0.001}
	in := RigidTransform{Rotation: QuaternionIdentity(), Position: Vector3{X: 1500, Y: 200, Z: -30}}
	got := mm.ToCanonical(in)
	assert.True(t, got.Position.ApproxEqual(Vector3{X: 1.5, Y: 0.2, Z: -0.03}, 1e-12))

	// Zero scale means unchanged units.
	same := Convention{}.ToCanonical(in)
	assert.True(t, same.Position.ApproxEqual(in.Position, 1e-12))
}

func TestConventionLeftHandedPreservesRigidity(t *testing.T) {
	lh := Convention{LeftHanded: true}
	in := RigidTransform{
		Rotation: FromAxisAngle(Vector3{X: 0.3, Y: 1, Z: -0.2}, 0.9),
		Position: Vector3{X: 1, Y: 2, Z: 3},
	}
	got := lh.ToCanonical(in)

	require.InDelta(t, 1.0, got.Rotation.Norm(), 1e-12)
	assert.InDelta(t, -3.0, got.Position.Z, 1e-12)

	// Converting a point through the pose commutes with the mirror:
	// mirror(pose(p)) == converted-pose(mirror(p)).
	p := Vector3{X: 0.5, Y: -0.7, Z: 1.1}
	want := in.TransformPoint(p)
	want.Z = -want.Z
	mirrored := Vector3{X: p.X, Y: p.Y, Z: -p.Z}
	assert.True(t, got.TransformPoint(mirrored).ApproxEqual(want, 1e-12))
}

func TestConventionPoint(t *testing.T) {
	c := Convention{Scale: 2, LeftHanded: true}
	got := c.ToCanonicalPoint(Vector3{X: 1, Y: 2, Z: 3})
	assert.True(t, got.ApproxEqual(Vector3{X: 2, Y: 4, Z: -6}, 1e-12))
}
