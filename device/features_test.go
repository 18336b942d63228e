package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureSetContains(t *testing.T) {
	fs := NewFeatureSet(FeatureLocal, FeatureHandTracking)
	assert.True(t, fs.Contains(FeatureLocal))
	assert.True(t, fs.Contains(FeatureHandTracking))
	assert.False(t, fs.Contains(FeatureUnbounded))
}

func TestFeatureSetContainsAll(t *testing.T) {
	supported := NewFeatureSet(FeatureViewer, FeatureLocal, FeatureLocalFloor)
	assert.True(t, supported.ContainsAll(NewFeatureSet(FeatureLocal)))
	assert.True(t, supported.ContainsAll(NewFeatureSet()))
	assert.False(t, supported.ContainsAll(NewFeatureSet(FeatureLocal, FeatureBoundedFloor)))
}

func TestFeatureSetMissingSorted(t *testing.T) {
	supported := NewFeatureSet(FeatureViewer)
	requested := NewFeatureSet(FeatureUnbounded, FeatureBoundedFloor, FeatureViewer)
	missing := supported.Missing(requested)
	assert.Equal(t, []Feature{FeatureBoundedFloor, FeatureUnbounded}, missing)

	assert.Empty(t, supported.Missing(NewFeatureSet(FeatureViewer)))
}

func TestFeatureSetUnionIntersect(t *testing.T) {
	a := NewFeatureSet(FeatureLocal, FeatureLocalFloor)
	b := NewFeatureSet(FeatureLocalFloor, FeatureHandTracking)

	union := a.Union(b)
	assert.Len(t, union, 3)
	assert.True(t, union.Contains(FeatureHandTracking))

	inter := a.Intersect(b)
	assert.Equal(t, []Feature{FeatureLocalFloor}, inter.List())

	// Inputs are untouched.
	assert.Len(t, a, 2)
	assert.Len(t, b, 2)
}

func TestFeatureSetClone(t *testing.T) {
	a := NewFeatureSet(FeatureLocal)
	b := a.Clone()
	b[FeatureUnbounded] = struct{}{}
	assert.False(t, a.Contains(FeatureUnbounded))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "left", HandLeft.String())
	assert.Equal(t, "right", HandRight.String())
	assert.Equal(t, "none", HandNone.String())
	assert.Equal(t, "unknown", Handedness(9).String())

	assert.Equal(t, "gaze", TargetRayGaze.String())
	assert.Equal(t, "tracked-pointer", TargetRayTrackedPointer.String())
	assert.Equal(t, "screen", TargetRayScreen.String())

	assert.Equal(t, "mono", EyeMono.String())
	assert.Equal(t, "left", EyeLeft.String())
	assert.Equal(t, "right", EyeRight.String())
}
