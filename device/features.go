package device

import "sort"

// Feature identifies a capability a session can request from a backend.
type Feature string

// Well-known features. Backends may grant vendor-specific features beyond
// this list; the matching rules do not distinguish them.
const (
	FeatureViewer         Feature = "viewer"
	FeatureLocal          Feature = "local"
	FeatureLocalFloor     Feature = "local-floor"
	FeatureBoundedFloor   Feature = "bounded-floor"
	FeatureUnbounded      Feature = "unbounded"
	FeatureHandTracking   Feature = "hand-tracking"
	FeatureSecondaryViews Feature = "secondary-views"
)

// FeatureSet is an unordered set of features.
type FeatureSet map[Feature]struct{}

// NewFeatureSet builds a set from the given features.
func NewFeatureSet(features ...Feature) FeatureSet {
	fs := make(FeatureSet, len(features))
	for _, f := range features {
		fs[f] = struct{}{}
	}
	return fs
}

// Contains reports whether f is in the set.
func (fs FeatureSet) Contains(f Feature) bool {
	_, ok := fs[f]
	return ok
}

// ContainsAll reports whether every feature of other is in the set.
func (fs FeatureSet) ContainsAll(other FeatureSet) bool {
	for f := range other {
		if !fs.Contains(f) {
			return false
		}
	}
	return true
}

// Missing returns the features of other absent from the set, sorted.
func (fs FeatureSet) Missing(other FeatureSet) []Feature {
	var missing []Feature
	for f := range other {
		if !fs.Contains(f) {
			missing = append(missing, f)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Union returns a new set containing the features of both sets.
func (fs FeatureSet) Union(other FeatureSet) FeatureSet {
	out := make(FeatureSet, len(fs)+len(other))
	for f := range fs {
		out[f] = struct{}{}
	}
	for f := range other {
		out[f] = struct{}{}
	}
	return out
}

// Intersect returns a new set containing the features present in both sets.
func (fs FeatureSet) Intersect(other FeatureSet) FeatureSet {
	out := make(FeatureSet)
	for f := range fs {
		if other.Contains(f) {
			out[f] = struct{}{}
		}
	}
	return out
}

// Clone returns a copy of the set.
func (fs FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(fs))
	for f := range fs {
		out[f] = struct{}{}
	}
	return out
}

// List returns the features sorted, for stable diagnostics and wire payloads.
func (fs FeatureSet) List() []Feature {
	out := make([]Feature, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
