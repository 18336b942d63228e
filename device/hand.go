package device

import "github.com/servo/webxr/transform"

// Joint is one articulated hand joint: its pose in the backend's native
// space and the radius of a sphere enclosing the skin at the joint,
// in meters.
type Joint struct {
	Pose   transform.RigidTransform `json:"pose"`
	Radius float64                  `json:"radius"`
}

// Finger holds the joints of one finger, base to tip. A joint is nil
// while the device cannot track it.
type Finger struct {
	Metacarpal          *Joint `json:"metacarpal,omitempty"`
	PhalanxProximal     *Joint `json:"phalanx_proximal,omitempty"`
	PhalanxIntermediate *Joint `json:"phalanx_intermediate,omitempty"`
	PhalanxDistal       *Joint `json:"phalanx_distal,omitempty"`
	PhalanxTip          *Joint `json:"phalanx_tip,omitempty"`
}

// Hand is a full articulated hand skeleton, reported per frame for input
// sources on devices that granted FeatureHandTracking. The thumb has no
// intermediate phalanx, so it is laid out separately from the four
// fingers.
type Hand struct {
	Wrist                *Joint `json:"wrist,omitempty"`
	ThumbMetacarpal      *Joint `json:"thumb_metacarpal,omitempty"`
	ThumbPhalanxProximal *Joint `json:"thumb_phalanx_proximal,omitempty"`
	ThumbPhalanxDistal   *Joint `json:"thumb_phalanx_distal,omitempty"`
	ThumbPhalanxTip      *Joint `json:"thumb_phalanx_tip,omitempty"`
	Index                Finger `json:"index"`
	Middle               Finger `json:"middle"`
	Ring                 Finger `json:"ring"`
	Little               Finger `json:"little"`
}

// Map returns a copy of the hand with fn applied to every tracked joint.
// Untracked (nil) joints stay nil.
func (h Hand) Map(fn func(Joint) Joint) Hand {
	out := h
	out.Wrist = mapJoint(h.Wrist, fn)
	out.ThumbMetacarpal = mapJoint(h.ThumbMetacarpal, fn)
	out.ThumbPhalanxProximal = mapJoint(h.ThumbPhalanxProximal, fn)
	out.ThumbPhalanxDistal = mapJoint(h.ThumbPhalanxDistal, fn)
	out.ThumbPhalanxTip = mapJoint(h.ThumbPhalanxTip, fn)
	out.Index = h.Index.mapJoints(fn)
	out.Middle = h.Middle.mapJoints(fn)
	out.Ring = h.Ring.mapJoints(fn)
	out.Little = h.Little.mapJoints(fn)
	return out
}

func (f Finger) mapJoints(fn func(Joint) Joint) Finger {
	return Finger{
		Metacarpal:          mapJoint(f.Metacarpal, fn),
		PhalanxProximal:     mapJoint(f.PhalanxProximal, fn),
		PhalanxIntermediate: mapJoint(f.PhalanxIntermediate, fn),
		PhalanxDistal:       mapJoint(f.PhalanxDistal, fn),
		PhalanxTip:          mapJoint(f.PhalanxTip, fn),
	}
}

func mapJoint(j *Joint, fn func(Joint) Joint) *Joint {
	if j == nil {
		return nil
	}
	mapped := fn(*j)
	return &mapped
}
