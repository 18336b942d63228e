// Package frame turns raw device frame updates into host-facing frames.
//
// The Synchronizer owns the per-session frame stream: it stamps each
// delivered frame with a strictly increasing sequence number, clamps
// timestamps so they never go backwards, resolves the viewer, view and
// input poses into the session's target reference space, and reports
// which input sources appeared or disappeared since the previous frame.
package frame

import (
	"sort"
	"sync/atomic"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/space"
	"github.com/servo/webxr/transform"
)

// InputPose is an input source's pose for one frame, resolved into the
// session's target space. Pose is nil while the source is untracked.
// Hand carries the articulated skeleton with every tracked joint pose
// resolved into the target space.
type InputPose struct {
	ID   device.InputID `json:"id"`
	Pose *space.Pose    `json:"pose,omitempty"`
	Hand *device.Hand   `json:"hand,omitempty"`
}

// Frame is one delivered animation frame.
type Frame struct {
	// Seq increases by exactly one per delivered frame, starting at 1.
	// Frames lost to timeouts never consume a sequence number.
	Seq uint64 `json:"seq"`
	// Time is the device timestamp in Unix milliseconds, clamped so it
	// never decreases across the session.
	Time int64 `json:"time"`
	// ViewerPose is the viewer in the target space, or nil while the
	// device has lost tracking.
	ViewerPose *space.Pose `json:"viewerPose,omitempty"`
	// Views are the per-eye poses in the target space.
	Views []device.View `json:"views,omitempty"`
	// Inputs are the tracked input poses for this frame.
	Inputs []InputPose `json:"inputs,omitempty"`
	// Added and Removed list input sources that appeared or disappeared
	// since the previous delivered frame, ordered by ID.
	Added   []device.InputSource `json:"added,omitempty"`
	Removed []device.InputSource `json:"removed,omitempty"`
	// TimedOutCycles counts frame requests that timed out between the
	// previous delivered frame and this one.
	TimedOutCycles int `json:"timedOutCycles,omitempty"`
}

// Synchronizer composes device updates into Frames for one session.
// Compose is called from the session's device loop only; RecordTimeout
// and LastViewerPose are safe from any goroutine.
type Synchronizer struct {
	resolver *space.Resolver
	target   space.ReferenceSpace

	seq      uint64
	lastTime int64
	timedOut atomic.Int64
	prev     map[device.InputID]device.InputSource

	lastViewer atomic.Pointer[transform.RigidTransform]
}

// NewSynchronizer creates a synchronizer delivering frames in the target
// reference space. The target is established immediately, anchored at the
// device's native origin, so an unsupported space fails here rather than
// on the first frame.
func NewSynchronizer(resolver *space.Resolver, target space.ReferenceSpace) (*Synchronizer, error) {
	if err := resolver.Request(target, transform.Identity()); err != nil {
		return nil, errors.Wrap(err, "frame", "NewSynchronizer", "establishing target space")
	}
	return &Synchronizer{
		resolver: resolver,
		target:   target,
		prev:     map[device.InputID]device.InputSource{},
	}, nil
}

// Target returns the reference space frames are delivered in.
func (s *Synchronizer) Target() space.ReferenceSpace {
	return s.target
}

// Compose builds the next delivered frame from a raw device update.
func (s *Synchronizer) Compose(update device.FrameUpdate) (Frame, error) {
	s.seq++
	f := Frame{
		Seq:            s.seq,
		Time:           s.clampTime(update.Time),
		TimedOutCycles: int(s.timedOut.Swap(0)),
	}

	var viewer transform.RigidTransform
	haveViewer := update.ViewerPose != nil
	if haveViewer {
		viewer = *update.ViewerPose
		s.lastViewer.Store(&viewer)

		pose, err := s.resolver.Resolve(viewer, viewer, s.target)
		if err != nil {
			return Frame{}, errors.Wrap(err, "frame", "Compose", "resolving viewer pose")
		}
		f.ViewerPose = &pose

		f.Views = make([]device.View, len(update.Views))
		for i, v := range update.Views {
			eye, err := s.resolver.Resolve(viewer.Mul(v.Transform), viewer, s.target)
			if err != nil {
				return Frame{}, errors.Wrap(err, "frame", "Compose", "resolving view pose")
			}
			f.Views[i] = device.View{Eye: v.Eye, Transform: eye.Transform}
		}
	}

	// Input tracking is independent of head tracking: only resolution
	// into Viewer space needs the viewer pose from the same frame.
	for _, in := range update.Inputs {
		ip := InputPose{ID: in.ID}
		resolvable := haveViewer || s.target != space.Viewer
		if in.Pose != nil && resolvable {
			pose, err := s.resolver.Resolve(*in.Pose, viewer, s.target)
			if err != nil {
				return Frame{}, errors.Wrap(err, "frame", "Compose", "resolving input pose")
			}
			ip.Pose = &pose
		}
		if in.Hand != nil && resolvable {
			hand, err := s.resolveHand(*in.Hand, viewer)
			if err != nil {
				return Frame{}, errors.Wrap(err, "frame", "Compose", "resolving hand joint poses")
			}
			ip.Hand = &hand
		}
		f.Inputs = append(f.Inputs, ip)
	}

	f.Added, f.Removed = s.diffSources(update.Sources)
	return f, nil
}

// resolveHand expresses every tracked joint of a hand skeleton in the
// target space. Joint radii pass through unchanged.
func (s *Synchronizer) resolveHand(h device.Hand, viewer transform.RigidTransform) (device.Hand, error) {
	var resolveErr error
	out := h.Map(func(j device.Joint) device.Joint {
		pose, err := s.resolver.Resolve(j.Pose, viewer, s.target)
		if err != nil {
			resolveErr = err
			return j
		}
		j.Pose = pose.Transform
		return j
	})
	if resolveErr != nil {
		return device.Hand{}, resolveErr
	}
	return out, nil
}

// RecordTimeout notes a frame request that produced no frame. The count
// rides on the next delivered frame.
func (s *Synchronizer) RecordTimeout() {
	s.timedOut.Add(1)
}

// LastViewerPose returns the most recent device-native viewer pose, or
// nil before the first tracked frame.
func (s *Synchronizer) LastViewerPose() *transform.RigidTransform {
	return s.lastViewer.Load()
}

// clampTime keeps delivered timestamps non-decreasing even when the
// device clock steps backwards.
func (s *Synchronizer) clampTime(t int64) int64 {
	if t < s.lastTime {
		return s.lastTime
	}
	s.lastTime = t
	return t
}

// diffSources compares the current source list against the previous
// delivered frame and updates the stored set.
func (s *Synchronizer) diffSources(sources []device.InputSource) (added, removed []device.InputSource) {
	current := make(map[device.InputID]device.InputSource, len(sources))
	for _, src := range sources {
		current[src.ID] = src
		if _, ok := s.prev[src.ID]; !ok {
			added = append(added, src)
		}
	}
	for id, src := range s.prev {
		if _, ok := current[id]; !ok {
			removed = append(removed, src)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	s.prev = current
	return added, removed
}
