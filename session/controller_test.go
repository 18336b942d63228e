package session_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/session"
	"github.com/servo/webxr/space"
	"github.com/servo/webxr/testutil"
	"github.com/servo/webxr/transform"
)

func localCaps() device.Capabilities {
	return device.Capabilities{
		Granted: device.NewFeatureSet(device.FeatureViewer, device.FeatureLocal),
	}
}

func trackedUpdate(timeMs int64, x float64) device.FrameUpdate {
	return device.FrameUpdate{
		Time: timeMs,
		ViewerPose: &transform.RigidTransform{
			Rotation: transform.QuaternionIdentity(),
			Position: transform.Vector3{X: x, Y: 1.6},
		},
	}
}

func newController(t *testing.T, ep *testutil.MockEndpoint, opts ...session.Option) *session.Controller {
	t.Helper()
	c, err := session.New("test-session", "mock", ep, localCaps(), space.Local, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.End() })
	return c
}

func TestNewTransitionsToActive(t *testing.T) {
	c := newController(t, testutil.NewMockEndpoint())
	assert.Eventually(t, func() bool {
		return c.State() == session.StateActive
	}, time.Second, time.Millisecond)
	assert.Equal(t, "test-session", c.ID())
	assert.Equal(t, "mock", c.BackendName())
	assert.Equal(t, space.Local, c.Target())
}

func TestNewRejectsUnsupportedTargetSpace(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	_, err := session.New("s", "mock", ep, localCaps(), space.BoundedFloor)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSpaceUnsupported)
	assert.True(t, ep.Ended(), "failed session must release the endpoint")
}

func TestRequestFrameDeliversSequencedFrames(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)

	times := []int64{16, 10, 48} // middle timestamp steps backwards
	for _, ts := range times {
		ep.QueueFrame(trackedUpdate(ts, 0))
	}

	var last int64
	for i := 1; i <= 3; i++ {
		f, err := c.RequestFrame(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(i), f.Seq)
		assert.GreaterOrEqual(t, f.Time, last)
		last = f.Time
		require.NotNil(t, f.ViewerPose)
	}
}

func TestRequestFrameRejectsConcurrentRequests(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep, session.WithFrameTimeout(2*time.Second))

	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		close(started)
		_, err := c.RequestFrame(context.Background())
		result <- err
	}()
	<-started
	// Give the first request time to register as in flight.
	time.Sleep(20 * time.Millisecond)

	_, err := c.RequestFrame(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrFrameInFlight))

	ep.QueueFrame(trackedUpdate(16, 0))
	require.NoError(t, <-result)
}

func TestRequestFrameTimeoutIsTransientAndCounted(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep, session.WithFrameTimeout(10*time.Millisecond))

	_, err := c.RequestFrame(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFrameTimeout)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, session.StateActive, c.State(), "a timeout must not end the session")

	ep.QueueFrame(trackedUpdate(16, 0))
	f, err := c.RequestFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq, "timed out cycles consume no sequence numbers")
	assert.Equal(t, 1, f.TimedOutCycles)
}

func TestDeviceLossTransitionsToLost(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)

	ep.Disconnect(fmt.Errorf("cable unplugged"))

	assert.Eventually(t, func() bool {
		return c.State() == session.StateEnded
	}, time.Second, time.Millisecond)

	var seen []session.State
	for len(seen) < 3 {
		select {
		case s := <-c.StateChanges():
			seen = append(seen, s)
		case <-time.After(time.Second):
			t.Fatalf("state transitions stalled after %v", seen)
		}
	}
	assert.Equal(t, []session.State{session.StateActive, session.StateLost, session.StateEnded}, seen)

	// The loss is reported exactly once.
	_, err := c.RequestFrame(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeviceLost)
	assert.True(t, errors.IsFatal(err))

	_, err = c.RequestFrame(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	assert.True(t, errors.IsInvalid(err))
}

func TestDeviceLossDuringPoll(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep, session.WithFrameTimeout(5*time.Second))

	result := make(chan error, 1)
	go func() {
		_, err := c.RequestFrame(context.Background())
		result <- err
	}()

	// Let the poll start before pulling the device.
	time.Sleep(20 * time.Millisecond)

	ep.Disconnect(fmt.Errorf("tracking service crashed"))
	err := <-result
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeviceLost)
	assert.Eventually(t, func() bool {
		return c.State() == session.StateEnded
	}, time.Second, time.Millisecond)
}

func TestEndIsIdempotent(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)

	require.NoError(t, c.End())
	assert.Equal(t, session.StateEnded, c.State())
	assert.True(t, ep.Ended())

	require.NoError(t, c.End())
	assert.Equal(t, 1, ep.EndCalls())

	_, err := c.RequestFrame(context.Background())
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
}

func TestEndAfterLossSkipsEndpoint(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)

	ep.Disconnect(fmt.Errorf("gone"))
	assert.Eventually(t, func() bool {
		return c.State() == session.StateEnded
	}, time.Second, time.Millisecond)

	require.NoError(t, c.End())
	assert.Equal(t, session.StateEnded, c.State())
	assert.Zero(t, ep.EndCalls(), "a lost endpoint must not be ended again")
}

func TestRequestFrameHonorsCallerContext(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep, session.WithFrameTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.RequestFrame(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecenterResetsOriginToViewer(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)

	// The viewer has wandered to X=3 since the session origin was set.
	ep.QueueFrame(trackedUpdate(16, 3))
	f, err := c.RequestFrame(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3.0, f.ViewerPose.Transform.Position.X, transform.Epsilon)

	require.NoError(t, c.Recenter(space.Local))

	// Standing still after the recenter, the viewer is back at the
	// origin of the local space.
	ep.QueueFrame(trackedUpdate(32, 3))
	f, err = c.RequestFrame(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, f.ViewerPose.Transform.Position.X, transform.Epsilon)
}

func TestRecenterBeforeTrackingRejected(t *testing.T) {
	c := newController(t, testutil.NewMockEndpoint())
	err := c.Recenter(space.Local)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidPose)
}

func TestRecenterAfterEndRejected(t *testing.T) {
	c := newController(t, testutil.NewMockEndpoint())
	require.NoError(t, c.End())
	err := c.Recenter(space.Local)
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
}

func TestAbandonedRequestLeavesNoSequenceGap(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)

	// Abandon a request while the loop is still polling an empty queue.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.RequestFrame(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The in-flight poll consumes the first of these for the abandoned
	// request; it must not consume a sequence number.
	ep.QueueFrame(trackedUpdate(10, 0))
	ep.QueueFrame(trackedUpdate(20, 0))

	f, err := c.RequestFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, 1, f.TimedOutCycles, "the dropped cycle must be flagged, not silent")
}

func TestStateChangesAreObservable(t *testing.T) {
	ep := testutil.NewMockEndpoint()
	c := newController(t, ep)
	changes := c.StateChanges()

	require.NoError(t, c.End())

	seen := map[session.State]bool{}
	for {
		select {
		case s := <-changes:
			seen[s] = true
			if s == session.StateEnded {
				assert.True(t, seen[session.StateActive])
				assert.True(t, seen[session.StateEnding])
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for state transitions")
		}
	}
}

func TestGrantedFeaturesReturnsCopy(t *testing.T) {
	c := newController(t, testutil.NewMockEndpoint())
	fs := c.GrantedFeatures()
	fs[device.FeatureUnbounded] = struct{}{}
	assert.False(t, c.GrantedFeatures().Contains(device.FeatureUnbounded))
}
