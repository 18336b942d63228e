package remote_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/registry"
	"github.com/servo/webxr/remote"
	"github.com/servo/webxr/testutil"
	"github.com/servo/webxr/transform"
)

// startAgent wires an agent over an in-memory transport and waits until
// its discovery subjects are live.
func startAgent(t *testing.T, reg *registry.Registry, opts ...remote.AgentOption) *testutil.MemoryTransport {
	t.Helper()

	transport := testutil.NewMemoryTransport()
	agent := remote.NewAgent(transport, reg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agent.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return transport.SubscriberCount("xr.discovery.probe") == 1 &&
			transport.SubscriberCount("xr.discovery.open") == 1
	}, time.Second, time.Millisecond)

	return transport
}

func handRequest() device.SessionRequest {
	return device.SessionRequest{
		Required: device.NewFeatureSet(device.FeatureViewer, device.FeatureHandTracking),
	}
}

func TestProbeOpenAndPollFrames(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureLocal, device.FeatureHandTracking)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))
	transport := startAgent(t, reg)

	backend := remote.NewBackend(transport)
	assert.Equal(t, "remote", backend.Name())

	dev, err := backend.Probe(handRequest())
	require.NoError(t, err)
	caps := dev.Capabilities()
	assert.True(t, caps.Granted.Contains(device.FeatureHandTracking))

	endpoint, err := dev.OpenSession(device.SessionInit{Name: "wire test"})
	require.NoError(t, err)
	require.NotNil(t, mock.LastEndpoint)

	pose := transform.RigidTransform{
		Rotation: transform.QuaternionIdentity(),
		Position: transform.Vector3{X: 1},
	}
	for i := int64(1); i <= 3; i++ {
		mock.LastEndpoint.QueueFrame(device.FrameUpdate{Time: i * 10, ViewerPose: &pose})
	}

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		update, err := endpoint.PollFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, i*10, update.Time)
		require.NotNil(t, update.ViewerPose)
		assert.InDelta(t, 1.0, update.ViewerPose.Position.X, 1e-9)
	}

	require.NoError(t, endpoint.End())
	assert.Equal(t, 1, mock.LastEndpoint.EndCalls())

	_, err = endpoint.PollFrame(ctx)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrSessionClosed))
}

func TestProbeDeclinedWhenNoBackendQualifies(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureLocal)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))
	transport := startAgent(t, reg)

	backend := remote.NewBackend(transport)
	_, err := backend.Probe(handRequest())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNoCapableDevice))
	assert.True(t, errors.IsInvalid(err))
}

func TestProbeWithoutAgentIsTransient(t *testing.T) {
	transport := testutil.NewMemoryTransport()
	backend := remote.NewBackend(transport, remote.WithRequestTimeout(100*time.Millisecond))

	_, err := backend.Probe(handRequest())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestProbeResultClaimsOneSession(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureHandTracking)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))
	transport := startAgent(t, reg)

	backend := remote.NewBackend(transport)
	dev, err := backend.Probe(handRequest())
	require.NoError(t, err)

	first, err := dev.OpenSession(device.SessionInit{})
	require.NoError(t, err)
	defer func() { _ = first.End() }()

	_, err = dev.OpenSession(device.SessionInit{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrSessionUnavailable))
	assert.Equal(t, 1, mock.OpenCount())
}

func TestDeviceLossReachesHost(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureHandTracking)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))
	transport := startAgent(t, reg)

	backend := remote.NewBackend(transport)
	dev, err := backend.Probe(handRequest())
	require.NoError(t, err)
	endpoint, err := dev.OpenSession(device.SessionInit{})
	require.NoError(t, err)

	mock.LastEndpoint.Disconnect(errors.ErrDeviceLost)

	select {
	case lossErr := <-endpoint.Lost():
		require.Error(t, lossErr)
		assert.True(t, stderrors.Is(lossErr, errors.ErrDeviceLost))
	case <-time.After(time.Second):
		t.Fatal("device loss never reached the host")
	}
}

func TestTransportCloseSignalsLoss(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureHandTracking)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))
	transport := startAgent(t, reg)

	backend := remote.NewBackend(transport)
	dev, err := backend.Probe(handRequest())
	require.NoError(t, err)
	endpoint, err := dev.OpenSession(device.SessionInit{})
	require.NoError(t, err)

	transport.Close()

	select {
	case lossErr := <-endpoint.Lost():
		require.Error(t, lossErr)
		assert.True(t, stderrors.Is(lossErr, errors.ErrNotConnected))
	case <-time.After(time.Second):
		t.Fatal("transport close never reached the host")
	}
}

func TestSlowDeviceSurfacesCallerTimeout(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureHandTracking)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))
	// Keep the agent waiting on the device longer than the caller will.
	transport := startAgent(t, reg, remote.WithPollTimeout(5*time.Second))

	backend := remote.NewBackend(transport)
	dev, err := backend.Probe(handRequest())
	require.NoError(t, err)
	endpoint, err := dev.OpenSession(device.SessionInit{})
	require.NoError(t, err)
	defer func() { _ = endpoint.End() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = endpoint.PollFrame(ctx)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestAgentShutdownEndsOpenSessions(t *testing.T) {
	mock := testutil.NewMockBackend("sim", device.FeatureViewer, device.FeatureHandTracking)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(mock))

	transport := testutil.NewMemoryTransport()
	agent := remote.NewAgent(transport, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agent.Serve(ctx)
	}()
	require.Eventually(t, func() bool {
		return transport.SubscriberCount("xr.discovery.probe") == 1
	}, time.Second, time.Millisecond)

	backend := remote.NewBackend(transport)
	dev, err := backend.Probe(handRequest())
	require.NoError(t, err)
	_, err = dev.OpenSession(device.SessionInit{})
	require.NoError(t, err)
	require.NotNil(t, mock.LastEndpoint)

	cancel()
	<-done
	assert.True(t, mock.LastEndpoint.Ended())
}
