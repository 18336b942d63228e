// Package remote implements the device backend and agent halves of the
// wire protocol that lets a host drive XR devices attached to another
// process or machine.
//
// The host side registers a Backend whose probes and sessions are served
// by an Agent on the far end. Discovery is request/reply on well-known
// subjects; each open session gets its own request and event subjects.
// Every message is a sequenced Envelope so either side can detect a
// broken stream and fail the session instead of trusting stale data.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
)

// DefaultPrefix namespaces all wire subjects.
const DefaultPrefix = "xr"

// DefaultRequestTimeout bounds discovery and control requests.
const DefaultRequestTimeout = 5 * time.Second

func subjectProbe(prefix string) string { return prefix + ".discovery.probe" }
func subjectOpen(prefix string) string  { return prefix + ".discovery.open" }
func subjectSessionReq(prefix, sessionID string) string {
	return fmt.Sprintf("%s.session.%s.req", prefix, sessionID)
}
func subjectSessionEvt(prefix, sessionID string) string {
	return fmt.Sprintf("%s.session.%s.evt", prefix, sessionID)
}

// probeRequest asks the agent whether some remote device can serve a
// session with these features.
type probeRequest struct {
	Required []device.Feature `json:"required,omitempty"`
	Optional []device.Feature `json:"optional,omitempty"`
}

// probeResult answers a probe.
type probeResult struct {
	OK           bool                 `json:"ok"`
	Error        string               `json:"error,omitempty"`
	DeviceID     string               `json:"deviceId,omitempty"`
	Capabilities *device.Capabilities `json:"capabilities,omitempty"`
}

// openRequest opens a session on a previously probed remote device.
type openRequest struct {
	DeviceID string             `json:"deviceId"`
	Init     device.SessionInit `json:"init"`
}

// openResult answers an open request.
type openResult struct {
	OK           bool                 `json:"ok"`
	Error        string               `json:"error,omitempty"`
	SessionID    string               `json:"sessionId,omitempty"`
	Capabilities *device.Capabilities `json:"capabilities,omitempty"`
}

// wireError carries a failure reason inside a TagError envelope.
type wireError struct {
	Error string `json:"error"`
}

// BackendOption configures the host-side backend.
type BackendOption func(*Backend)

// WithPrefix overrides the wire subject prefix.
func WithPrefix(prefix string) BackendOption {
	return func(b *Backend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithRequestTimeout overrides the discovery/control request timeout.
func WithRequestTimeout(d time.Duration) BackendOption {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBackendLogger sets the logger for wire-level events.
func WithBackendLogger(l *slog.Logger) BackendOption {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// Backend is the host-side device backend speaking to a remote Agent.
type Backend struct {
	transport Transport
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger
	seq       sequencer
}

// NewBackend creates a remote backend over a transport.
func NewBackend(t Transport, opts ...BackendOption) *Backend {
	b := &Backend{
		transport: t,
		prefix:    DefaultPrefix,
		timeout:   DefaultRequestTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend name.
func (b *Backend) Name() string { return "remote" }

// Probe forwards the feature request to the remote agent and returns a
// handle on the device it offers.
func (b *Backend) Probe(req device.SessionRequest) (device.Device, error) {
	env, err := b.seq.envelope(TagProbe, "", probeRequest{
		Required: req.Required.List(),
		Optional: req.Optional.List(),
	})
	if err != nil {
		return nil, err
	}
	data, err := encode(env)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	reply, err := b.transport.Request(ctx, subjectProbe(b.prefix), data)
	if err != nil {
		return nil, errors.WrapTransient(err, "remote", "Probe", "reaching the device agent")
	}

	renv, err := decode(reply)
	if err != nil {
		return nil, err
	}
	if renv.Tag != TagProbeResult {
		return nil, errors.WrapFatal(errors.ErrProtocolBroken, "remote", "Probe",
			fmt.Sprintf("unexpected reply tag %q", renv.Tag))
	}

	var result probeResult
	if err := renv.Decode(&result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, errors.WrapInvalid(errors.ErrNoCapableDevice, "remote", "Probe", result.Error)
	}
	if result.Capabilities == nil || result.DeviceID == "" {
		return nil, errors.WrapFatal(errors.ErrProtocolBroken, "remote", "Probe", "probe result missing device data")
	}

	return &remoteDevice{
		backend:  b,
		deviceID: result.DeviceID,
		caps:     *result.Capabilities,
	}, nil
}

// remoteDevice is the host-side handle on an agent-probed device.
type remoteDevice struct {
	backend  *Backend
	deviceID string
	caps     device.Capabilities
}

func (d *remoteDevice) Capabilities() device.Capabilities {
	return d.caps
}

func (d *remoteDevice) OpenSession(init device.SessionInit) (device.Endpoint, error) {
	b := d.backend
	env, err := b.seq.envelope(TagSessionOpen, "", openRequest{DeviceID: d.deviceID, Init: init})
	if err != nil {
		return nil, err
	}
	data, err := encode(env)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	reply, err := b.transport.Request(ctx, subjectOpen(b.prefix), data)
	if err != nil {
		return nil, errors.WrapTransient(err, "remote", "OpenSession", "reaching the device agent")
	}

	renv, err := decode(reply)
	if err != nil {
		return nil, err
	}
	if renv.Tag != TagSessionOpened {
		return nil, errors.WrapFatal(errors.ErrProtocolBroken, "remote", "OpenSession",
			fmt.Sprintf("unexpected reply tag %q", renv.Tag))
	}

	var result openResult
	if err := renv.Decode(&result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, errors.WrapInvalid(errors.ErrSessionUnavailable, "remote", "OpenSession", result.Error)
	}
	if result.SessionID == "" {
		return nil, errors.WrapFatal(errors.ErrProtocolBroken, "remote", "OpenSession", "open result missing session id")
	}
	if result.Capabilities != nil {
		d.caps = *result.Capabilities
	}

	ep := &Endpoint{
		transport: b.transport,
		prefix:    b.prefix,
		sessionID: result.SessionID,
		timeout:   b.timeout,
		logger:    b.logger,
		lost:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	sub, err := b.transport.Subscribe(subjectSessionEvt(b.prefix, result.SessionID), ep.handleEvent)
	if err != nil {
		return nil, errors.Wrap(err, "remote", "OpenSession", "subscribing to session events")
	}
	ep.evtSub = sub

	go ep.watchTransport()
	return ep, nil
}

// Endpoint is the host-side end of one remote session.
type Endpoint struct {
	transport Transport
	prefix    string
	sessionID string
	timeout   time.Duration
	logger    *slog.Logger

	seq   sequencer
	guard sequenceGuard

	lost     chan error
	lostOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
	ended    atomic.Bool
	evtSub   Subscription
}

// SessionID returns the wire identifier of the remote session.
func (e *Endpoint) SessionID() string { return e.sessionID }

// PollFrame requests the next frame from the remote device.
func (e *Endpoint) PollFrame(ctx context.Context) (device.FrameUpdate, error) {
	if e.ended.Load() {
		return device.FrameUpdate{}, errors.WrapInvalid(errors.ErrSessionClosed, "remote", "PollFrame", "polling an ended session")
	}

	env, err := e.seq.envelope(TagFrameRequest, e.sessionID, nil)
	if err != nil {
		return device.FrameUpdate{}, err
	}
	data, err := encode(env)
	if err != nil {
		return device.FrameUpdate{}, err
	}

	reply, err := e.transport.Request(ctx, subjectSessionReq(e.prefix, e.sessionID), data)
	if err != nil {
		if ctx.Err() != nil {
			// Surface the context error so callers can tell a slow
			// device from a dead transport.
			return device.FrameUpdate{}, ctx.Err()
		}
		return device.FrameUpdate{}, errors.WrapFatal(err, "remote", "PollFrame", "requesting a frame over the wire")
	}

	renv, err := decode(reply)
	if err != nil {
		return device.FrameUpdate{}, err
	}

	switch renv.Tag {
	case TagFrameResult:
	case TagError:
		var we wireError
		_ = renv.Decode(&we)
		return device.FrameUpdate{}, errors.WrapFatal(errors.ErrDeviceLost, "remote", "PollFrame", we.Error)
	default:
		return device.FrameUpdate{}, errors.WrapFatal(errors.ErrProtocolBroken, "remote", "PollFrame",
			fmt.Sprintf("unexpected reply tag %q", renv.Tag))
	}

	if err := e.guard.check(renv); err != nil {
		return device.FrameUpdate{}, err
	}

	var update device.FrameUpdate
	if err := renv.Decode(&update); err != nil {
		return device.FrameUpdate{}, err
	}
	return update, nil
}

// Lost returns the channel signalling device or transport loss.
func (e *Endpoint) Lost() <-chan error {
	return e.lost
}

// End tells the agent the session is over and releases local resources.
func (e *Endpoint) End() error {
	if !e.ended.CompareAndSwap(false, true) {
		return nil
	}
	defer e.cleanup()

	env, err := e.seq.envelope(TagSessionEnd, e.sessionID, nil)
	if err != nil {
		return err
	}
	data, err := encode(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if _, err := e.transport.Request(ctx, subjectSessionReq(e.prefix, e.sessionID), data); err != nil {
		// Best effort: the agent reaps sessions whose transport drops.
		e.logger.Warn("session end not acknowledged", "session", e.sessionID, "error", err)
	}
	return nil
}

// handleEvent consumes agent-published session events.
func (e *Endpoint) handleEvent(_ context.Context, msg *Message) {
	env, err := decode(msg.Data)
	if err != nil {
		e.logger.Warn("dropping malformed session event", "session", e.sessionID, "error", err)
		return
	}
	switch env.Tag {
	case TagDeviceLost:
		var we wireError
		_ = env.Decode(&we)
		e.signalLost(errors.WrapFatal(errors.ErrDeviceLost, "remote", "handleEvent", we.Error))
	case TagSessionEnd:
		e.signalLost(errors.WrapFatal(errors.ErrChannelClosed, "remote", "handleEvent", "agent ended the session"))
	}
}

// watchTransport converts transport shutdown into device loss.
func (e *Endpoint) watchTransport() {
	select {
	case <-e.transport.Closed():
		e.signalLost(errors.WrapFatal(errors.ErrNotConnected, "remote", "watchTransport", "transport closed under the session"))
	case <-e.done:
	}
}

func (e *Endpoint) signalLost(err error) {
	e.lostOnce.Do(func() {
		e.lost <- err
		close(e.lost)
	})
}

func (e *Endpoint) cleanup() {
	e.doneOnce.Do(func() { close(e.done) })
	if e.evtSub != nil {
		_ = e.evtSub.Unsubscribe()
	}
}
