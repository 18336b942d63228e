// Package session owns the lifecycle of one granted XR session.
//
// A Controller runs a device loop goroutine that is the only code
// touching the backend endpoint. Hosts call RequestFrame, Recenter and
// End from any goroutine; requests are handed to the loop over a channel
// and answered on per-request reply channels, so a slow or dead device
// can never corrupt shared state.
//
// Lifecycle: requested -> active -> ending -> ended, with active -> lost
// when the device disappears. Lost moves to ended on its own; the loss is
// reported once, then further calls fail as a closed session.
package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/frame"
	"github.com/servo/webxr/metric"
	"github.com/servo/webxr/space"
	"github.com/servo/webxr/transform"
)

// DefaultFrameTimeout bounds how long one frame poll may take before the
// cycle is abandoned. Generous next to a 60Hz device interval so only a
// stalled device trips it.
const DefaultFrameTimeout = 500 * time.Millisecond

type frameResult struct {
	frame frame.Frame
	err   error
}

// frameRequest carries one host frame request into the device loop. The
// loop watches ctx so a request the caller has abandoned never consumes
// a sequence number.
type frameRequest struct {
	ctx   context.Context
	reply chan frameResult
}

// Option configures a Controller.
type Option func(*Controller)

// WithFrameTimeout overrides the per-frame poll timeout.
func WithFrameTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.frameTimeout = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics wires frame and lifecycle metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller drives one session against one device endpoint.
type Controller struct {
	id          string
	backendName string
	endpoint    device.Endpoint
	resolver    *space.Resolver
	sync        *frame.Synchronizer
	caps        device.Capabilities

	frameTimeout time.Duration
	logger       *Logger
	metrics      *metric.Metrics

	mu           sync.Mutex
	state        State
	inFlight     bool
	deviceLost   bool
	lossSurfaced bool

	requests chan *frameRequest
	changes  chan State

	loopCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	endOnce sync.Once
	endErr  error
}

// New creates a session controller over an open endpoint and starts its
// device loop. The target reference space is established immediately; an
// unsupported target closes the endpoint and fails the session before any
// frame is served.
func New(id, backendName string, endpoint device.Endpoint, caps device.Capabilities, target space.ReferenceSpace, opts ...Option) (*Controller, error) {
	resolver := space.NewResolver(caps)
	synchronizer, err := frame.NewSynchronizer(resolver, target)
	if err != nil {
		_ = endpoint.End()
		return nil, errors.Wrap(err, "session", "New", "establishing target space")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:           id,
		backendName:  backendName,
		endpoint:     endpoint,
		resolver:     resolver,
		sync:         synchronizer,
		caps:         caps,
		frameTimeout: DefaultFrameTimeout,
		state:        StateRequested,
		requests:     make(chan *frameRequest),
		changes:      make(chan State, 8),
		loopCtx:      ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NewLogger(backendName, id, nil, nil)
	}

	go c.run()
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// BackendName returns the name of the backend serving this session.
func (c *Controller) BackendName() string { return c.backendName }

// GrantedFeatures returns a copy of the feature set the device granted.
func (c *Controller) GrantedFeatures() device.FeatureSet {
	return c.caps.Granted.Clone()
}

// Capabilities returns the device capabilities granted to this session.
func (c *Controller) Capabilities() device.Capabilities { return c.caps }

// Target returns the reference space frames are delivered in.
func (c *Controller) Target() space.ReferenceSpace { return c.sync.Target() }

// Bounds returns the safe boundary polygon, if the device reported one.
func (c *Controller) Bounds() []transform.Vector3 { return c.resolver.Bounds() }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateChanges returns a channel carrying state transitions. The channel
// is buffered; a reader that falls behind loses older transitions, never
// blocks the session.
func (c *Controller) StateChanges() <-chan State {
	return c.changes
}

// RequestFrame asks the device for the next animation frame and blocks
// until the frame arrives, the poll times out, the context is cancelled
// or the session closes. Only one request may be in flight at a time; a
// concurrent call fails with ErrFrameInFlight.
func (c *Controller) RequestFrame(ctx context.Context) (frame.Frame, error) {
	c.mu.Lock()
	switch {
	case c.state != StateActive && c.state != StateRequested:
		err := c.terminalErrLocked("RequestFrame")
		c.mu.Unlock()
		return frame.Frame{}, err
	case c.inFlight:
		c.mu.Unlock()
		return frame.Frame{}, errors.WrapInvalid(errors.ErrFrameInFlight, "session", "RequestFrame", "requesting a frame while one is in flight")
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	req := &frameRequest{ctx: ctx, reply: make(chan frameResult, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return frame.Frame{}, errors.WrapTransient(ctx.Err(), "session", "RequestFrame", "waiting for the device loop")
	case <-c.done:
		return frame.Frame{}, c.closedErr("RequestFrame")
	}

	select {
	case res := <-req.reply:
		return res.frame, res.err
	case <-ctx.Done():
		// The loop sees the same ctx and treats the request as
		// abandoned; nothing blocks.
		return frame.Frame{}, errors.WrapTransient(ctx.Err(), "session", "RequestFrame", "waiting for a frame")
	case <-c.done:
		return frame.Frame{}, c.closedErr("RequestFrame")
	}
}

// Recenter resets the origin of an established reference space to the
// viewer pose of the most recently delivered tracked frame. The offset
// swap is atomic; a frame composed concurrently sees the old origin or
// the new one in full, never a mix.
func (c *Controller) Recenter(s space.ReferenceSpace) error {
	if st := c.State(); st != StateActive && st != StateRequested {
		return errors.WrapInvalid(errors.ErrSessionClosed, "session", "Recenter", "recentering a closed session")
	}
	viewer := c.sync.LastViewerPose()
	if viewer == nil {
		return errors.WrapInvalid(errors.ErrInvalidPose, "session", "Recenter", "recentering before the first tracked frame")
	}
	return c.resolver.Recenter(s, *viewer)
}

// End shuts the session down: the device loop stops, the endpoint is
// closed and the state becomes ended. End is idempotent; concurrent and
// repeated calls return the first call's result.
func (c *Controller) End() error {
	c.endOnce.Do(func() {
		c.mu.Lock()
		wasLost := c.deviceLost
		if !wasLost {
			c.setStateLocked(StateEnding)
		}
		c.mu.Unlock()

		c.cancel()
		<-c.done

		// A lost endpoint is already gone; ending it again would just
		// produce noise.
		c.mu.Lock()
		wasLost = wasLost || c.deviceLost
		c.mu.Unlock()
		if !wasLost {
			if err := c.endpoint.End(); err != nil {
				c.endErr = errors.Wrap(err, "session", "End", "closing device endpoint")
			}
			if c.metrics != nil {
				c.metrics.RecordSessionClosed()
			}
		}

		c.setState(StateEnded)
		c.logger.Info("session ended")
	})
	return c.endErr
}

// closedErr maps the terminal state to the error RequestFrame reports.
func (c *Controller) closedErr(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalErrLocked(method)
}

// terminalErrLocked reports device loss exactly once; every later call
// on the closed session fails the same way.
func (c *Controller) terminalErrLocked(method string) error {
	if c.deviceLost && !c.lossSurfaced {
		c.lossSurfaced = true
		return errors.WrapFatal(errors.ErrDeviceLost, "session", method, "session lost its device")
	}
	return errors.WrapInvalid(errors.ErrSessionClosed, "session", method, "session is closed")
}

// run is the device loop. It is the only goroutine that touches the
// endpoint and the frame synchronizer.
func (c *Controller) run() {
	defer close(c.done)

	c.setState(StateActive)
	c.logger.Info("session active")

	for {
		select {
		case <-c.loopCtx.Done():
			return
		case err, ok := <-c.endpoint.Lost():
			if !ok {
				err = errors.ErrChannelClosed
			}
			c.lost(err)
			return
		case req := <-c.requests:
			if exit := c.serveFrame(req); exit {
				return
			}
		}
	}
}

// serveFrame polls the endpoint once and answers the reply channel. It
// returns true when the loop must exit because the session is over.
func (c *Controller) serveFrame(req *frameRequest) bool {
	if req.ctx.Err() != nil {
		// The caller gave up before the poll started; skip the cycle
		// without consuming a device frame.
		return false
	}

	start := time.Now()
	pollCtx, cancel := context.WithTimeout(c.loopCtx, c.frameTimeout)
	update, err := c.endpoint.PollFrame(pollCtx)
	cancel()

	switch {
	case err == nil:
		if req.ctx.Err() != nil {
			// The caller abandoned the request mid-poll. Composing
			// would consume a sequence number nobody sees, so the
			// cycle is recorded as skipped instead and rides on the
			// next delivered frame's counter.
			c.sync.RecordTimeout()
			c.logger.Debug("frame request abandoned mid-poll")
			return false
		}
		f, composeErr := c.sync.Compose(update)
		if composeErr != nil {
			req.reply <- frameResult{err: composeErr}
			return false
		}
		if c.metrics != nil {
			c.metrics.RecordFrameDelivered(c.id, time.Since(start))
		}
		req.reply <- frameResult{frame: f}
		return false

	case c.loopCtx.Err() != nil:
		// End raced the poll; the session is shutting down.
		req.reply <- frameResult{err: errors.WrapInvalid(errors.ErrSessionClosed, "session", "RequestFrame", "session ended during the poll")}
		return true

	case stderrors.Is(err, context.DeadlineExceeded):
		c.sync.RecordTimeout()
		if c.metrics != nil {
			c.metrics.RecordFrameTimeout(c.id)
		}
		c.logger.Warn("frame poll timed out")
		req.reply <- frameResult{err: errors.WrapTransient(errors.ErrFrameTimeout, "session", "RequestFrame", "polling the device for a frame")}
		return false

	default:
		c.mu.Lock()
		c.lossSurfaced = true
		c.mu.Unlock()
		req.reply <- frameResult{err: errors.WrapFatal(errors.ErrDeviceLost, "session", "RequestFrame", "device failed during the poll")}
		c.lost(err)
		return true
	}
}

// lost transitions the session when the device disappears. The lost
// state is observable on StateChanges, then the session moves straight
// to ended; nothing can revive a lost device.
func (c *Controller) lost(cause error) {
	c.mu.Lock()
	c.deviceLost = true
	c.setStateLocked(StateLost)
	c.setStateLocked(StateEnded)
	c.mu.Unlock()

	c.logger.Error("device lost", cause)
	if c.metrics != nil {
		c.metrics.RecordSessionClosed()
		c.metrics.RecordError("session", "device_lost")
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.setStateLocked(s)
	c.mu.Unlock()
}

// setStateLocked updates the state and emits the transition without
// blocking. Terminal states never regress.
func (c *Controller) setStateLocked(s State) {
	if c.state.terminal() && s != StateEnded {
		return
	}
	if c.state == s {
		return
	}
	c.state = s
	if c.metrics != nil {
		c.metrics.RecordSessionState(c.id, int(s))
	}
	select {
	case c.changes <- s:
	default:
	}
}
