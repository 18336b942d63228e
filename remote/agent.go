package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/metric"
	"github.com/servo/webxr/registry"
)

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithAgentLogger sets the agent logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAgentPrefix overrides the wire subject prefix.
func WithAgentPrefix(prefix string) AgentOption {
	return func(a *Agent) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// WithAgentMetrics wires agent-side metrics.
func WithAgentMetrics(m *metric.Metrics) AgentOption {
	return func(a *Agent) { a.metrics = m }
}

// WithPollTimeout bounds how long the agent waits on a device per frame.
func WithPollTimeout(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.pollTimeout = d
		}
	}
}

// Agent exposes a local backend registry to remote hosts over a
// transport. One agent serves many hosts; each granted session runs its
// own subject pair and device endpoint.
type Agent struct {
	transport   Transport
	registry    *registry.Registry
	prefix      string
	pollTimeout time.Duration
	logger      *slog.Logger
	metrics     *metric.Metrics
	tracer      trace.Tracer

	mu       sync.Mutex
	devices  map[string]device.Device
	sessions map[string]*agentSession
	subs     []Subscription
	serving  bool
}

// agentSession is the agent half of one open session.
type agentSession struct {
	id       string
	endpoint device.Endpoint
	seq      sequencer
	sub      Subscription
	done     chan struct{}
	doneOnce sync.Once
}

// NewAgent creates an agent serving the given registry.
func NewAgent(t Transport, reg *registry.Registry, opts ...AgentOption) *Agent {
	a := &Agent{
		transport:   t,
		registry:    reg,
		prefix:      DefaultPrefix,
		pollTimeout: time.Second,
		logger:      slog.Default(),
		tracer:      otel.Tracer("webxr/remote"),
		devices:     make(map[string]device.Device),
		sessions:    make(map[string]*agentSession),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serve subscribes to the discovery subjects and blocks until the
// context is cancelled or the transport closes. Open sessions are ended
// on the way out.
func (a *Agent) Serve(ctx context.Context) error {
	a.mu.Lock()
	if a.serving {
		a.mu.Unlock()
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Agent", "Serve", "agent already serving")
	}
	a.serving = true
	a.mu.Unlock()

	probeSub, err := a.transport.Subscribe(subjectProbe(a.prefix), a.handleProbe)
	if err != nil {
		return errors.Wrap(err, "Agent", "Serve", "subscribing to probe subject")
	}
	openSub, err := a.transport.Subscribe(subjectOpen(a.prefix), a.handleOpen)
	if err != nil {
		_ = probeSub.Unsubscribe()
		return errors.Wrap(err, "Agent", "Serve", "subscribing to open subject")
	}

	a.mu.Lock()
	a.subs = append(a.subs, probeSub, openSub)
	a.mu.Unlock()

	a.logger.Info("device agent serving", "prefix", a.prefix)

	select {
	case <-ctx.Done():
	case <-a.transport.Closed():
	}

	a.shutdown()
	return nil
}

// shutdown unsubscribes everything and ends open sessions.
func (a *Agent) shutdown() {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	sessions := make([]*agentSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[string]*agentSession)
	a.serving = false
	a.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	for _, s := range sessions {
		s.close()
		_ = s.endpoint.End()
	}
	a.logger.Info("device agent stopped")
}

// handleProbe answers discovery probes with the first capable device.
func (a *Agent) handleProbe(ctx context.Context, msg *Message) {
	if msg.Respond == nil {
		return
	}
	ctx, span := a.tracer.Start(ctx, "agent.probe")
	defer span.End()

	var seq sequencer

	env, err := decode(msg.Data)
	if err != nil || env.Tag != TagProbe {
		a.respondProbe(span, msg, &seq, probeResult{OK: false, Error: "malformed probe"})
		return
	}
	var req probeRequest
	if err := env.Decode(&req); err != nil {
		a.respondProbe(span, msg, &seq, probeResult{OK: false, Error: "malformed probe payload"})
		return
	}

	dev, err := a.registry.Probe(device.SessionRequest{
		Required: device.NewFeatureSet(req.Required...),
		Optional: device.NewFeatureSet(req.Optional...),
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if a.metrics != nil {
			a.metrics.RecordDiscoveryAttempt("remote-agent", "declined")
		}
		a.respondProbe(span, msg, &seq, probeResult{OK: false, Error: err.Error()})
		return
	}

	deviceID := uuid.NewString()
	a.mu.Lock()
	a.devices[deviceID] = dev
	a.mu.Unlock()

	caps := dev.Capabilities()
	span.SetAttributes(attribute.String("device.id", deviceID))
	if a.metrics != nil {
		a.metrics.RecordDiscoveryAttempt("remote-agent", "granted")
	}
	a.respondProbe(span, msg, &seq, probeResult{OK: true, DeviceID: deviceID, Capabilities: &caps})
}

func (a *Agent) respondProbe(span trace.Span, msg *Message, seq *sequencer, result probeResult) {
	env, err := seq.envelope(TagProbeResult, "", result)
	if err != nil {
		span.RecordError(err)
		return
	}
	data, err := encode(env)
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := msg.Respond(data); err != nil {
		a.logger.Warn("probe reply failed", "error", err)
	}
}

// handleOpen opens a session on a previously probed device and wires its
// per-session subjects.
func (a *Agent) handleOpen(ctx context.Context, msg *Message) {
	if msg.Respond == nil {
		return
	}
	ctx, span := a.tracer.Start(ctx, "agent.open_session")
	defer span.End()

	var seq sequencer

	env, err := decode(msg.Data)
	if err != nil || env.Tag != TagSessionOpen {
		a.respondOpen(span, msg, &seq, openResult{OK: false, Error: "malformed open request"})
		return
	}
	var req openRequest
	if err := env.Decode(&req); err != nil {
		a.respondOpen(span, msg, &seq, openResult{OK: false, Error: "malformed open payload"})
		return
	}

	a.mu.Lock()
	dev, ok := a.devices[req.DeviceID]
	if ok {
		// One probe result claims one session.
		delete(a.devices, req.DeviceID)
	}
	a.mu.Unlock()
	if !ok {
		a.respondOpen(span, msg, &seq, openResult{OK: false, Error: "unknown device id; probe first"})
		return
	}

	endpoint, err := dev.OpenSession(req.Init)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		a.respondOpen(span, msg, &seq, openResult{OK: false, Error: err.Error()})
		return
	}

	sessionID := uuid.NewString()
	s := &agentSession{
		id:       sessionID,
		endpoint: endpoint,
		done:     make(chan struct{}),
	}

	sub, err := a.transport.Subscribe(subjectSessionReq(a.prefix, sessionID), func(ctx context.Context, msg *Message) {
		a.handleSessionRequest(ctx, s, msg)
	})
	if err != nil {
		_ = endpoint.End()
		span.SetStatus(codes.Error, err.Error())
		a.respondOpen(span, msg, &seq, openResult{OK: false, Error: "session subject subscription failed"})
		return
	}
	s.sub = sub

	a.mu.Lock()
	a.sessions[sessionID] = s
	a.mu.Unlock()

	go a.watchEndpoint(s)

	caps := dev.Capabilities()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("session.name", req.Init.Name),
	)
	if a.metrics != nil {
		a.metrics.RecordSessionOpened("remote-agent")
	}
	a.logger.Info("remote session opened", "session", sessionID, "name", req.Init.Name)
	a.respondOpen(span, msg, &seq, openResult{OK: true, SessionID: sessionID, Capabilities: &caps})
}

func (a *Agent) respondOpen(span trace.Span, msg *Message, seq *sequencer, result openResult) {
	env, err := seq.envelope(TagSessionOpened, result.SessionID, result)
	if err != nil {
		span.RecordError(err)
		return
	}
	data, err := encode(env)
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := msg.Respond(data); err != nil {
		a.logger.Warn("open reply failed", "error", err)
	}
}

// handleSessionRequest serves frame requests and end requests for one
// session.
func (a *Agent) handleSessionRequest(ctx context.Context, s *agentSession, msg *Message) {
	if msg.Respond == nil {
		return
	}

	env, err := decode(msg.Data)
	if err != nil {
		a.respondError(s, msg, "malformed session request")
		return
	}

	switch env.Tag {
	case TagFrameRequest:
		pollCtx, cancel := context.WithTimeout(ctx, a.pollTimeout)
		update, err := s.endpoint.PollFrame(pollCtx)
		cancel()
		if err != nil {
			if pollCtx.Err() != nil {
				// Let the host's own frame timeout fire; answering with
				// an error here would read as device loss.
				return
			}
			a.respondError(s, msg, err.Error())
			a.endSession(s, err)
			return
		}
		a.respond(s, msg, TagFrameResult, update)

	case TagSessionEnd:
		a.respond(s, msg, TagSessionEnd, nil)
		a.endSession(s, nil)

	default:
		a.respondError(s, msg, "unexpected tag "+string(env.Tag))
	}
}

func (a *Agent) respond(s *agentSession, msg *Message, tag Tag, payload any) {
	env, err := s.seq.envelope(tag, s.id, payload)
	if err != nil {
		a.logger.Warn("encoding session reply failed", "session", s.id, "error", err)
		return
	}
	data, err := encode(env)
	if err != nil {
		a.logger.Warn("encoding session reply failed", "session", s.id, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		a.logger.Warn("session reply failed", "session", s.id, "error", err)
	}
}

func (a *Agent) respondError(s *agentSession, msg *Message, reason string) {
	env, err := s.seq.envelope(TagError, s.id, wireError{Error: reason})
	if err != nil {
		return
	}
	if data, err := encode(env); err == nil {
		_ = msg.Respond(data)
	}
}

// watchEndpoint publishes device loss to the session's event subject.
func (a *Agent) watchEndpoint(s *agentSession) {
	select {
	case err, ok := <-s.endpoint.Lost():
		if !ok || err == nil {
			err = errors.ErrDeviceLost
		}
		a.publishEvent(s, TagDeviceLost, wireError{Error: err.Error()})
		a.endSession(s, err)
	case <-s.done:
	}
}

// publishEvent emits a session event to the host.
func (a *Agent) publishEvent(s *agentSession, tag Tag, payload any) {
	env, err := s.seq.envelope(tag, s.id, payload)
	if err != nil {
		return
	}
	data, err := encode(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.pollTimeout)
	defer cancel()
	if err := a.transport.Publish(ctx, subjectSessionEvt(a.prefix, s.id), data); err != nil {
		a.logger.Warn("session event publish failed", "session", s.id, "error", err)
	}
}

// endSession tears one session down and forgets it.
func (a *Agent) endSession(s *agentSession, cause error) {
	a.mu.Lock()
	_, known := a.sessions[s.id]
	delete(a.sessions, s.id)
	a.mu.Unlock()
	if !known {
		return
	}

	s.close()
	_ = s.endpoint.End()
	if a.metrics != nil {
		a.metrics.RecordSessionClosed()
	}
	if cause != nil {
		a.logger.Warn("remote session ended", "session", s.id, "cause", cause)
	} else {
		a.logger.Info("remote session ended", "session", s.id)
	}
}

func (s *agentSession) close() {
	s.doneOnce.Do(func() { close(s.done) })
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}
