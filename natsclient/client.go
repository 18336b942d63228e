// Package natsclient provides a managed NATS connection used by the
// remote device backend and the device agent: retried connects, status
// tracking, and a closed signal surviving the connection's lifetime.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ErrConnectionTimeout reports that a connect attempt exceeded its budget.
var ErrConnectionTimeout = stderrors.New("connection timeout")

// Client manages a NATS connection for the XR wire protocol.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn

	retryCfg      retry.Config
	timeout       time.Duration
	drainTimeout  time.Duration
	reconnectWait time.Duration
	maxReconnects int
	pingInterval  time.Duration

	username  string
	password  string
	token     string
	credsFile string

	clientName string

	closed    chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

// NewClient creates a new NATS client with optional configuration.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		logger: slog.Default(),
		// Sensible defaults
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		retryCfg: retry.Config{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			AddJitter:    true,
		},
		closed: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL.
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status.
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is up.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Conn returns the underlying NATS connection, or nil before Connect.
func (m *Client) Conn() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
}

// Connect dials the server, retrying with backoff until the context is
// cancelled or the retry budget runs out.
func (m *Client) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil && m.conn.IsConnected() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.setStatus(StatusConnecting)

	err := m.retryCfg.Do(ctx, func() error {
		conn, dialErr := nats.Connect(m.url, m.connectionOptions()...)
		if dialErr != nil {
			m.logger.Warn("NATS connect attempt failed", "url", m.url, "error", dialErr)
			return dialErr
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "dialing NATS server")
	}

	m.setStatus(StatusConnected)
	m.logger.Info("connected to NATS", "url", m.url)
	return nil
}

// connectionOptions builds the nats.go options from client settings.
func (m *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Timeout(m.timeout),
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.setStatus(StatusReconnecting)
			m.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			m.setStatus(StatusConnected)
			m.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.setStatus(StatusDisconnected)
			m.closeOnce.Do(func() { close(m.closed) })
		}),
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	if m.username != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}
	if m.credsFile != "" {
		opts = append(opts, nats.UserCredentials(m.credsFile))
	}
	return opts
}

// Publish sends a message to a subject.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := m.Conn()
	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNotConnected, "Client", "Publish", "publishing without a connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publishing message")
	}
	return nil
}

// Request sends a request and waits for the reply or context expiry.
func (m *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn := m.Conn()
	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "Request", "requesting without a connection")
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Request", "waiting for reply")
	}
	return msg.Data, nil
}

// Subscribe registers a handler for a subject. The returned subscription
// must be unsubscribed by the caller when no longer needed.
func (m *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	conn := m.Conn()
	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "Subscribe", "subscribing without a connection")
	}
	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "creating subscription")
	}
	return sub, nil
}

// RTT measures the round-trip time to the server.
func (m *Client) RTT() (time.Duration, error) {
	conn := m.Conn()
	if conn == nil || !conn.IsConnected() {
		return 0, errors.WrapTransient(errors.ErrNotConnected, "Client", "RTT", "measuring round-trip time")
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0, errors.WrapTransient(err, "Client", "RTT", "measuring round-trip time")
	}
	return rtt, nil
}

// Closed returns a channel that closes when the connection is gone for
// good, after reconnect attempts are exhausted or Close is called.
func (m *Client) Closed() <-chan struct{} {
	return m.closed
}

// Close drains the connection and releases it. Safe to call repeatedly.
func (m *Client) Close(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.setStatus(StatusDisconnected)
	m.closeOnce.Do(func() { close(m.closed) })

	if conn == nil {
		return nil
	}

	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	select {
	case err := <-drained:
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "Client", "Close", "draining connection")
		}
		return nil
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "waiting for drain")
	case <-time.After(m.drainTimeout):
		conn.Close()
		return errors.WrapTransient(ErrConnectionTimeout, "Client", "Close", "waiting for drain")
	}
}
