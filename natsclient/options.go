package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/servo/webxr/pkg/retry"
)

// ClientOption configures a Client during construction.
type ClientOption func(*Client) error

// WithName sets the client name advertised to the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) error {
		if l == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = l
		return nil
	}
}

// WithTimeout sets the per-dial timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("drain timeout must be positive, got %v", d)
		}
		c.drainTimeout = d
		return nil
	}
}

// WithReconnectWait sets the delay between automatic reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithMaxReconnects caps automatic reconnect attempts. Negative means
// retry forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithRetry overrides the initial-connect retry policy.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) error {
		if cfg.MaxAttempts <= 0 {
			return fmt.Errorf("retry attempts must be positive, got %d", cfg.MaxAttempts)
		}
		c.retryCfg = cfg
		return nil
	}
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithCredsFile sets NATS 2.0 credentials file authentication.
func WithCredsFile(path string) ClientOption {
	return func(c *Client) error {
		if path == "" {
			return fmt.Errorf("credentials file path cannot be empty")
		}
		c.credsFile = path
		return nil
	}
}
