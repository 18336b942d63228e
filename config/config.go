// Package config defines the agent configuration: a JSON document on
// disk with environment variable overrides layered on top.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// BackendConfigs holds backend instance configurations. The map key is
// the instance name (e.g. "headless-main"). A backend is only created
// if its factory is registered and its entry has enabled=true.
type BackendConfigs map[string]BackendConfig

// BackendConfig configures one backend instance.
type BackendConfig struct {
	// Factory names the registered backend factory to build from.
	Factory string `json:"factory"`
	// Enabled gates creation without deleting the entry.
	Enabled bool `json:"enabled"`
	// Config is the factory-specific configuration, validated against
	// the factory's schema before the backend is built.
	Config json.RawMessage `json:"config,omitempty"`
}

// Config is the complete agent configuration.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	NATS      NATSConfig      `json:"nats"`
	Metrics   MetricsConfig   `json:"metrics"`
	Session   SessionConfig   `json:"session"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Backends  BackendConfigs  `json:"backends"`
}

// AgentConfig defines the agent's identity and wire namespace.
type AgentConfig struct {
	// Name labels the agent in logs and health output.
	Name string `json:"name" env:"XR_AGENT_NAME"`
	// SubjectPrefix namespaces all wire subjects.
	SubjectPrefix string `json:"subject_prefix,omitempty" env:"XR_SUBJECT_PREFIX"`
	// PollTimeout bounds how long a frame poll may block per request.
	PollTimeout time.Duration `json:"poll_timeout,omitempty" env:"XR_POLL_TIMEOUT"`
}

// NATSConfig defines the broker connection.
type NATSConfig struct {
	URL           string        `json:"url" env:"XR_NATS_URL"`
	Token         string        `json:"token,omitempty" env:"XR_NATS_TOKEN"`
	CredsFile     string        `json:"creds_file,omitempty" env:"XR_NATS_CREDS"`
	MaxReconnects int           `json:"max_reconnects,omitempty" env:"XR_NATS_MAX_RECONNECTS"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" env:"XR_NATS_RECONNECT_WAIT"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"XR_METRICS_ENABLED"`
	Port    int    `json:"port,omitempty" env:"XR_METRICS_PORT"`
	Path    string `json:"path,omitempty" env:"XR_METRICS_PATH"`
}

// SessionConfig tunes session behavior.
type SessionConfig struct {
	// FrameTimeout bounds one frame request before it is reported as a
	// transient timeout.
	FrameTimeout time.Duration `json:"frame_timeout,omitempty" env:"XR_FRAME_TIMEOUT"`
}

// TelemetryConfig defines trace export.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" env:"XR_OTEL_ENABLED"`
	Endpoint string `json:"endpoint,omitempty" env:"XR_OTEL_ENDPOINT"`
}

// Defaults fills zero-valued fields with sane defaults.
func (c *Config) Defaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "xr-agent"
	}
	if c.Agent.SubjectPrefix == "" {
		c.Agent.SubjectPrefix = "xr"
	}
	if c.Agent.PollTimeout <= 0 {
		c.Agent.PollTimeout = time.Second
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Session.FrameTimeout <= 0 {
		c.Session.FrameTimeout = 500 * time.Millisecond
	}
}

// Validate checks the configuration for obvious mistakes. Call after
// Defaults.
func (c *Config) Validate() error {
	if c.Agent.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats url cannot be empty")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics port %d out of range", c.Metrics.Port)
	}
	if c.Session.FrameTimeout <= 0 {
		return fmt.Errorf("session frame_timeout must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry enabled without an endpoint")
	}
	for name, backend := range c.Backends {
		if name == "" {
			return fmt.Errorf("backend instance name cannot be empty")
		}
		if backend.Factory == "" {
			return fmt.Errorf("backend %q missing factory name", name)
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// EnabledBackends returns the instance names of enabled backends in
// deterministic order.
func (c *Config) EnabledBackends() []string {
	names := make([]string, 0, len(c.Backends))
	for name, backend := range c.Backends {
		if backend.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SafeConfig provides thread-safe access to a live configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a configuration for concurrent access.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
