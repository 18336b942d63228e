// Package main implements the XR device agent. The agent hosts local
// device backends and serves them to remote hosts over NATS: discovery
// probes, session opens and frame requests all arrive as wire envelopes
// and are answered from the local backend registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/servo/webxr/backendregistry"
	"github.com/servo/webxr/config"
	"github.com/servo/webxr/health"
	"github.com/servo/webxr/metric"
	"github.com/servo/webxr/natsclient"
	"github.com/servo/webxr/registry"
	"github.com/servo/webxr/remote"
	"github.com/servo/webxr/telemetry"
)

// Build information constants.
const (
	Version = "0.1.0"
	appName = "xr-agent"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("starting XR device agent", "version", Version, "config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Agent.Name, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("trace flush failed", "error", err)
		}
	}()

	natsClient, err := buildNATSClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	slog.Info("connecting to NATS", "url", cfg.NATS.URL)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		_ = natsClient.Close(closeCtx)
	}()

	metricsRegistry := metric.NewMetricsRegistry()
	metrics := metricsRegistry.CoreMetrics()
	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
		slog.Info("metrics server listening", "address", metricsServer.Address())
	}

	reg, err := buildRegistry(cfg, metrics, logger, natsClient)
	if err != nil {
		return err
	}

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("registry", fmt.Sprintf("%d backends registered", len(reg.Backends())))
	monitor.UpdateHealthy("transport", "connected to "+cfg.NATS.URL)
	go func() {
		<-natsClient.Closed()
		monitor.UpdateUnhealthy("transport", "connection closed")
	}()
	if cliCfg.HealthPort > 0 {
		startHealthServer(ctx, cliCfg.HealthPort, monitor)
	}

	transport := remote.NewNATSTransport(natsClient)
	agent := remote.NewAgent(transport, reg,
		remote.WithAgentLogger(logger),
		remote.WithAgentPrefix(cfg.Agent.SubjectPrefix),
		remote.WithAgentMetrics(metrics),
		remote.WithPollTimeout(cfg.Agent.PollTimeout),
	)

	slog.Info("agent serving", "prefix", cfg.Agent.SubjectPrefix, "backends", len(reg.Backends()))
	return agent.Serve(ctx)
}

// buildNATSClient translates connection config into client options.
func buildNATSClient(cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Agent.Name),
		natsclient.WithLogger(logger),
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.CredsFile != "" {
		opts = append(opts, natsclient.WithCredsFile(cfg.NATS.CredsFile))
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	return natsclient.NewClient(cfg.NATS.URL, opts...)
}

// buildRegistry registers built-in factories and instantiates every
// enabled backend from the configuration.
func buildRegistry(cfg *config.Config, metrics *metric.Metrics, logger *slog.Logger, nc *natsclient.Client) (*registry.Registry, error) {
	reg := registry.NewRegistry(
		registry.WithMetrics(metrics),
		registry.WithLogger(logger),
		registry.WithNATS(nc.Conn()),
	)
	if err := backendregistry.Register(reg); err != nil {
		return nil, fmt.Errorf("register backend factories: %w", err)
	}
	slog.Info("backend factories registered", "factories", reg.ListFactories())

	for _, name := range cfg.EnabledBackends() {
		backend := cfg.Backends[name]
		if _, err := reg.CreateBackend(backend.Factory, backend.Config); err != nil {
			return nil, fmt.Errorf("create backend %q: %w", name, err)
		}
		slog.Info("backend created", "instance", name, "factory", backend.Factory)
	}
	return reg, nil
}

// startHealthServer serves the health monitor over HTTP and shuts the
// listener down when the context ends.
func startHealthServer(ctx context.Context, port int, monitor *health.Monitor) {
	mux := http.NewServeMux()
	mux.Handle("/health", monitor.Handler(appName))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	slog.Info("health server listening", "port", port)
}
