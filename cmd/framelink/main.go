// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Framelink connects to a remote desktop host and keeps the session
// alive: WebRTC peer transport with websocket relay fallback,
// heartbeats, stats polling, and bounded reconnection.
//
//	framelink --host desk.example.com --port 8443 --secure --quality high
//
// A YAML config file (--config) supplies everything the flags do not;
// flags win where both are set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/framelink/framelink/config"
	"github.com/framelink/framelink/protocol"
	"github.com/framelink/framelink/session"
	"github.com/framelink/framelink/telemetry"
	"github.com/framelink/framelink/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "framelink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", "", "path to YAML config file")
		host       = pflag.String("host", "", "remote host to connect to")
		port       = pflag.Int("port", 0, "remote port")
		secure     = pflag.Bool("secure", false, "use TLS for signaling and relay sockets")
		quality    = pflag.String("quality", "", "quality tier: low, medium, high, ultra")
		token      = pflag.String("token", "", "authentication token")
		logLevel   = pflag.String("log-level", "", "log level: debug, info, warn, error")
	)
	pflag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override the file.
	if *host != "" {
		cfg.Endpoint.Host = *host
	}
	if *port != 0 {
		cfg.Endpoint.Port = *port
	}
	if *secure {
		cfg.Endpoint.Secure = true
	}
	if *quality != "" {
		cfg.Session.Quality = *quality
	}
	if *token != "" {
		cfg.Auth.Token = *token
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Endpoint.Host == "" {
		return fmt.Errorf("no host configured; pass --host or set endpoint.host")
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	tier, err := protocol.ParseQuality(cfg.Session.Quality)
	if err != nil {
		return err
	}

	factory := &session.Factory{
		Peer: transport.PeerConfig{
			ICEServers:         cfg.Peer.ICEServers,
			NegotiationTimeout: cfg.Peer.NegotiationTimeout(),
			MaxBitrateKbps:     cfg.Peer.MaxBitrateKbps,
			MaxFramerate:       cfg.Peer.MaxFramerate,
			Reconnect:          cfg.Peer.Reconnect.Policy(),
		},
		Relay: transport.RelayConfig{
			Compression: cfg.Relay.Compression,
			DialTimeout: cfg.Relay.DialTimeout(),
			Reconnect:   cfg.Relay.Reconnect.Policy(),
		},
		Logger: logger,
	}

	orchestrator := session.New(session.Config{
		HeartbeatInterval: cfg.Session.HeartbeatInterval(),
		StatsInterval:     cfg.Session.StatsInterval(),
		HistoryCapacity:   cfg.Session.HistoryCapacity,
		Reconnect:         cfg.Session.Reconnect.Policy(),
	}, factory, telemetry.NewSampler(logger), nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan error, 1)
	go func() { loopDone <- orchestrator.Run(ctx) }()
	go logEvents(ctx, logger, orchestrator.Events())

	if err := orchestrator.Connect(ctx, session.ConnectOptions{
		Host:    cfg.Endpoint.Host,
		Port:    cfg.Endpoint.Port,
		Secure:  cfg.Endpoint.Secure,
		Quality: tier,
		Token:   cfg.Auth.Token,
	}); err != nil {
		stop()
		<-loopDone
		return err
	}

	logger.Info("session established, press Ctrl+C to disconnect")
	<-ctx.Done()
	<-loopDone
	logger.Info("shut down")
	return nil
}

// logEvents surfaces the orchestrator's notifications on the log.
func logEvents(ctx context.Context, logger *slog.Logger, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			switch event.Type {
			case session.EventStatsUpdated:
				if event.Metrics != nil {
					logger.Debug("stats",
						"bitrateKbps", event.Metrics.BitrateKbps,
						"latencyMs", event.Metrics.LatencyMS,
						"cpu", event.Metrics.CPUPercent,
						"memoryMB", event.Metrics.MemoryUsedMB)
				}
			case session.EventReconnectionFailed:
				logger.Error("reconnection failed, session is stranded", "error", event.Err)
			default:
				logger.Info(string(event.Type), "state", event.State)
			}
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
}
