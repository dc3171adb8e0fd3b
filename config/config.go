// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the YAML configuration file.
// Every section has a working default; a missing file or empty
// section falls back rather than fails, while a present-but-invalid
// value is an error. Durations are plain millisecond integers in the
// file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/framelink/framelink/protocol"
	"github.com/framelink/framelink/transport"
)

// Config is the full configuration tree.
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Auth     AuthConfig     `yaml:"auth"`
	Peer     PeerConfig     `yaml:"peer"`
	Relay    RelayConfig    `yaml:"relay"`
	Session  SessionConfig  `yaml:"session"`
	Input    InputConfig    `yaml:"input"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EndpointConfig addresses the remote host. Host and port may instead
// arrive on the command line, so emptiness here is not an error.
type EndpointConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Secure bool   `yaml:"secure"`
}

type AuthConfig struct {
	Token string `yaml:"token"`
}

// ReconnectConfig is one reconnect budget: attempts and the linear
// backoff base.
type ReconnectConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

// Policy converts to the transport-level representation.
func (c ReconnectConfig) Policy() transport.ReconnectPolicy {
	return transport.ReconnectPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   time.Duration(c.BaseDelayMS) * time.Millisecond,
	}
}

type PeerConfig struct {
	ICEServers           []string        `yaml:"ice_servers"`
	NegotiationTimeoutMS int             `yaml:"negotiation_timeout_ms"`
	MaxBitrateKbps       int             `yaml:"max_bitrate_kbps"`
	MaxFramerate         int             `yaml:"max_framerate"`
	Reconnect            ReconnectConfig `yaml:"reconnect"`
}

func (c PeerConfig) NegotiationTimeout() time.Duration {
	return time.Duration(c.NegotiationTimeoutMS) * time.Millisecond
}

type RelayConfig struct {
	Compression   bool            `yaml:"compression"`
	DialTimeoutMS int             `yaml:"dial_timeout_ms"`
	Reconnect     ReconnectConfig `yaml:"reconnect"`
}

func (c RelayConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

type SessionConfig struct {
	HeartbeatIntervalMS int             `yaml:"heartbeat_interval_ms"`
	StatsIntervalMS     int             `yaml:"stats_interval_ms"`
	HistoryCapacity     int             `yaml:"history_capacity"`
	Quality             string          `yaml:"quality"`
	Reconnect           ReconnectConfig `yaml:"reconnect"`
}

func (c SessionConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c SessionConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMS) * time.Millisecond
}

type InputConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	FlushRateHz   int `yaml:"flush_rate_hz"`
}

// FlushInterval converts the flush rate to a tick interval.
func (c InputConfig) FlushInterval() time.Duration {
	return time.Second / time.Duration(c.FlushRateHz)
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{Port: 8080},
		Peer: PeerConfig{
			ICEServers:           []string{"stun:stun.l.google.com:19302"},
			NegotiationTimeoutMS: 15000,
			MaxBitrateKbps:       4000,
			MaxFramerate:         60,
			Reconnect:            ReconnectConfig{MaxAttempts: 3, BaseDelayMS: 1000},
		},
		Relay: RelayConfig{
			Compression:   true,
			DialTimeoutMS: 10000,
			Reconnect:     ReconnectConfig{MaxAttempts: 5, BaseDelayMS: 1000},
		},
		Session: SessionConfig{
			HeartbeatIntervalMS: 5000,
			StatsIntervalMS:     2000,
			HistoryCapacity:     16,
			Quality:             string(protocol.QualityMedium),
			Reconnect:           ReconnectConfig{MaxAttempts: 5, BaseDelayMS: 2000},
		},
		Input: InputConfig{
			QueueCapacity: 256,
			FlushRateHz:   60,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the file at path over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate rejects values outside their working ranges. Zero-valued
// endpoint fields are allowed; they can still arrive from flags.
func (c Config) Validate() error {
	if c.Endpoint.Port != 0 && (c.Endpoint.Port < 1 || c.Endpoint.Port > 65535) {
		return fmt.Errorf("config: endpoint.port %d outside 1-65535", c.Endpoint.Port)
	}
	if c.Peer.NegotiationTimeoutMS <= 0 {
		return fmt.Errorf("config: peer.negotiation_timeout_ms must be positive")
	}
	if c.Peer.MaxBitrateKbps <= 0 {
		return fmt.Errorf("config: peer.max_bitrate_kbps must be positive")
	}
	if c.Peer.MaxFramerate < 1 || c.Peer.MaxFramerate > 240 {
		return fmt.Errorf("config: peer.max_framerate %d outside 1-240", c.Peer.MaxFramerate)
	}
	if c.Relay.DialTimeoutMS <= 0 {
		return fmt.Errorf("config: relay.dial_timeout_ms must be positive")
	}
	if _, err := protocol.ParseQuality(c.Session.Quality); err != nil {
		return fmt.Errorf("config: session.quality: %w", err)
	}
	if c.Session.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("config: session.heartbeat_interval_ms must be positive")
	}
	if c.Session.StatsIntervalMS <= 0 {
		return fmt.Errorf("config: session.stats_interval_ms must be positive")
	}
	if c.Session.HistoryCapacity <= 0 {
		return fmt.Errorf("config: session.history_capacity must be positive")
	}
	if c.Input.QueueCapacity <= 0 {
		return fmt.Errorf("config: input.queue_capacity must be positive")
	}
	if c.Input.FlushRateHz < 1 || c.Input.FlushRateHz > 240 {
		return fmt.Errorf("config: input.flush_rate_hz %d outside 1-240", c.Input.FlushRateHz)
	}
	for _, reconnect := range []struct {
		name   string
		config ReconnectConfig
	}{
		{"peer.reconnect", c.Peer.Reconnect},
		{"relay.reconnect", c.Relay.Reconnect},
		{"session.reconnect", c.Session.Reconnect},
	} {
		if reconnect.config.MaxAttempts < 0 {
			return fmt.Errorf("config: %s.max_attempts must not be negative", reconnect.name)
		}
		if reconnect.config.BaseDelayMS <= 0 {
			return fmt.Errorf("config: %s.base_delay_ms must be positive", reconnect.name)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format %q not one of json, text", c.Logging.Format)
	}
	return nil
}
