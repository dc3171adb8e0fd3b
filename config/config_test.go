// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framelink.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
endpoint:
  host: desk.example.com
  port: 9443
  secure: true
auth:
  token: tok-abc
peer:
  ice_servers:
    - stun:stun.example.com:3478
    - turn:turn.example.com:3478
  negotiation_timeout_ms: 8000
session:
  quality: high
  heartbeat_interval_ms: 10000
input:
  flush_rate_hz: 120
`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Endpoint.Host != "desk.example.com" || loaded.Endpoint.Port != 9443 || !loaded.Endpoint.Secure {
		t.Errorf("endpoint = %+v", loaded.Endpoint)
	}
	if loaded.Auth.Token != "tok-abc" {
		t.Errorf("token = %q", loaded.Auth.Token)
	}
	if len(loaded.Peer.ICEServers) != 2 || !strings.HasPrefix(loaded.Peer.ICEServers[1], "turn:") {
		t.Errorf("ice servers = %v", loaded.Peer.ICEServers)
	}
	if loaded.Peer.NegotiationTimeout() != 8*time.Second {
		t.Errorf("negotiation timeout = %v", loaded.Peer.NegotiationTimeout())
	}
	if loaded.Session.Quality != "high" || loaded.Session.HeartbeatInterval() != 10*time.Second {
		t.Errorf("session = %+v", loaded.Session)
	}
	if loaded.Input.FlushInterval() != time.Second/120 {
		t.Errorf("flush interval = %v", loaded.Input.FlushInterval())
	}

	// Untouched sections keep their defaults.
	if !loaded.Relay.Compression || loaded.Relay.Reconnect.MaxAttempts != 5 {
		t.Errorf("relay defaults lost: %+v", loaded.Relay)
	}
	if loaded.Session.StatsIntervalMS != 2000 {
		t.Errorf("stats interval default lost: %d", loaded.Session.StatsIntervalMS)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"bad port", "endpoint:\n  port: 99999\n", "endpoint.port"},
		{"bad quality", "session:\n  quality: extreme\n", "session.quality"},
		{"bad flush rate", "input:\n  flush_rate_hz: 0\n", "flush_rate_hz"},
		{"bad log level", "logging:\n  level: verbose\n", "logging.level"},
		{"bad backoff", "session:\n  reconnect:\n    base_delay_ms: 0\n", "base_delay_ms"},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			path := writeConfig(t, testCase.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load accepted invalid config")
			}
			if !strings.Contains(err.Error(), testCase.want) {
				t.Errorf("error %q does not mention %q", err, testCase.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "endpoint: [not a mapping\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}

func TestReconnectPolicyConversion(t *testing.T) {
	policy := (ReconnectConfig{MaxAttempts: 4, BaseDelayMS: 1500}).Policy()
	if policy.MaxAttempts != 4 || policy.BaseDelay != 1500*time.Millisecond {
		t.Errorf("policy = %+v", policy)
	}
	if policy.Delay(3) != 4500*time.Millisecond {
		t.Errorf("Delay(3) = %v", policy.Delay(3))
	}
}
