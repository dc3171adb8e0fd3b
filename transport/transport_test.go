// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconnectPolicyLinearDelay(t *testing.T) {
	policy := ReconnectPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second}

	for attempt := 1; attempt <= 5; attempt++ {
		want := time.Duration(attempt) * 2 * time.Second
		if got := policy.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestReconnectPolicyExhausted(t *testing.T) {
	policy := ReconnectPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	for attempt := 1; attempt <= 3; attempt++ {
		if policy.Exhausted(attempt) {
			t.Errorf("Exhausted(%d) = true within budget", attempt)
		}
	}
	if !policy.Exhausted(4) {
		t.Error("Exhausted(4) = false past budget")
	}
}

func TestEndpointURLs(t *testing.T) {
	plain := Endpoint{Host: "desk.example.com", Port: 8080}
	if got := plain.SignalURL(); got != "ws://desk.example.com:8080/signal" {
		t.Errorf("SignalURL = %q", got)
	}
	if got := plain.RelayURL(); got != "ws://desk.example.com:8080/relay" {
		t.Errorf("RelayURL = %q", got)
	}

	secure := Endpoint{Host: "desk.example.com", Port: 443, Secure: true}
	if got := secure.SignalURL(); got != "wss://desk.example.com:443/signal" {
		t.Errorf("secure SignalURL = %q", got)
	}
}

// testEndpoint derives an Endpoint from an httptest server URL.
func testEndpoint(t *testing.T, server *httptest.Server) Endpoint {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	host, portString, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatalf("splitting host/port: %v", err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}
	return Endpoint{Host: host, Port: port}
}

// waitEvent consumes events until one of the wanted type arrives,
// failing the test on timeout. Intermediate events of other types are
// skipped.
func waitEvent(t *testing.T, events <-chan Event, want EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case event := <-events:
			if event.Type == want {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
			return Event{}
		}
	}
}
