// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framelink/framelink/protocol"
)

var testUpgrader = websocket.Upgrader{}

// startEchoRelay runs a relay endpoint that echoes every frame back.
// The first dropFirst connections are closed immediately after
// upgrade, which forces the client into its reconnect loop.
func startEchoRelay(t *testing.T, dropFirst int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if connections.Add(1) <= int32(dropFirst) {
			return
		}
		for {
			messageType, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, &connections
}

func newTestRelay(t *testing.T, server *httptest.Server, reconnect ReconnectPolicy) *RelayTransport {
	t.Helper()
	relay, err := NewRelay(RelayConfig{
		Endpoint:  testEndpoint(t, server),
		Reconnect: reconnect,
	}, nil, testLogger())
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	t.Cleanup(func() { relay.Disconnect() })
	return relay
}

func TestRelayEchoRoundTrip(t *testing.T) {
	server, _ := startEchoRelay(t, 0)
	relay := newTestRelay(t, server, ReconnectPolicy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := relay.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitEvent(t, relay.Events(), EventConnected, time.Second)

	message, err := protocol.New(protocol.KindClipboard,
		protocol.ClipboardData{Format: protocol.ClipboardText, Content: "hello"}, time.Now())
	if err != nil {
		t.Fatalf("building message: %v", err)
	}
	if err := relay.Send(message); err != nil {
		t.Fatalf("Send: %v", err)
	}

	echoed := waitEvent(t, relay.Events(), EventMessage, 2*time.Second)
	if echoed.Message.Kind != protocol.KindClipboard {
		t.Errorf("echoed kind = %q", echoed.Message.Kind)
	}

	stats := relay.Stats()
	if stats == nil {
		t.Fatal("Stats() = nil while connected")
	}
	if stats.BytesSent == 0 || stats.BytesReceived == 0 {
		t.Errorf("counters not advancing: %+v", stats)
	}
}

func TestRelayHeartbeatRidesControlFrames(t *testing.T) {
	server, _ := startEchoRelay(t, 0)
	relay := newTestRelay(t, server, ReconnectPolicy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := relay.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := relay.SendHeartbeat(); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}
	echoed := waitEvent(t, relay.Events(), EventMessage, 2*time.Second)
	if echoed.Message.Kind != protocol.KindControl {
		t.Fatalf("heartbeat echoed as %q", echoed.Message.Kind)
	}
	var heartbeat protocol.Heartbeat
	if err := echoed.Message.DecodePayload(&heartbeat); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if heartbeat.SentAt == 0 {
		t.Error("heartbeat carries no send time")
	}
	if echoed.Message.Sequence == 0 {
		t.Error("control frame not sequenced")
	}
}

func TestRelayReconnectsAfterDrop(t *testing.T) {
	server, connections := startEchoRelay(t, 1)
	relay := newTestRelay(t, server, ReconnectPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := relay.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The server kills the first connection; the transport should
	// announce the drop, retry, and land on the second connection.
	waitEvent(t, relay.Events(), EventDisconnected, 2*time.Second)
	waitEvent(t, relay.Events(), EventReconnecting, 2*time.Second)
	waitEvent(t, relay.Events(), EventReconnected, 5*time.Second)

	if got := connections.Load(); got < 2 {
		t.Errorf("server saw %d connections, want at least 2", got)
	}
}

// A drop landing right as a reconnect attempt succeeds must start
// another reconnect cycle rather than being swallowed.
func TestRelayReconnectsAfterRepeatedDrops(t *testing.T) {
	server, connections := startEchoRelay(t, 2)
	relay := newTestRelay(t, server, ReconnectPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := relay.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Connection 2 dies the moment the first reconnect lands; the
	// transport must notice and go around again onto connection 3.
	waitEvent(t, relay.Events(), EventReconnected, 5*time.Second)
	waitEvent(t, relay.Events(), EventDisconnected, 5*time.Second)
	waitEvent(t, relay.Events(), EventReconnected, 5*time.Second)

	if got := connections.Load(); got < 3 {
		t.Errorf("server saw %d connections, want at least 3", got)
	}
}

func TestRelayFatalAfterBudgetExhausted(t *testing.T) {
	server, _ := startEchoRelay(t, 0)
	relay := newTestRelay(t, server, ReconnectPolicy{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := relay.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Take the server away entirely so every retry fails.
	server.CloseClientConnections()
	server.Close()

	fatal := waitEvent(t, relay.Events(), EventFatal, 10*time.Second)
	if fatal.Err == nil {
		t.Error("fatal event carries no error")
	}
}

func TestRelaySendBeforeConnect(t *testing.T) {
	server, _ := startEchoRelay(t, 0)
	relay := newTestRelay(t, server, ReconnectPolicy{})

	message, err := protocol.New(protocol.KindInput, protocol.InputBatch{}, time.Now())
	if err != nil {
		t.Fatalf("building message: %v", err)
	}
	if err := relay.Send(message); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before Connect = %v, want ErrNotConnected", err)
	}
	if relay.Stats() != nil {
		t.Error("Stats() non-nil before Connect")
	}
}

func TestRelayDisconnectIdempotent(t *testing.T) {
	server, _ := startEchoRelay(t, 0)
	relay := newTestRelay(t, server, ReconnectPolicy{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := relay.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := relay.Disconnect(); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := relay.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if err := relay.Connect(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Disconnect = %v, want ErrClosed", err)
	}
}
