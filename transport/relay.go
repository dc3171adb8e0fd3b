// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framelink/framelink/lib/clock"
	"github.com/framelink/framelink/protocol"
)

const defaultRelayDialTimeout = 10 * time.Second

// RelayConfig parameterizes one relay transport instance.
type RelayConfig struct {
	Endpoint    Endpoint
	Token       string
	Compression bool
	DialTimeout time.Duration
	Reconnect   ReconnectPolicy
}

// RelayTransport is the websocket fallback. One socket carries every
// message class as framed CBOR (see frame.go); there is no logical
// channel separation, so the per-class delivery guarantees of the
// peer transport do not apply here — the socket is ordered and
// reliable for everything, at the cost of head-of-line blocking.
//
// Like the peer transport it runs its own linear-backoff reconnect
// loop and reports exhaustion with a single EventFatal.
type RelayTransport struct {
	config RelayConfig
	clock  clock.Clock
	logger *slog.Logger
	codec  *frameCodec

	events chan Event

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	reconnecting bool
	closed       bool

	// writeMu serializes frame writes; gorilla allows one concurrent
	// writer.
	writeMu sync.Mutex

	sequence atomic.Uint32

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	statsMu     sync.Mutex
	lastStatsAt time.Time
	lastBytes   uint64
}

var _ Transport = (*RelayTransport)(nil)

// NewRelay constructs a relay transport. Nothing touches the network
// until Connect. The error is confined to codec construction and
// indicates a build problem, not a network one.
func NewRelay(config RelayConfig, clk clock.Clock, logger *slog.Logger) (*RelayTransport, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaultRelayDialTimeout
	}
	frameCodec, err := newFrameCodec(config.Compression)
	if err != nil {
		return nil, err
	}
	return &RelayTransport{
		config: config,
		clock:  clk,
		logger: logger.With("transport", KindRelay),
		codec:  frameCodec,
		events: make(chan Event, eventBufferSize),
	}, nil
}

func (t *RelayTransport) Kind() Kind { return KindRelay }

func (t *RelayTransport) Events() <-chan Event { return t.events }

func (t *RelayTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		return err
	}
	emitEvent(t.events, Event{Type: EventConnected})
	return nil
}

func (t *RelayTransport) dial(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	header := http.Header{}
	if t.config.Token != "" {
		header.Set("Authorization", "Bearer "+t.config.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.config.Endpoint.RelayURL(), header)
	if err != nil {
		return fmt.Errorf("dialing relay %s: %w", t.config.Endpoint.RelayURL(), err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.connected = true
	// Cleared here, in the same hold that installs the connection: a
	// link-down racing the tail of a reconnect must not be swallowed
	// by the reconnecting guard.
	t.reconnecting = false
	t.mu.Unlock()

	t.statsMu.Lock()
	t.lastStatsAt = t.clock.Now()
	t.lastBytes = t.bytesReceived.Load()
	t.statsMu.Unlock()

	go t.readPump(conn)
	return nil
}

// readPump drains the socket until it breaks, surfacing every decoded
// envelope as an event. A read error on a live transport hands
// control to the reconnect loop.
func (t *RelayTransport) readPump(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.handleLinkDown(err)
			return
		}
		t.bytesReceived.Add(uint64(len(frame)))
		message, err := t.codec.decode(frame)
		if err != nil {
			t.logger.Warn("dropping undecodable relay frame", "error", err)
			continue
		}
		emitEvent(t.events, Event{Type: EventMessage, Message: message})
	}
}

func (t *RelayTransport) handleLinkDown(cause error) {
	t.mu.Lock()
	if t.closed || !t.connected || t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.reconnecting = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	t.logger.Warn("relay link down", "error", cause)
	emitEvent(t.events, Event{Type: EventDisconnected, Err: cause})
	go t.reconnectLoop()
}

func (t *RelayTransport) reconnectLoop() {
	policy := t.config.Reconnect
	for attempt := 1; ; attempt++ {
		if policy.Exhausted(attempt) {
			t.mu.Lock()
			t.reconnecting = false
			t.mu.Unlock()
			err := fmt.Errorf("relay reconnect budget exhausted after %d attempts", policy.MaxAttempts)
			t.logger.Error("giving up on relay transport", "attempts", policy.MaxAttempts)
			emitEvent(t.events, Event{Type: EventFatal, Err: err})
			return
		}

		emitEvent(t.events, Event{Type: EventReconnecting, Attempt: attempt})
		t.clock.Sleep(policy.Delay(attempt))

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		err := t.dial(context.Background())
		if err == nil {
			t.logger.Info("relay transport reconnected", "attempt", attempt)
			emitEvent(t.events, Event{Type: EventReconnected, Attempt: attempt})
			return
		}
		t.logger.Warn("relay reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

func (t *RelayTransport) Send(message protocol.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	if message.Kind == protocol.KindControl && message.Sequence == 0 {
		message.Sequence = t.sequence.Add(1)
	}
	frame, err := t.codec.encode(message)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	err = conn.WriteMessage(websocket.BinaryMessage, frame)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("writing relay frame: %w", err)
	}
	t.bytesSent.Add(uint64(len(frame)))
	return nil
}

func (t *RelayTransport) SendHeartbeat() error {
	now := t.clock.Now()
	message, err := protocol.New(protocol.KindControl, protocol.Heartbeat{SentAt: now.UnixMilli()}, now)
	if err != nil {
		return err
	}
	return t.Send(message)
}

func (t *RelayTransport) UpdateQuality(quality protocol.Quality) error {
	now := t.clock.Now()
	message, err := protocol.New(protocol.KindControl, protocol.QualityChange{Quality: quality}, now)
	if err != nil {
		return err
	}
	return t.Send(message)
}

func (t *RelayTransport) Stats() *Stats {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return nil
	}

	received := t.bytesReceived.Load()
	stats := &Stats{
		BytesSent:     t.bytesSent.Load(),
		BytesReceived: received,
	}

	t.statsMu.Lock()
	now := t.clock.Now()
	if elapsed := now.Sub(t.lastStatsAt); elapsed > 0 && !t.lastStatsAt.IsZero() {
		delta := received - t.lastBytes
		stats.BitrateKbps = uint32(float64(delta*8) / elapsed.Seconds() / 1000)
	}
	t.lastStatsAt = now
	t.lastBytes = received
	t.statsMu.Unlock()
	return stats
}

// Disconnect closes the socket with a normal-closure frame when
// possible and halts any reconnect loop. Idempotent.
func (t *RelayTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		deadline := t.clock.Now().Add(time.Second)
		t.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}
