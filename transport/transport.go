// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/framelink/framelink/protocol"
)

// Kind identifies a concrete transport mechanism.
type Kind string

const (
	// KindPeer is the direct WebRTC channel: low latency, native
	// media, preferred whenever negotiation succeeds.
	KindPeer Kind = "peer"

	// KindRelay is the persistent websocket fallback: narrower
	// feature set, used when peer negotiation fails.
	KindRelay Kind = "relay"
)

// Sentinel errors shared by both transports.
var (
	// ErrNotConnected is returned by operations that require an
	// established transport.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrChannelNotReady is returned by Send when the logical channel
	// for the message's kind is not in an open state.
	ErrChannelNotReady = errors.New("transport: channel not ready")

	// ErrClosed is returned once Disconnect has been called.
	ErrClosed = errors.New("transport: closed")
)

// Transport is the contract both transports satisfy. The orchestrator
// selects one per session and programs against this surface without
// knowing which mechanism is underneath.
//
// Disconnect is idempotent and safe to call on a transport that never
// connected. Events returns the same channel for the lifetime of the
// transport; the orchestrator subscribes once at session setup.
type Transport interface {
	// Kind reports which mechanism this transport is.
	Kind() Kind

	// Connect establishes the transport. Blocks until the transport
	// is usable or the attempt fails; ctx bounds the whole attempt.
	Connect(ctx context.Context) error

	// Disconnect tears the transport down. Idempotent.
	Disconnect() error

	// Send serializes the envelope onto the logical channel named by
	// its kind. Returns ErrChannelNotReady if that channel is not
	// open. Delivery semantics follow the message class: the caller
	// must not expect retries for input or metrics.
	Send(message protocol.Message) error

	// SendHeartbeat emits a liveness message on the control channel.
	SendHeartbeat() error

	// UpdateQuality asks the remote side to honor a new quality tier.
	// Best-effort: the transport may or may not renegotiate live.
	UpdateQuality(quality protocol.Quality) error

	// Stats returns a snapshot of transport counters, or nil when not
	// connected.
	Stats() *Stats

	// Events is the transport's signal stream toward the
	// orchestrator.
	Events() <-chan Event
}

// Stats is a point-in-time snapshot of transport counters. Bitrate is
// derived from the receive counter delta between consecutive
// snapshots.
type Stats struct {
	BytesSent      uint64
	BytesReceived  uint64
	FramesReceived uint64
	FramesDropped  uint64
	BitrateKbps    uint32
	LatencyMS      uint32
}

// EventType classifies a transport lifecycle signal.
type EventType string

const (
	// EventConnected fires once the transport is usable.
	EventConnected EventType = "connected"

	// EventDisconnected fires when the link drops. The transport's
	// own reconnect loop takes over; the orchestrator only reflects
	// the state.
	EventDisconnected EventType = "disconnected"

	// EventReconnecting fires before each internal reconnect attempt.
	EventReconnecting EventType = "reconnecting"

	// EventReconnected fires when an internal reconnect attempt
	// restores the link.
	EventReconnected EventType = "reconnected"

	// EventFatal fires when the transport has exhausted its own
	// reconnect budget: this transport instance is unusable and will
	// make no further attempts.
	EventFatal EventType = "fatal"

	// EventMessage carries an inbound envelope from the remote side.
	EventMessage EventType = "message"

	// EventMedia announces an inbound media track (peer transport
	// only). Media arrival is asynchronous and may precede or follow
	// channel establishment.
	EventMedia EventType = "media"
)

// Event is one transport signal. Message is set for EventMessage,
// Track for EventMedia, Err for EventFatal (and EventDisconnected
// when a cause is known).
type Event struct {
	Type    EventType
	Message protocol.Message
	Track   *MediaTrack
	Err     error
	Attempt int
}

// MediaTrack describes an inbound media track surfaced by the peer
// transport.
type MediaTrack struct {
	// Kind is "video" or "audio".
	Kind string

	// ID is the remote track identifier.
	ID string
}

// Endpoint addresses the remote host for the lifetime of a session.
type Endpoint struct {
	Host   string
	Port   int
	Secure bool
}

// SignalURL returns the websocket URL of the signaling endpoint.
func (e Endpoint) SignalURL() string {
	return fmt.Sprintf("%s://%s:%d/signal", e.scheme(), e.Host, e.Port)
}

// RelayURL returns the websocket URL of the relay endpoint.
func (e Endpoint) RelayURL() string {
	return fmt.Sprintf("%s://%s:%d/relay", e.scheme(), e.Host, e.Port)
}

func (e Endpoint) scheme() string {
	if e.Secure {
		return "wss"
	}
	return "ws"
}

// ReconnectPolicy bounds a reconnect loop. The delay before attempt n
// is n times the base delay: linear rather than exponential, which
// keeps the worst-case wait proportional to the budget.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait before the given 1-based attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

// Exhausted reports whether the given 1-based attempt is past the
// budget.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}

// eventBufferSize is generous so lifecycle events survive a consumer
// that lags briefly; emitEvent drops rather than blocks beyond it.
const eventBufferSize = 64

// emitEvent performs a non-blocking send so a slow consumer can never
// deadlock a transport callback.
func emitEvent(events chan Event, event Event) {
	select {
	case events <- event:
	default:
	}
}
