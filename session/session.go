// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/framelink/framelink/protocol"
	"github.com/framelink/framelink/transport"
)

// State is the connection state machine. DISCONNECTED is both the
// idle starting point and, for a session that was torn down, a
// terminal state; FAILED is terminal. A caller retries by starting a
// new session, never by reviving a terminal one.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

var stateNames = map[State]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateReconnecting: "reconnecting",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Counters accumulates per-session traffic totals, merged from
// transport stats on every stats tick.
type Counters struct {
	BytesSent      uint64
	BytesReceived  uint64
	FramesReceived uint64
	FramesDropped  uint64
	LatencyMS      uint32
}

// Session is one connection attempt and its aftermath. The transport
// kind is settled during negotiation and frozen the moment the
// session reaches CONNECTED; reconnection reuses it rather than
// re-running fallback.
//
// Callers only ever see snapshots. The live record belongs to the
// orchestrator's run loop.
type Session struct {
	ID          uuid.UUID
	Endpoint    transport.Endpoint
	Kind        transport.Kind
	State       State
	Quality     protocol.Quality
	StartedAt   time.Time
	ConnectedAt time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Counters    Counters

	inHistory bool
}

// snapshot returns a copy safe to hand outside the run loop.
func (s *Session) snapshot() *Session {
	copied := *s
	return &copied
}
