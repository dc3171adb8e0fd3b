// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/framelink/framelink/protocol"
	"github.com/framelink/framelink/transport"
)

// EventType names a lifecycle notification published on the
// orchestrator's event channel.
type EventType string

const (
	// EventStateChanged fires on every connection state transition.
	EventStateChanged EventType = "connectionStateChanged"

	// EventConnected fires once per session when it first reaches
	// CONNECTED.
	EventConnected EventType = "connected"

	// EventDisconnected fires when a session is torn down by
	// Disconnect.
	EventDisconnected EventType = "disconnected"

	// EventConnectionFailed fires when a connect attempt exhausts
	// both transports.
	EventConnectionFailed EventType = "connectionFailed"

	// EventQualityChanged fires after a quality tier update is
	// applied to the session.
	EventQualityChanged EventType = "qualityChanged"

	// EventStatsUpdated fires on every stats tick with the merged
	// transport and host telemetry.
	EventStatsUpdated EventType = "statsUpdated"

	// EventReconnectionFailed fires exactly once when the
	// orchestrator's reconnect budget is exhausted.
	EventReconnectionFailed EventType = "reconnectionFailed"

	// EventMediaTrack forwards an inbound media track announcement
	// from the peer transport.
	EventMediaTrack EventType = "mediaTrack"
)

// Event is one notification. Session is a snapshot of the session the
// event concerns, nil when no session exists. The remaining fields
// are set per type: Err for failures, Quality for quality changes,
// Metrics for stats ticks, Track for media arrival.
type Event struct {
	Type    EventType
	State   State
	Session *Session
	Err     error
	Quality protocol.Quality
	Metrics *protocol.MetricsPayload
	Track   *transport.MediaTrack
}
