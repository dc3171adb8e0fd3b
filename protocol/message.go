// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the logical channel a message belongs to. Each kind
// carries its own delivery contract: control is ordered and durable,
// input and metrics are best-effort, clipboard and file tolerate
// reordering but are chunk-framed for reassembly.
type Kind string

const (
	KindControl   Kind = "control"
	KindInput     Kind = "input"
	KindClipboard Kind = "clipboard"
	KindFile      Kind = "file"
	KindMetrics   Kind = "metrics"
)

// Kinds lists every logical channel kind in channel-creation order.
var Kinds = []Kind{KindControl, KindInput, KindClipboard, KindFile, KindMetrics}

// Valid reports whether k names a known logical channel.
func (k Kind) Valid() bool {
	switch k {
	case KindControl, KindInput, KindClipboard, KindFile, KindMetrics:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Message is the envelope exchanged over a logical channel:
// {"type": ..., "data": ..., "timestamp": ..., "seq": ...}.
// Timestamp is the producer-side send time in unix milliseconds.
// Sequence is assigned by the sending transport on the control
// channel, where ordering is promised; zero elsewhere.
type Message struct {
	Kind      Kind            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Sequence  uint32          `json:"seq,omitempty"`
}

// New builds an envelope of the given kind around payload, stamped
// with the producer send time.
func New(kind Kind, payload any, sentAt time.Time) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return Message{
		Kind:      kind,
		Data:      data,
		Timestamp: sentAt.UnixMilli(),
	}, nil
}

// Encode serializes the envelope to its JSON wire form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a JSON envelope and validates its kind.
func Decode(data []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return Message{}, fmt.Errorf("decoding message envelope: %w", err)
	}
	if !message.Kind.Valid() {
		return Message{}, fmt.Errorf("unknown message kind %q", message.Kind)
	}
	return message, nil
}

// DecodePayload unmarshals the envelope's data into payload.
func (m Message) DecodePayload(payload any) error {
	if err := json.Unmarshal(m.Data, payload); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Kind, err)
	}
	return nil
}

// Heartbeat is the liveness payload sent on the control channel while
// a session is connected. Failures beyond logging are ignored by the
// sender.
type Heartbeat struct {
	SentAt int64 `json:"sentAt"`
}

// QualityChange asks the remote side to re-target its encoder at a
// new quality tier. Best-effort: the receiver may or may not
// renegotiate live. The ceilings bound the encoder within the tier;
// zero leaves the tier's own limits in force.
type QualityChange struct {
	Quality        Quality `json:"quality"`
	MaxBitrateKbps int     `json:"maxBitrateKbps,omitempty"`
	MaxFramerate   int     `json:"maxFramerate,omitempty"`
}

// Quality is the negotiated encoding quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// ParseQuality maps a string onto a quality tier, rejecting values
// outside the fixed set.
func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return Quality(s), nil
	}
	return "", fmt.Errorf("unknown quality tier %q", s)
}

func (q Quality) String() string { return string(q) }
