// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// SignalType identifies a signaling message exchanged with the
// signaling endpoint while negotiating a peer link.
type SignalType string

const (
	SignalAuth         SignalType = "auth"
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
	SignalError        SignalType = "error"
)

// Signal is the JSON message on the signaling socket. Exactly one of
// the payload fields is set, matching Type. Offer, Answer, and
// Candidate stay raw here: the peer transport decodes them into its
// WebRTC types, keeping this package transport-agnostic.
//
// Offer/answer follow standard sequencing (offer, set remote,
// create answer, set local, send answer); ICE candidates flow in both
// directions as discovered, asynchronously and unordered.
type Signal struct {
	Type      SignalType      `json:"type"`
	Token     string          `json:"token,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ParseSignal decodes a signaling message and rejects unknown types.
func ParseSignal(data []byte) (Signal, error) {
	var signal Signal
	if err := json.Unmarshal(data, &signal); err != nil {
		return Signal{}, fmt.Errorf("decoding signal: %w", err)
	}
	switch signal.Type {
	case SignalAuth, SignalOffer, SignalAnswer, SignalICECandidate, SignalError:
		return signal, nil
	}
	return Signal{}, fmt.Errorf("unknown signal type %q", signal.Type)
}

// AuthSignal builds an auth message carrying the session token.
func AuthSignal(token string) Signal {
	return Signal{Type: SignalAuth, Token: token}
}
