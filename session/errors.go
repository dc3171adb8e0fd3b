// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected rejects a Connect while another session is
	// connecting, connected, or reconnecting. The caller must
	// Disconnect first.
	ErrAlreadyConnected = errors.New("session: already connected or connecting")

	// ErrNotConnected is returned by operations that need an
	// established session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrConnectAborted is delivered to a Connect caller whose
	// attempt was superseded by a Disconnect before it settled.
	ErrConnectAborted = errors.New("session: disconnected before connect completed")

	// ErrOrchestratorStopped is returned once the run loop has
	// exited.
	ErrOrchestratorStopped = errors.New("session: orchestrator stopped")
)

// ValidationError rejects connect options before any network work
// happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: invalid %s: %s", e.Field, e.Reason)
}

// ConnectError aggregates the failure of a full connect attempt: the
// peer cause and the relay cause, in fallback order. errors.Is and
// errors.As see through to both.
type ConnectError struct {
	PeerErr  error
	RelayErr error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: all transports failed: peer: %v; relay: %v", e.PeerErr, e.RelayErr)
}

func (e *ConnectError) Unwrap() []error {
	return []error{e.PeerErr, e.RelayErr}
}
