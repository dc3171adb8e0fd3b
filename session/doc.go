// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns connection lifecycle: which transport a
// session runs on, what state it is in, and everything periodic that
// keeps it alive.
//
// The Orchestrator is the package's single entry point. All session
// state lives on its run loop goroutine; public methods post commands
// onto that loop and wait for a reply, so there is no lock around the
// session record and no callback reentrancy. Transports talk back
// exclusively through their event channels, which the loop drains
// alongside its timers.
//
// Connection establishment prefers the WebRTC peer transport and
// falls back to the websocket relay; when both fail the caller gets a
// ConnectError wrapping both causes. A transport that dies after
// establishment triggers orchestrator-level reconnection with linear
// backoff against the same transport kind the session was frozen to.
package session
