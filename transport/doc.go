// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the two concrete session transports
// and the contract the connection orchestrator programs against.
//
//   - transport.go: the Transport interface, lifecycle events, stats,
//     and the linear-backoff reconnect policy shared by every layer
//     that retries.
//   - peer.go: the WebRTC peer transport. Negotiated over a websocket
//     signaling exchange (signaling.go), it carries inbound media
//     tracks plus five logical data channels (control, input,
//     clipboard, file, metrics), each with its own delivery
//     configuration.
//   - relay.go: the websocket relay fallback. No native media — every
//     message class, video included, rides the socket as CBOR frames
//     (frame.go), optionally zstd-compressed.
//
// Both transports expose the same surface so the orchestrator can
// treat them polymorphically; they differ only in capability, not in
// contract. Transports never reach into session state: everything
// they have to say arrives on their Events channel, which the
// orchestrator subscribes to exactly once.
package transport
