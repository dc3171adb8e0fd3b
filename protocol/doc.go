// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire types exchanged during a remote
// desktop session.
//
// Two distinct surfaces share this package:
//
//   - message.go, input.go, clipboard.go, file.go, metrics.go: the
//     logical channel envelope and its kind-specific payloads. The
//     envelope rides the five data channels of the peer transport as
//     JSON and the relay socket as CBOR (see transport and lib/codec).
//   - signal.go: the JSON signaling messages (auth, offer, answer,
//     ice-candidate, error) exchanged with the signaling endpoint
//     while negotiating a peer link.
//
// Delivery semantics are per message class, not per type: control
// messages are ordered and retried, input and metrics are best-effort
// and tolerate reordering, file messages are chunked with offset and
// total size so the receiver can reassemble (reassembly itself lives
// with the receiver, only the framing is here).
package protocol
