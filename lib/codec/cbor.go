// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used on the relay socket.
//
// The relay transport carries every message class — including video
// frames — inside its websocket stream, so its envelope encoding is
// binary CBOR rather than the JSON used on the signaling channel.
// Encoding is Core Deterministic (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items, so the same
// logical frame always produces identical bytes.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Relay frames only ever use string map keys. When decoding
		// into an any-typed target the CBOR default map type is
		// map[interface{}]interface{}, which is incompatible with
		// encoding/json and most Go code. Struct decoding is
		// unaffected by this setting.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored for
// forward compatibility.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value, used to delay decoding of
// kind-specific payloads until the message class is known.
type RawMessage = cbor.RawMessage
