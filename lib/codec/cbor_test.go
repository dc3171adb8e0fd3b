// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": "x", "mid": []int{3, 2, 1}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("second Marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical values produced different encodings")
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if asMap["key"] != "value" {
		t.Errorf("decoded[key] = %v, want %q", asMap["key"], "value")
	}
}

func TestRoundTripStruct(t *testing.T) {
	type frame struct {
		Kind      string `cbor:"kind"`
		Timestamp int64  `cbor:"ts"`
		Data      []byte `cbor:"data"`
	}
	original := frame{Kind: "input", Timestamp: 1700000000123, Data: []byte{1, 2, 3}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded frame
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Kind != original.Kind || decoded.Timestamp != original.Timestamp || !bytes.Equal(decoded.Data, original.Data) {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}
}
