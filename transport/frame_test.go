// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/framelink/framelink/protocol"
)

func frameTestMessage(t *testing.T, payload any) protocol.Message {
	t.Helper()
	message, err := protocol.New(protocol.KindClipboard, payload, time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("building message: %v", err)
	}
	return message
}

func TestFrameCodecRawRoundTrip(t *testing.T) {
	frameCodec, err := newFrameCodec(false)
	if err != nil {
		t.Fatalf("newFrameCodec: %v", err)
	}

	message := frameTestMessage(t, protocol.ClipboardData{Format: protocol.ClipboardText, Content: "hi"})
	frame, err := frameCodec.encode(message)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != frameRaw {
		t.Errorf("flag = 0x%02x, want raw", frame[0])
	}

	decoded, err := frameCodec.decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != protocol.KindClipboard || decoded.Timestamp != message.Timestamp {
		t.Errorf("envelope mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Data, message.Data) {
		t.Errorf("payload mismatch: %s vs %s", decoded.Data, message.Data)
	}
}

func TestFrameCodecCompressesLargeBodies(t *testing.T) {
	frameCodec, err := newFrameCodec(true)
	if err != nil {
		t.Fatalf("newFrameCodec: %v", err)
	}

	// Highly repetitive content well past the compression floor.
	content := strings.Repeat("the same clipboard line over and over\n", 200)
	message := frameTestMessage(t, protocol.ClipboardData{Format: protocol.ClipboardText, Content: content})

	frame, err := frameCodec.encode(message)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != frameCompressed {
		t.Fatalf("flag = 0x%02x, want compressed", frame[0])
	}
	if len(frame) >= len(content) {
		t.Errorf("compressed frame (%d bytes) not smaller than content (%d bytes)", len(frame), len(content))
	}

	decoded, err := frameCodec.decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var clipboard protocol.ClipboardData
	if err := decoded.DecodePayload(&clipboard); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if clipboard.Content != content {
		t.Error("content did not survive the compressed round trip")
	}
}

// A receiver with compression off must still decode compressed frames:
// the flag on the wire decides, not local configuration.
func TestFrameCodecDecodesCompressedWithoutLocalCompression(t *testing.T) {
	sender, err := newFrameCodec(true)
	if err != nil {
		t.Fatalf("newFrameCodec: %v", err)
	}
	receiver, err := newFrameCodec(false)
	if err != nil {
		t.Fatalf("newFrameCodec: %v", err)
	}

	content := strings.Repeat("padding ", 200)
	message := frameTestMessage(t, protocol.ClipboardData{Format: protocol.ClipboardText, Content: content})
	frame, err := sender.encode(message)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != frameCompressed {
		t.Fatal("expected a compressed frame")
	}

	if _, err := receiver.decode(frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestFrameCodecSmallBodiesStayRaw(t *testing.T) {
	frameCodec, err := newFrameCodec(true)
	if err != nil {
		t.Fatalf("newFrameCodec: %v", err)
	}

	message := frameTestMessage(t, protocol.ClipboardData{Format: protocol.ClipboardText, Content: "tiny"})
	frame, err := frameCodec.encode(message)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != frameRaw {
		t.Errorf("flag = 0x%02x, want raw for a small body", frame[0])
	}
}

func TestFrameCodecRejectsBadFrames(t *testing.T) {
	frameCodec, err := newFrameCodec(false)
	if err != nil {
		t.Fatalf("newFrameCodec: %v", err)
	}

	if _, err := frameCodec.decode(nil); err == nil {
		t.Error("empty frame accepted")
	}
	if _, err := frameCodec.decode([]byte{0x7f, 0x01, 0x02}); err == nil {
		t.Error("unknown flag accepted")
	}
	if _, err := frameCodec.decode([]byte{frameCompressed, 0x01, 0x02}); err == nil {
		t.Error("garbage zstd body accepted")
	}
}
