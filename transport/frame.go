// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/framelink/framelink/lib/codec"
	"github.com/framelink/framelink/protocol"
)

// Relay frames are a one-byte flag followed by a CBOR-encoded
// envelope. The flag says whether the body is zstd-compressed; small
// frames are never compressed because the overhead outweighs the
// savings at that size.
const (
	frameRaw        byte = 0x00
	frameCompressed byte = 0x01

	// compressFloor is the smallest body worth compressing.
	compressFloor = 512
)

var errEmptyFrame = errors.New("transport: empty relay frame")

// frameCodec encodes and decodes relay frames. The zstd encoder and
// decoder are stateless (EncodeAll/DecodeAll) and safe for concurrent
// use, so one codec serves both pump directions.
type frameCodec struct {
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

func newFrameCodec(compress bool) (*frameCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &frameCodec{compress: compress, encoder: encoder, decoder: decoder}, nil
}

// encode turns an envelope into a wire frame.
func (c *frameCodec) encode(message protocol.Message) ([]byte, error) {
	body, err := codec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding relay frame: %w", err)
	}
	if c.compress && len(body) >= compressFloor {
		frame := make([]byte, 1, len(body)/2+1)
		frame[0] = frameCompressed
		return c.encoder.EncodeAll(body, frame), nil
	}
	frame := make([]byte, 1+len(body))
	frame[0] = frameRaw
	copy(frame[1:], body)
	return frame, nil
}

// decode turns a wire frame back into an envelope. Decompression is
// keyed off the flag, not off local configuration, so a peer with
// compression enabled can talk to one without.
func (c *frameCodec) decode(frame []byte) (protocol.Message, error) {
	if len(frame) == 0 {
		return protocol.Message{}, errEmptyFrame
	}
	body := frame[1:]
	switch frame[0] {
	case frameCompressed:
		expanded, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("decompressing relay frame: %w", err)
		}
		body = expanded
	case frameRaw:
	default:
		return protocol.Message{}, fmt.Errorf("unknown relay frame flag 0x%02x", frame[0])
	}

	var message protocol.Message
	if err := codec.Unmarshal(body, &message); err != nil {
		return protocol.Message{}, fmt.Errorf("decoding relay frame: %w", err)
	}
	if !message.Kind.Valid() {
		return protocol.Message{}, fmt.Errorf("relay frame carries unknown kind %q", message.Kind)
	}
	return message, nil
}
