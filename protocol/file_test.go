// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestChunkerFramesEntireStream(t *testing.T) {
	content := bytes.Repeat([]byte("framelink"), 1000) // 9000 bytes
	chunker := NewChunker("notes.txt", uint64(len(content)), bytes.NewReader(content), 4096)

	var chunks []FileChunk
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(chunks))
	}

	// Name rides only on the first chunk.
	if chunks[0].Name != "notes.txt" {
		t.Errorf("first chunk name = %q", chunks[0].Name)
	}
	if chunks[1].Name != "" || chunks[2].Name != "" {
		t.Error("name repeated on later chunks")
	}

	var reassembled []byte
	var offset uint64
	for i, chunk := range chunks {
		if chunk.FileID != chunker.FileID() {
			t.Errorf("chunk %d fileID mismatch", i)
		}
		if chunk.Offset != offset {
			t.Errorf("chunk %d offset = %d, want %d", i, chunk.Offset, offset)
		}
		if chunk.TotalSize != uint64(len(content)) {
			t.Errorf("chunk %d totalSize = %d", i, chunk.TotalSize)
		}
		if !VerifyChunk(chunk) {
			t.Errorf("chunk %d checksum does not verify", i)
		}
		reassembled = append(reassembled, chunk.Data...)
		offset += uint64(len(chunk.Data))
	}
	if !bytes.Equal(reassembled, content) {
		t.Error("reassembled bytes differ from source")
	}
}

func TestChunkerShortStream(t *testing.T) {
	content := []byte("only ten b")
	chunker := NewChunker("short.bin", 100, bytes.NewReader(content), 4096)

	if _, err := chunker.Next(); err == nil {
		t.Fatal("expected error for stream shorter than totalSize")
	}
}

func TestVerifyChunkDetectsCorruption(t *testing.T) {
	data := []byte("payload bytes")
	chunk := FileChunk{Data: data, Checksum: ChecksumChunk(data)}
	if !VerifyChunk(chunk) {
		t.Fatal("valid chunk failed verification")
	}
	chunk.Data[0] ^= 0xff
	if VerifyChunk(chunk) {
		t.Error("corrupted chunk passed verification")
	}
}
