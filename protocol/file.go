// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DefaultChunkSize is the default file chunk payload size. 48 KB
// stays under the 64 KB SCTP message ceiling with envelope overhead
// to spare.
const DefaultChunkSize = 48 * 1024

// FileChunk is one piece of a file transfer. Chunks carry an absolute
// byte offset and the file's total size so the receiver can place
// them independently of arrival order; reassembly is the receiver's
// concern, only the framing lives here.
type FileChunk struct {
	FileID    uuid.UUID `json:"fileId"`
	Name      string    `json:"name,omitempty"`
	Offset    uint64    `json:"offset"`
	TotalSize uint64    `json:"totalSize"`
	Data      []byte    `json:"chunk"`
	Checksum  string    `json:"checksum"`
}

// ChecksumChunk returns the hex BLAKE3 digest of a chunk payload.
func ChecksumChunk(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChunk reports whether the chunk's payload matches its
// recorded checksum.
func VerifyChunk(chunk FileChunk) bool {
	return ChecksumChunk(chunk.Data) == chunk.Checksum
}

// Chunker splits a reader into FileChunk frames with per-chunk BLAKE3
// checksums. Next returns io.EOF after the final chunk.
type Chunker struct {
	fileID    uuid.UUID
	name      string
	totalSize uint64
	offset    uint64
	chunkSize int
	reader    io.Reader
	done      bool
}

// NewChunker frames the contents of reader as file chunks. totalSize
// must be the exact byte length of the stream; chunkSize <= 0 selects
// DefaultChunkSize.
func NewChunker(name string, totalSize uint64, reader io.Reader, chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{
		fileID:    uuid.New(),
		name:      name,
		totalSize: totalSize,
		chunkSize: chunkSize,
		reader:    reader,
	}
}

// FileID returns the transfer identity shared by every chunk.
func (c *Chunker) FileID() uuid.UUID { return c.fileID }

// Next reads and frames the next chunk. The file name is carried only
// on the first chunk. Returns io.EOF once the stream is exhausted,
// and an error if the stream ends before totalSize bytes were framed.
func (c *Chunker) Next() (FileChunk, error) {
	if c.done {
		return FileChunk{}, io.EOF
	}

	buffer := make([]byte, c.chunkSize)
	read, err := io.ReadFull(c.reader, buffer)
	if err == io.EOF || (err == nil && read == 0) {
		c.done = true
		if c.offset != c.totalSize {
			return FileChunk{}, fmt.Errorf("stream ended at %d bytes, expected %d", c.offset, c.totalSize)
		}
		return FileChunk{}, io.EOF
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FileChunk{}, fmt.Errorf("reading chunk at offset %d: %w", c.offset, err)
	}

	data := buffer[:read]
	chunk := FileChunk{
		FileID:    c.fileID,
		Offset:    c.offset,
		TotalSize: c.totalSize,
		Data:      data,
		Checksum:  ChecksumChunk(data),
	}
	if c.offset == 0 {
		chunk.Name = c.name
	}

	c.offset += uint64(read)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		c.done = true
		if c.offset != c.totalSize {
			return FileChunk{}, fmt.Errorf("stream ended at %d bytes, expected %d", c.offset, c.totalSize)
		}
	}
	return chunk, nil
}
