// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// ClipboardFormat identifies the content type of a clipboard payload.
type ClipboardFormat string

const (
	ClipboardText  ClipboardFormat = "text"
	ClipboardHTML  ClipboardFormat = "html"
	ClipboardImage ClipboardFormat = "image"
)

// ClipboardData carries one clipboard synchronization. Content is the
// clipboard body in the named encoding (utf-8 for text/html, base64
// for image data).
type ClipboardData struct {
	Format   ClipboardFormat `json:"format"`
	Content  string          `json:"content"`
	Encoding string          `json:"encoding"`
}
