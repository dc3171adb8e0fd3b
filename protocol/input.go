// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// InputType classifies a captured user action.
type InputType string

const (
	InputMouse    InputType = "mouse"
	InputKeyboard InputType = "keyboard"
	InputTouch    InputType = "touch"
	InputWheel    InputType = "wheel"
)

// Modifiers records the keyboard modifier state at capture time.
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Meta  bool `json:"meta"`
}

// TouchPoint is one active contact in a touch event.
type TouchPoint struct {
	ID       uint32  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure"`
}

// InputEvent is one captured user action. Coordinates are
// canvas-relative in [0, 1] — the input pipeline normalizes device
// pixels against the attached render surface before queueing, so the
// receiver never sees the viewer's physical resolution.
//
// Delivery is explicitly at-most-once: events ride the best-effort
// input channel and are dropped, never re-queued, on send failure.
type InputEvent struct {
	Type      InputType    `json:"type"`
	Action    string       `json:"action"`
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	DeltaX    float64      `json:"deltaX,omitempty"`
	DeltaY    float64      `json:"deltaY,omitempty"`
	Button    uint8        `json:"button,omitempty"`
	Key       string       `json:"key,omitempty"`
	KeyCode   uint32       `json:"keyCode,omitempty"`
	Code      string       `json:"code,omitempty"`
	Repeat    bool         `json:"repeat,omitempty"`
	Touches   []TouchPoint `json:"touches,omitempty"`
	Modifiers Modifiers    `json:"modifiers"`
	Timestamp int64        `json:"timestamp"`
}

// InputBatch is the unit the input pipeline hands to the transport:
// every event drained from the queue on one flush tick, in capture
// order.
type InputBatch struct {
	Events []InputEvent `json:"events"`
}
