// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/framelink/framelink/lib/clock"
	"github.com/framelink/framelink/protocol"
)

const (
	defaultQueueCapacity = 256

	// ~60Hz, matched to a typical render loop.
	defaultFlushInterval = 16 * time.Millisecond
)

// Sender ships a drained batch toward the remote side. The session
// orchestrator satisfies it.
type Sender interface {
	SendInput(batch protocol.InputBatch) error
}

// Config parameterizes a Pipeline.
type Config struct {
	QueueCapacity int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

// Pipeline turns raw device-space input into normalized, batched
// protocol events. Capture requires both an attached render surface
// (for coordinate normalization) and the enabled flag; the two are
// controlled independently so a caller can blank input without losing
// the surface geometry, or resize without touching the capture gate.
//
// Events captured while the pipeline runs are queued and shipped on
// the next flush tick. Detaching or disabling stops new capture but
// already-queued events still flush.
type Pipeline struct {
	config Config
	queue  *Queue
	sender Sender
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	enabled  bool
	attached bool
	width    float64
	height   float64
}

// New constructs a pipeline. Run starts the flush loop.
func New(config Config, sender Sender, clk clock.Clock, logger *slog.Logger) *Pipeline {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()
	return &Pipeline{
		config: config,
		queue:  NewQueue(config.QueueCapacity),
		sender: sender,
		clock:  clk,
		logger: logger.With("component", "input"),
	}
}

// Run flushes the queue at the configured rate until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Flush()
		}
	}
}

// Flush drains the queue and ships the batch. At-most-once: a failed
// send drops the batch rather than re-queueing, since replayed input
// is worse than lost input.
func (p *Pipeline) Flush() {
	events := p.queue.Drain()
	if len(events) == 0 {
		return
	}
	if err := p.sender.SendInput(protocol.InputBatch{Events: events}); err != nil {
		p.logger.Debug("input batch dropped", "events", len(events), "error", err)
	}
}

// Attach registers the render surface dimensions used to normalize
// device coordinates. Width and height must be positive.
func (p *Pipeline) Attach(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("input: invalid surface %gx%g", width, height)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = true
	p.width = width
	p.height = height
	return nil
}

// Detach forgets the render surface. Capture stops; queued events
// remain and flush normally.
func (p *Pipeline) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = false
}

// Enable opens the capture gate.
func (p *Pipeline) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Disable closes the capture gate without touching the surface.
func (p *Pipeline) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// Dropped reports events lost to queue overflow.
func (p *Pipeline) Dropped() uint64 { return p.queue.Dropped() }

// Pending reports events queued but not yet flushed.
func (p *Pipeline) Pending() int { return p.queue.Len() }

// CaptureMouse queues a mouse event at device coordinates.
func (p *Pipeline) CaptureMouse(action string, x, y, deltaX, deltaY float64, button uint8, modifiers protocol.Modifiers) {
	normX, normY, ok := p.normalize(x, y)
	if !ok {
		return
	}
	p.queue.Push(protocol.InputEvent{
		Type:      protocol.InputMouse,
		Action:    action,
		X:         normX,
		Y:         normY,
		DeltaX:    deltaX,
		DeltaY:    deltaY,
		Button:    button,
		Modifiers: modifiers,
		Timestamp: p.clock.Now().UnixMilli(),
	})
}

// CaptureWheel queues a scroll event at device coordinates.
func (p *Pipeline) CaptureWheel(x, y, deltaX, deltaY float64, modifiers protocol.Modifiers) {
	normX, normY, ok := p.normalize(x, y)
	if !ok {
		return
	}
	p.queue.Push(protocol.InputEvent{
		Type:      protocol.InputWheel,
		Action:    "wheel",
		X:         normX,
		Y:         normY,
		DeltaX:    deltaX,
		DeltaY:    deltaY,
		Modifiers: modifiers,
		Timestamp: p.clock.Now().UnixMilli(),
	})
}

// CaptureKeyboard queues a key event. Keyboard input has no
// coordinates but still requires an attached surface: keys without a
// focused remote view have nowhere to go.
func (p *Pipeline) CaptureKeyboard(action, key string, keyCode uint32, code string, repeat bool, modifiers protocol.Modifiers) {
	if !p.capturing() {
		return
	}
	p.queue.Push(protocol.InputEvent{
		Type:      protocol.InputKeyboard,
		Action:    action,
		Key:       key,
		KeyCode:   keyCode,
		Code:      code,
		Repeat:    repeat,
		Modifiers: modifiers,
		Timestamp: p.clock.Now().UnixMilli(),
	})
}

// CaptureTouch queues a touch event, normalizing every contact point.
func (p *Pipeline) CaptureTouch(action string, touches []protocol.TouchPoint) {
	p.mu.Lock()
	capturing := p.enabled && p.attached
	width, height := p.width, p.height
	p.mu.Unlock()
	if !capturing {
		return
	}

	normalized := make([]protocol.TouchPoint, len(touches))
	for i, touch := range touches {
		normalized[i] = protocol.TouchPoint{
			ID:       touch.ID,
			X:        clamp01(touch.X / width),
			Y:        clamp01(touch.Y / height),
			Pressure: touch.Pressure,
		}
	}
	p.queue.Push(protocol.InputEvent{
		Type:      protocol.InputTouch,
		Action:    action,
		Touches:   normalized,
		Timestamp: p.clock.Now().UnixMilli(),
	})
}

// normalize maps device coordinates onto the [0,1] canvas, reporting
// whether capture is currently allowed.
func (p *Pipeline) normalize(x, y float64) (float64, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || !p.attached {
		return 0, 0, false
	}
	return clamp01(x / p.width), clamp01(y / p.height), true
}

func (p *Pipeline) capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled && p.attached
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
