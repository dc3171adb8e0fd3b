// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package input captures user events, normalizes them against the
// render surface, and batches them toward the active transport on a
// fixed-rate flush tick.
//
// Backpressure is handled by bounding, not blocking: the queue has a
// fixed capacity and evicts its oldest event when full, because a
// stale mouse move is worth less than a fresh one. Delivery is
// at-most-once end to end; a batch that fails to send is dropped,
// never re-queued.
package input

import (
	"sync"

	"github.com/framelink/framelink/protocol"
)

// Queue is a fixed-capacity FIFO ring of input events. When full,
// Push evicts the oldest event to admit the new one. Safe for
// concurrent use: capture happens on caller goroutines, draining on
// the flush loop.
type Queue struct {
	mu      sync.Mutex
	events  []protocol.InputEvent
	head    int
	count   int
	dropped uint64
}

// NewQueue returns a queue holding at most capacity events. Panics if
// capacity is not positive.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic("input: queue capacity must be positive")
	}
	return &Queue{events: make([]protocol.InputEvent, capacity)}
}

// Push appends an event, evicting the oldest one when the queue is
// full.
func (q *Queue) Push(event protocol.InputEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := (q.head + q.count) % len(q.events)
	q.events[index] = event
	if q.count == len(q.events) {
		q.head = (q.head + 1) % len(q.events)
		q.dropped++
	} else {
		q.count++
	}
}

// Drain removes and returns every queued event in arrival order.
// Returns nil when the queue is empty.
func (q *Queue) Drain() []protocol.InputEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	drained := make([]protocol.InputEvent, q.count)
	for i := 0; i < q.count; i++ {
		drained[i] = q.events[(q.head+i)%len(q.events)]
	}
	q.head = 0
	q.count = 0
	return drained
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap reports the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.events)
}

// Clear discards every queued event without counting them as drops.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = 0
	q.count = 0
}

// Dropped reports how many events have been evicted by overflow since
// creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
