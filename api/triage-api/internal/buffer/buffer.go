// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_buffer

import (
	"context"
	"sync"

	internal_type "github.com/woundsight/api/triage-api/internal/type"
)

// DefaultAudioCapacity is the depth of the audio buffer; analysis windows
// consume items in batches so the buffer is deeper than the video one.
const DefaultAudioCapacity = 1024

// Buffer is a bounded FIFO with drop-oldest overflow. Put never blocks the
// producer: when the buffer is full the oldest resident item is discarded
// and counted, then the new item is inserted. Get suspends the consumer
// until an item is available or the context is cancelled.
//
// One producer and one consumer per instance; internal locking lets them
// run on different goroutines.
type Buffer struct {
	mu       sync.Mutex
	items    []internal_type.FrameItem
	capacity int
	dropped  int64

	// notify wakes a parked consumer; capacity 1 so producers never block on it.
	notify chan struct{}
}

// NewFrameBuffer returns the single-slot video buffer: the consumer always
// sees the newest frame or nothing.
func NewFrameBuffer() *Buffer {
	return newBuffer(1)
}

// NewAudioBuffer returns a deeper buffer for audio items. Non-positive
// capacities fall back to the default.
func NewAudioBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultAudioCapacity
	}
	return newBuffer(capacity)
}

func newBuffer(capacity int) *Buffer {
	return &Buffer{
		items:    make([]internal_type.FrameItem, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Put inserts an item, evicting the oldest resident when full. It reports
// whether an eviction happened. It never blocks and never fails.
func (b *Buffer) Put(item internal_type.FrameItem) bool {
	b.mu.Lock()
	dropped := false
	if len(b.items) >= b.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
		b.dropped++
		dropped = true
	}
	b.items = append(b.items, item)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Get returns the oldest buffered item, blocking until one is available or
// ctx is cancelled.
func (b *Buffer) Get(ctx context.Context) (internal_type.FrameItem, error) {
	for {
		if item, ok := b.TryGet(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return internal_type.FrameItem{}, ctx.Err()
		case <-b.notify:
		}
	}
}

// TryGet returns the oldest buffered item without blocking. Shutdown paths
// use it to drain a partial window.
func (b *Buffer) TryGet() (internal_type.FrameItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return internal_type.FrameItem{}, false
	}
	item := b.items[0]
	copy(b.items, b.items[1:])
	b.items = b.items[:len(b.items)-1]
	return item, true
}

// Dropped returns the monotonic count of items evicted by overflow.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len returns the number of items currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
