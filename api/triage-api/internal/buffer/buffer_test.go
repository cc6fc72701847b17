// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_buffer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/woundsight/api/triage-api/internal/type"
)

func videoItem(tag byte) internal_type.FrameItem {
	return internal_type.FrameItem{
		Kind:      internal_type.FrameKindVideo,
		ArrivalMs: time.Now().UnixMilli(),
		Payload:   []byte{tag},
	}
}

// --- FrameBuffer Tests ---

func TestFrameBuffer_DropReplace(t *testing.T) {
	buf := NewFrameBuffer()

	// K puts with no intervening gets: exactly K-1 drops, get returns the K-th.
	const k = 5
	drops := 0
	for i := 0; i < k; i++ {
		if buf.Put(videoItem(byte(i))) {
			drops++
		}
	}
	assert.Equal(t, k-1, drops)
	assert.Equal(t, int64(k-1), buf.Dropped())

	item, err := buf.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(k-1), item.Payload[0])
	assert.Equal(t, 0, buf.Len())
}

func TestFrameBuffer_FirstPutNeverDrops(t *testing.T) {
	buf := NewFrameBuffer()
	assert.False(t, buf.Put(videoItem(1)))
	assert.Equal(t, int64(0), buf.Dropped())
}

func TestFrameBuffer_GetBlocksUntilPut(t *testing.T) {
	buf := NewFrameBuffer()

	got := make(chan internal_type.FrameItem, 1)
	go func() {
		item, err := buf.Get(context.Background())
		if err == nil {
			got <- item
		}
	}()

	// Give the consumer a moment to park before producing.
	time.Sleep(20 * time.Millisecond)
	buf.Put(videoItem(9))

	select {
	case item := <-got:
		assert.Equal(t, byte(9), item.Payload[0])
	case <-time.After(time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestFrameBuffer_GetCancellable(t *testing.T) {
	buf := NewFrameBuffer()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := buf.Get(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Get did not observe cancellation")
	}
}

// --- AudioBuffer Tests ---

func TestAudioBuffer_FIFOOrder(t *testing.T) {
	buf := NewAudioBuffer(8)
	for i := 0; i < 5; i++ {
		buf.Put(videoItem(byte(i)))
	}
	for i := 0; i < 5; i++ {
		item, err := buf.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, byte(i), item.Payload[0], "item %d out of order", i)
	}
	assert.Equal(t, int64(0), buf.Dropped())
}

func TestAudioBuffer_OverflowDropsOldest(t *testing.T) {
	buf := NewAudioBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Put(videoItem(byte(i)))
	}
	assert.Equal(t, int64(2), buf.Dropped())

	// Oldest two were evicted; survivors are 2, 3, 4 in order.
	for _, want := range []byte{2, 3, 4} {
		item, ok := buf.TryGet()
		require.True(t, ok)
		assert.Equal(t, want, item.Payload[0])
	}
	_, ok := buf.TryGet()
	assert.False(t, ok)
}

func TestAudioBuffer_DefaultCapacity(t *testing.T) {
	buf := NewAudioBuffer(0)
	for i := 0; i < DefaultAudioCapacity; i++ {
		assert.False(t, buf.Put(videoItem(0)), "put %d should not drop", i)
	}
	assert.True(t, buf.Put(videoItem(0)))
}

// --- Concurrency Tests ---

func TestBuffer_ProducerConsumerConcurrent(t *testing.T) {
	buf := NewAudioBuffer(64)
	const total = 500

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	consumed := make(chan int, 1)
	go func() {
		count := 0
		for {
			_, err := buf.Get(ctx)
			if err != nil {
				consumed <- count
				return
			}
			count++
		}
	}()

	for i := 0; i < total; i++ {
		buf.Put(videoItem(byte(i % 256)))
	}

	// Let the consumer drain, then cancel to collect its count.
	require.Eventually(t, func() bool { return buf.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	count := <-consumed
	assert.Equal(t, total, count+int(buf.Dropped()),
		fmt.Sprintf("consumed %d + dropped %d must equal produced %d", count, buf.Dropped(), total))
}
