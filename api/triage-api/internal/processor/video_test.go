// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_buffer "github.com/woundsight/api/triage-api/internal/buffer"
	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_preprocess "github.com/woundsight/api/triage-api/internal/preprocess"
	internal_session "github.com/woundsight/api/triage-api/internal/session"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-processor"),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

// captureEmitter records every emitted event for later assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []internal_events.Event
}

func (c *captureEmitter) Emit(ctx context.Context, event internal_events.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

func (c *captureEmitter) snapshot() []internal_events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]internal_events.Event(nil), c.events...)
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// stubRouter returns a canned answer, or an error, and counts calls.
type stubRouter struct {
	mu         sync.Mutex
	detections []internal_events.Detection
	err        error
	calls      int
}

func (r *stubRouter) Infer(ctx context.Context, img *internal_type.DecodedImage) ([]internal_events.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.detections, nil
}

func cutDetection() internal_events.Detection {
	return internal_events.Detection{
		ID: 0, WoundID: 0, Cls: "cut",
		BBox:       internal_events.BBox{X: 100, Y: 80, Width: 60, Height: 40},
		Confidence: 0.92, TypeConfidence: 0.92,
	}
}

// rawFrame builds a decodable raw-BGR frame item. The byte pattern keeps
// the Laplacian variance high so no blur warning fires.
func rawFrame(w, h int) internal_type.FrameItem {
	payload := make([]byte, w*h*3)
	for i := range payload {
		payload[i] = byte((i*37 + i/7) % 251)
	}
	return internal_type.FrameItem{
		Kind:      internal_type.FrameKindVideo,
		ArrivalMs: utils.NowMs(),
		Payload:   payload,
		Width:     w,
		Height:    h,
	}
}

// uniformFrame builds a flat gray frame whose blur score is zero.
func uniformFrame(w, h int) internal_type.FrameItem {
	payload := make([]byte, w*h*3)
	for i := range payload {
		payload[i] = 128
	}
	return internal_type.FrameItem{
		Kind:      internal_type.FrameKindVideo,
		ArrivalMs: utils.NowMs(),
		Payload:   payload,
		Width:     w,
		Height:    h,
	}
}

func newVideoFixture(t *testing.T, router internal_type.Router, maxFrameBytes int64) (*VideoProcessor, *internal_buffer.Buffer, *internal_session.Session, *captureEmitter) {
	t.Helper()
	logger := newTestLogger(t)
	buf := internal_buffer.NewFrameBuffer()
	sess := internal_session.New("video-test")
	emitter := &captureEmitter{}
	pre := internal_preprocess.New(logger, 1280, 720, 100.0)
	proc := NewVideoProcessor(logger, sess.ID(), sess, buf, pre, router, emitter, maxFrameBytes)
	return proc, buf, sess, emitter
}

// putAsProducer feeds the buffer the way a track reader does: every item
// counts as received, every eviction as dropped.
func putAsProducer(buf *internal_buffer.Buffer, sess *internal_session.Session, item internal_type.FrameItem) {
	sess.RecordReceived()
	if buf.Put(item) {
		sess.RecordDropped()
	}
}

// --- Video Processor Tests ---

func TestVideoProcessorEmitsDetectionEvent(t *testing.T) {
	router := &stubRouter{detections: []internal_events.Detection{cutDetection()}}
	proc, buf, sess, emitter := newVideoFixture(t, router, 0)

	putAsProducer(buf, sess, rawFrame(640, 480))
	proc.Start()
	defer proc.Stop(time.Second)

	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	event, ok := emitter.snapshot()[0].(internal_events.DetectionEvent)
	require.True(t, ok, "expected a detection event")
	assert.Equal(t, "video-test", event.SessionID)
	assert.Equal(t, int64(0), event.FrameIndex)
	assert.True(t, event.HasWounds)
	require.Len(t, event.Wounds, 1)
	assert.Equal(t, "cut", event.Wounds[0].Cls)
	assert.Equal(t, int64(0), event.Metadata.FramesDroppedSinceLast)
	assert.GreaterOrEqual(t, event.Metadata.ProcessingTimeMs, 0.0)

	snap := sess.Snapshot()
	assert.Equal(t, int64(1), snap.FrameCount)
	assert.Equal(t, int64(1), snap.DetectionCount)
}

func TestVideoProcessorNoWoundsEmitsEmptyList(t *testing.T) {
	router := &stubRouter{}
	proc, buf, sess, emitter := newVideoFixture(t, router, 0)

	putAsProducer(buf, sess, rawFrame(320, 240))
	proc.Start()
	defer proc.Stop(time.Second)

	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	event := emitter.snapshot()[0].(internal_events.DetectionEvent)
	assert.False(t, event.HasWounds)
	assert.NotNil(t, event.Wounds)
	assert.Empty(t, event.Wounds)
	assert.Equal(t, int64(0), sess.Snapshot().DetectionCount)
}

func TestVideoProcessorReportsDropsSinceLastEvent(t *testing.T) {
	router := &stubRouter{detections: []internal_events.Detection{cutDetection()}}
	proc, buf, sess, emitter := newVideoFixture(t, router, 0)

	// Five arrivals against a single-slot buffer with the consumer stalled:
	// four evictions, the newest frame survives.
	for i := 0; i < 5; i++ {
		putAsProducer(buf, sess, rawFrame(320, 240))
	}
	proc.Start()
	defer proc.Stop(time.Second)

	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	event := emitter.snapshot()[0].(internal_events.DetectionEvent)
	assert.Equal(t, int64(4), event.Metadata.FramesDroppedSinceLast)

	// The counter resets after each emission.
	putAsProducer(buf, sess, rawFrame(320, 240))
	require.Eventually(t, func() bool { return emitter.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	second := emitter.snapshot()[1].(internal_events.DetectionEvent)
	assert.Equal(t, int64(0), second.Metadata.FramesDroppedSinceLast)

	summary := sess.Close()
	assert.Equal(t, summary.TotalReceived, summary.FrameCount+summary.DroppedCount)
	assert.Equal(t, int64(6), summary.TotalReceived)
	assert.Equal(t, int64(4), summary.DroppedCount)
}

func TestVideoProcessorInvalidImageKeepsIndex(t *testing.T) {
	router := &stubRouter{detections: []internal_events.Detection{cutDetection()}}
	proc, buf, sess, emitter := newVideoFixture(t, router, 0)
	proc.Start()
	defer proc.Stop(time.Second)

	putAsProducer(buf, sess, internal_type.FrameItem{
		Kind:      internal_type.FrameKindVideo,
		ArrivalMs: utils.NowMs(),
		Payload:   []byte{0x01, 0x02, 0x03},
	})
	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	errEvent, ok := emitter.snapshot()[0].(internal_events.ErrorEvent)
	require.True(t, ok, "expected an error event")
	assert.Equal(t, internal_events.ErrCodeInvalidImageFormat, errEvent.ErrorCode)
	assert.Equal(t, internal_events.SeverityWarning, errEvent.Severity)
	require.NotNil(t, errEvent.FrameIndex)
	assert.Equal(t, int64(0), *errEvent.FrameIndex)

	// The failed frame does not consume an index: the next good frame is 0.
	putAsProducer(buf, sess, rawFrame(320, 240))
	require.Eventually(t, func() bool { return emitter.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	detection := emitter.snapshot()[1].(internal_events.DetectionEvent)
	assert.Equal(t, int64(0), detection.FrameIndex)
	assert.Equal(t, int64(1), sess.Snapshot().FrameCount)
}

func TestVideoProcessorRejectsOversizedFrame(t *testing.T) {
	router := &stubRouter{}
	proc, buf, sess, emitter := newVideoFixture(t, router, 1024)
	proc.Start()
	defer proc.Stop(time.Second)

	putAsProducer(buf, sess, rawFrame(64, 64)) // 12288 bytes, over the 1 KiB cap
	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	errEvent, ok := emitter.snapshot()[0].(internal_events.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, internal_events.ErrCodeFrameTooLarge, errEvent.ErrorCode)
	assert.Equal(t, internal_events.SeverityWarning, errEvent.Severity)
	assert.Zero(t, router.calls, "oversized frames never reach inference")

	// A small frame afterwards still flows.
	putAsProducer(buf, sess, internal_type.FrameItem{
		Kind: internal_type.FrameKindVideo, ArrivalMs: utils.NowMs(),
		Payload: rawFrame(16, 16).Payload, Width: 16, Height: 16,
	})
	require.Eventually(t, func() bool { return emitter.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	_, ok = emitter.snapshot()[1].(internal_events.DetectionEvent)
	assert.True(t, ok)
}

func TestVideoProcessorSurvivesInferenceFailure(t *testing.T) {
	router := &stubRouter{err: errors.New("backend exploded")}
	proc, buf, sess, emitter := newVideoFixture(t, router, 0)
	proc.Start()
	defer proc.Stop(time.Second)

	putAsProducer(buf, sess, rawFrame(320, 240))
	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	errEvent, ok := emitter.snapshot()[0].(internal_events.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, internal_events.ErrCodeInferenceFailed, errEvent.ErrorCode)
	assert.Equal(t, internal_events.SeverityWarning, errEvent.Severity)
	assert.Equal(t, int64(0), sess.Snapshot().FrameCount)

	// Recovery: the router comes back and the stream continues.
	router.mu.Lock()
	router.err = nil
	router.mu.Unlock()
	putAsProducer(buf, sess, rawFrame(320, 240))
	require.Eventually(t, func() bool { return emitter.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	_, ok = emitter.snapshot()[1].(internal_events.DetectionEvent)
	assert.True(t, ok)
}

func TestVideoProcessorFlagsBlurryFrames(t *testing.T) {
	router := &stubRouter{}
	proc, buf, sess, emitter := newVideoFixture(t, router, 0)
	proc.Start()
	defer proc.Stop(time.Second)

	putAsProducer(buf, sess, uniformFrame(320, 240))
	require.Eventually(t, func() bool { return emitter.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	event := emitter.snapshot()[0].(internal_events.DetectionEvent)
	assert.True(t, strings.HasPrefix(event.Metadata.QualityWarning, "blurry:score="),
		"got %q", event.Metadata.QualityWarning)
}

func TestVideoProcessorStopIsBoundedAndIdempotent(t *testing.T) {
	router := &stubRouter{}
	proc, _, _, _ := newVideoFixture(t, router, 0)

	// Stopping before starting is a no-op.
	require.NoError(t, proc.Stop(100*time.Millisecond))

	proc.Start()
	proc.Start() // second start is a no-op

	start := time.Now()
	require.NoError(t, proc.Stop(2*time.Second))
	assert.Less(t, time.Since(start), time.Second)
	require.NoError(t, proc.Stop(100*time.Millisecond))
}
