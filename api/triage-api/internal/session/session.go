// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"sync"
	"time"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	"github.com/woundsight/pkg/utils"
)

// Summary is the final aggregate of one session. It is frozen by Close and
// returned unchanged on every subsequent call.
type Summary struct {
	SessionID       string
	StartTimeMs     int64
	EndTimeMs       int64
	DurationSec     float64
	FrameCount      int64
	AudioFrameCount int64
	AudioSeconds    float64
	TotalReceived   int64
	DroppedCount    int64
	DetectionCount  int64
}

// StreamClosed maps the summary onto its wire shape. Processed frames are the
// union of scored video frames and analyzed audio items, so received equals
// processed plus dropped across both buffers.
func (s Summary) StreamClosed() internal_events.StreamClosedSummary {
	return internal_events.StreamClosedSummary{
		TotalFramesReceived:  s.TotalReceived,
		TotalFramesProcessed: s.FrameCount + s.AudioFrameCount,
		TotalFramesDropped:   s.DroppedCount,
		TotalDetections:      s.DetectionCount,
		DurationSec:          s.DurationSec,
	}
}

// Session owns the per-stream counters and the activity clock. Producers and
// processors share one instance and mutate it only through the Recorder
// methods; everything is guarded by a single mutex because contention is a
// handful of increments per frame.
//
// The session is created when the offer is accepted, not when media arrives,
// so duration covers signaling and connection setup as well.
type Session struct {
	id      string
	startMs int64

	mu              sync.Mutex
	frameCount      int64
	audioFrameCount int64
	audioSeconds    float64
	totalReceived   int64
	droppedCount    int64
	detectionCount  int64
	lastActivityMs  int64
	closed          bool
	summary         Summary
}

// New creates a session with a fresh activity timestamp. An empty id gets a
// generated one.
func New(id string) *Session {
	if id == "" {
		id = utils.NewSessionID()
	}
	now := utils.NowMs()
	return &Session{
		id:             id,
		startMs:        now,
		lastActivityMs: now,
	}
}

// ID returns the immutable session identifier.
func (s *Session) ID() string {
	return s.id
}

// StartMs returns the creation timestamp in epoch milliseconds.
func (s *Session) StartMs() int64 {
	return s.startMs
}

// RecordReceived counts a frame handed to the pipeline by a producer.
func (s *Session) RecordReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.totalReceived++
}

// RecordFrame counts a processed video frame and refreshes activity.
func (s *Session) RecordFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frameCount++
	s.lastActivityMs = utils.NowMs()
}

// RecordDropped counts one frame evicted by a buffer overflow.
func (s *Session) RecordDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.droppedCount++
}

// RecordDetection counts n emitted detections and refreshes activity.
func (s *Session) RecordDetection(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.detectionCount += int64(n)
	s.lastActivityMs = utils.NowMs()
}

// RecordAudio counts an analyzed audio window and refreshes activity.
func (s *Session) RecordAudio(frames int, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.audioFrameCount += int64(frames)
	s.audioSeconds += seconds
	s.lastActivityMs = utils.NowMs()
}

// LastActivityMs returns the timestamp of the most recent processed frame,
// detection, or audio window, or the creation time when none happened yet.
func (s *Session) LastActivityMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityMs
}

// IsIdle reports whether strictly more than timeout elapsed since the last
// activity. Exactly timeout is not idle.
func (s *Session) IsIdle(nowMs int64, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return nowMs-s.lastActivityMs > timeout.Milliseconds()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close freezes the counters and returns the summary. It is idempotent:
// the first call computes the summary, later calls return the same value,
// and no recorder method mutates state afterwards.
func (s *Session) Close() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.summary
	}
	s.closed = true
	end := utils.NowMs()
	s.summary = Summary{
		SessionID:       s.id,
		StartTimeMs:     s.startMs,
		EndTimeMs:       end,
		DurationSec:     float64(end-s.startMs) / 1000.0,
		FrameCount:      s.frameCount,
		AudioFrameCount: s.audioFrameCount,
		AudioSeconds:    s.audioSeconds,
		TotalReceived:   s.totalReceived,
		DroppedCount:    s.droppedCount,
		DetectionCount:  s.detectionCount,
	}
	return s.summary
}

// Snapshot returns a point-in-time view of the counters without closing.
// EndTimeMs and DurationSec are zero while the session is open.
func (s *Session) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.summary
	}
	return Summary{
		SessionID:       s.id,
		StartTimeMs:     s.startMs,
		FrameCount:      s.frameCount,
		AudioFrameCount: s.audioFrameCount,
		AudioSeconds:    s.audioSeconds,
		TotalReceived:   s.totalReceived,
		DroppedCount:    s.droppedCount,
		DetectionCount:  s.detectionCount,
	}
}
