// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"sync"
	"time"
)

// FrameSampler rate-limits decoded video frames to a processing ceiling.
// Frames it rejects never existed as far as the pipeline is concerned: they
// are not received, not buffered, not counted. The first frame always
// passes.
type FrameSampler struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewFrameSampler gates frames to at most fps per second. A non-positive
// fps disables sampling.
func NewFrameSampler(fps int) *FrameSampler {
	s := &FrameSampler{}
	if fps > 0 {
		s.interval = time.Second / time.Duration(fps)
	}
	return s
}

// ShouldProcess reports whether a frame arriving at now passes the gate,
// and advances the gate when it does.
func (s *FrameSampler) ShouldProcess(now time.Time) bool {
	if s.interval <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.IsZero() || now.Sub(s.last) >= s.interval {
		s.last = now
		return true
	}
	return false
}
