// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"sync"

	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	"github.com/woundsight/pkg/commons"
)

// Close reasons recorded on session teardown. They label the sessions_total
// metric and the closing log line.
const (
	ReasonNormal           = "normal"
	ReasonIdleTimeout      = "idle_timeout"
	ReasonTracksEnded      = "tracks_ended"
	ReasonConnectionFailed = "connection_failed"
	ReasonClientClosed     = "client_closed"
	ReasonCapacity         = "capacity"
	ReasonInternalError    = "internal_error"
	ReasonShutdown         = "shutdown"
)

// Closeable is the registry's view of a live stream: enough to identify it
// and to tear it down during shutdown. Both the WebRTC streamer and the
// websocket ingest implement it.
type Closeable interface {
	// SessionID returns the stream's session identifier.
	SessionID() string

	// CloseWithReason tears the stream down. Implementations are idempotent;
	// the registry may race a stream closing itself.
	CloseWithReason(reason string)
}

// Registry tracks every live stream in the process. It gates admission
// against the concurrency cap and lets shutdown close whatever is still
// running. Streams remove themselves when they finish closing, so a removal
// for an unknown id is a no-op rather than an error.
type Registry interface {
	// Admit registers the stream if doing so keeps the live count at or
	// under limit. A limit of zero or less means unbounded. Returns false,
	// without registering, when the cap is already reached.
	Admit(c Closeable, limit int) bool

	// Remove forgets the stream. Safe to call for ids never admitted.
	Remove(sessionID string)

	// Len returns the number of live streams.
	Len() int

	// CloseAll closes every live stream with the given reason and blocks
	// until each CloseWithReason returns.
	CloseAll(reason string)
}

type memoryRegistry struct {
	logger  commons.Logger
	mu      sync.Mutex
	streams map[string]Closeable
}

// NewRegistry creates an in-memory stream registry.
func NewRegistry(logger commons.Logger) Registry {
	return &memoryRegistry{
		logger:  logger,
		streams: make(map[string]Closeable),
	}
}

func (r *memoryRegistry) Admit(c Closeable, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > 0 && len(r.streams) >= limit {
		return false
	}
	r.streams[c.SessionID()] = c
	internal_metrics.SessionsActive.Set(float64(len(r.streams)))
	r.logger.Debugw("session registered", "session_id", c.SessionID(), "active", len(r.streams))
	return true
}

func (r *memoryRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[sessionID]; !ok {
		return
	}
	delete(r.streams, sessionID)
	internal_metrics.SessionsActive.Set(float64(len(r.streams)))
	r.logger.Debugw("session removed", "session_id", sessionID, "active", len(r.streams))
}

func (r *memoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// CloseAll snapshots under the lock and closes outside it, because
// CloseWithReason re-enters the registry via Remove.
func (r *memoryRegistry) CloseAll(reason string) {
	r.mu.Lock()
	snapshot := make([]Closeable, 0, len(r.streams))
	for _, c := range r.streams {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	for _, c := range snapshot {
		c.CloseWithReason(reason)
	}
	if len(snapshot) > 0 {
		r.logger.Infow("closed all sessions", "count", len(snapshot), "reason", reason)
	}
}
