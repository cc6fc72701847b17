// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_emitter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
)

type recordedRequest struct {
	path   string
	apiKey string
	body   string
}

type captureServer struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (s *captureServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			path:   r.URL.Path,
			apiKey: r.Header.Get("X-API-Key"),
			body:   string(body),
		})
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *captureServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *captureServer) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

// --- Forwarder Tests ---

func TestForwarderPostsEventWithAPIKey(t *testing.T) {
	capture := &captureServer{}
	srv := httptest.NewServer(capture.handler())
	defer srv.Close()

	fwd := NewForwarder(newTestLogger(t), srv.URL+"/", "secret-key")
	defer fwd.Close()

	fwd.Forward("detection_event", []byte(`{"event_type":"detection_event"}`))

	require.Eventually(t, func() bool { return capture.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := capture.last()
	assert.Equal(t, "/events/detection_event", got.path)
	assert.Equal(t, "secret-key", got.apiKey)
	assert.JSONEq(t, `{"event_type":"detection_event"}`, got.body)
}

func TestForwarderSurvivesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	capture := &captureServer{}
	ok := httptest.NewServer(capture.handler())
	defer ok.Close()

	fwd := NewForwarder(newTestLogger(t), srv.URL, "")
	defer fwd.Close()

	// A rejected POST must not wedge the worker.
	fwd.Forward("error", []byte(`{}`))
	fwd.Forward("error", []byte(`{}`))
	time.Sleep(50 * time.Millisecond)

	fwd2 := NewForwarder(newTestLogger(t), ok.URL, "")
	defer fwd2.Close()
	fwd2.Forward("pong", []byte(`{}`))
	require.Eventually(t, func() bool { return capture.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestForwarderDropsAfterClose(t *testing.T) {
	capture := &captureServer{}
	srv := httptest.NewServer(capture.handler())
	defer srv.Close()

	fwd := NewForwarder(newTestLogger(t), srv.URL, "")
	fwd.Close()

	// Must be a silent no-op, not a panic or a block.
	fwd.Forward("pong", []byte(`{}`))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, capture.count())
}

func TestEmitterFansOutThroughForwarder(t *testing.T) {
	capture := &captureServer{}
	srv := httptest.NewServer(capture.handler())
	defer srv.Close()

	fwd := NewForwarder(newTestLogger(t), srv.URL, "k")
	defer fwd.Close()

	// The channel is closed: the client send is skipped but the forwarder
	// still gets the payload.
	ch := &fakeChannel{open: false}
	em := NewChannelEmitter(newTestLogger(t), ch, fwd)
	ok := em.Emit(context.Background(), internal_events.NewPongEvent(7))
	assert.False(t, ok)

	require.Eventually(t, func() bool { return capture.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "/events/pong", capture.last().path)
}
