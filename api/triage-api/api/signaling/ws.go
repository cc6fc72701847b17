// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package triage_signaling_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	internal_buffer "github.com/woundsight/api/triage-api/internal/buffer"
	channel_webrtc "github.com/woundsight/api/triage-api/internal/channel/webrtc"
	internal_emitter "github.com/woundsight/api/triage-api/internal/emitter"
	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	internal_processor "github.com/woundsight/api/triage-api/internal/processor"
	internal_session "github.com/woundsight/api/triage-api/internal/session"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

var analyzeUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Analyze handles the WebSocket ingest fallback for clients that cannot do
// WebRTC. Binary messages are encoded frames (JPEG/PNG) fed through the same
// buffer and processor pipeline as video tracks; events come back as JSON
// text messages on the socket.
//
// @Router /ws/analyze [get]
// @Summary Stream frames for analysis over WebSocket
// @Success 101 "Switching Protocols"
// @Failure 503 {object} gin.H
func (api *TriageApi) Analyze(c *gin.Context) {
	// Capacity check before the upgrade so rejected clients get a clean 503.
	if api.cfg.MaxConcurrentSessions > 0 && api.deps.Registry.Len() >= api.cfg.MaxConcurrentSessions {
		internal_metrics.SessionsRejected.Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session capacity reached"})
		return
	}

	conn, err := analyzeUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	stream := newWSStream(api.logger, api.cfg, api.deps, conn)
	if !api.deps.Registry.Admit(stream, api.cfg.MaxConcurrentSessions) {
		internal_metrics.SessionsRejected.Inc()
		stream.channel.shutdown(websocket.ClosePolicyViolation, "session capacity reached")
		return
	}

	stream.run()
}

// wsChannel adapts one gorilla connection to the emitter's Channel contract.
// The mutex serializes writes; gorilla allows a single writer.
type wsChannel struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (ch *wsChannel) IsOpen() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return !ch.closed
}

func (ch *wsChannel) SendText(msg string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return errors.New("websocket closed")
	}
	return ch.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// shutdown sends a best-effort close frame and closes the socket. Idempotent;
// closing also unblocks a reader parked in ReadMessage.
func (ch *wsChannel) shutdown(code int, text string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	deadline := time.Now().Add(time.Second)
	_ = ch.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	_ = ch.conn.Close()
}

// wsStream owns one socket session: the read loop, the frame buffer and its
// processor, and the session counters. It satisfies the registry's Closeable
// so shutdown and idle reaping treat it like any WebRTC session.
type wsStream struct {
	logger  commons.Logger
	cfg     *config.AppConfig
	deps    channel_webrtc.Dependencies
	channel *wsChannel
	emitter *internal_emitter.ChannelEmitter
	session *internal_session.Session
	buffer  *internal_buffer.Buffer
	proc    *internal_processor.VideoProcessor

	mu      sync.Mutex
	reason  string
	summary internal_session.Summary

	kicked       sync.Once
	finalizeOnce sync.Once
	done         chan struct{}
}

func newWSStream(logger commons.Logger, cfg *config.AppConfig, deps channel_webrtc.Dependencies, conn *websocket.Conn) *wsStream {
	// The default close handler echoes the close frame immediately, and
	// gorilla refuses data writes after a close is sent. Suppress the echo
	// so the stream_closed goodbye goes out first; shutdown completes the
	// close handshake right after.
	conn.SetCloseHandler(func(int, string) error { return nil })

	session := internal_session.New("")
	channel := &wsChannel{conn: conn}
	emitter := internal_emitter.NewChannelEmitter(logger, channel, deps.Forwarder)
	buffer := internal_buffer.NewFrameBuffer()

	return &wsStream{
		logger:  logger,
		cfg:     cfg,
		deps:    deps,
		channel: channel,
		emitter: emitter,
		session: session,
		buffer:  buffer,
		proc: internal_processor.NewVideoProcessor(
			logger, session.ID(), session, buffer,
			deps.Preprocessor, deps.Router, emitter, cfg.MaxFrameSizeBytes),
		done: make(chan struct{}),
	}
}

func (w *wsStream) SessionID() string {
	return w.session.ID()
}

// CloseWithReason kicks the socket so the read loop exits, then waits for
// the handler goroutine to finish teardown.
func (w *wsStream) CloseWithReason(reason string) {
	w.kick(reason)
	<-w.done
}

// kick records the close reason, freezes the session while the socket can
// still carry the goodbye, then closes the socket to unblock the reader.
func (w *wsStream) kick(reason string) {
	w.kicked.Do(func() {
		w.mu.Lock()
		w.reason = reason
		w.mu.Unlock()

		w.finalize()
		w.channel.shutdown(closeCode(reason), reason)
	})
}

// run pumps the socket until the client leaves or the session is kicked.
// It blocks the handler goroutine; teardown always runs on it.
func (w *wsStream) run() {
	defer w.teardown()

	w.proc.Start()
	w.emitter.Emit(context.Background(), internal_events.NewSessionStartedEvent(
		w.session.ID(), utils.NowMs(), internal_events.SessionStartedConfig{
			MaxResolution:       w.cfg.MaxResolution(),
			ConfidenceThreshold: w.cfg.ConfidenceThreshold,
			IdleTimeoutSec:      w.cfg.IdleTimeoutSec,
			BBoxFormat:          internal_events.BBoxFormat,
		}))
	go w.watchIdle()

	for {
		msgType, data, err := w.channel.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Infow("Client closed analysis socket", "session", w.session.ID())
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			w.onFrame(data)
		case websocket.TextMessage:
			w.onControl(data)
		}
	}
}

// onFrame feeds one encoded frame into the pipeline. ReadMessage hands each
// message an owned buffer, so no copy is needed.
func (w *wsStream) onFrame(data []byte) {
	w.session.RecordReceived()
	item := internal_type.FrameItem{
		Kind:      internal_type.FrameKindVideo,
		ArrivalMs: utils.NowMs(),
		Payload:   data,
	}
	if w.buffer.Put(item) {
		w.session.RecordDropped()
		internal_metrics.FramesDropped.WithLabelValues("video").Inc()
	}
}

func (w *wsStream) onControl(data []byte) {
	var ping struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &ping); err != nil {
		w.logger.Debugw("Ignoring malformed control message", "error", err, "session", w.session.ID())
		return
	}
	if ping.Type == "ping" {
		w.emitter.Emit(context.Background(), internal_events.NewPongEvent(utils.NowMs()))
	}
}

func (w *wsStream) watchIdle() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if w.session.IsIdle(utils.NowMs(), w.cfg.IdleTimeout()) {
				w.logger.Infow("Session idle, closing socket", "session", w.session.ID(), "timeoutSec", w.cfg.IdleTimeoutSec)
				w.kick(internal_session.ReasonIdleTimeout)
				return
			}
		}
	}
}

// finalize stops the consumer, freezes the counters, and emits the goodbye.
// Exactly one caller wins; the kick path runs it before closing the socket so
// the client still receives stream_closed.
func (w *wsStream) finalize() internal_session.Summary {
	w.finalizeOnce.Do(func() {
		if err := w.proc.Stop(internal_processor.DefaultStopTimeout); err != nil {
			w.logger.Warnw("Frame processor stop", "error", err, "session", w.session.ID())
		}
		summary := w.session.Close()
		w.mu.Lock()
		w.summary = summary
		w.mu.Unlock()

		w.emitter.Emit(context.Background(), internal_events.NewStreamClosedEvent(
			w.session.ID(), utils.NowMs(), summary.StreamClosed()))
	})
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

func (w *wsStream) teardown() {
	summary := w.finalize()

	w.mu.Lock()
	reason := w.reason
	w.mu.Unlock()
	if reason == "" {
		reason = internal_session.ReasonClientClosed
	}

	w.channel.shutdown(closeCode(reason), reason)
	w.deps.Registry.Remove(w.session.ID())
	internal_metrics.SessionsTotal.WithLabelValues(reason).Inc()

	w.logger.Infow("Analysis socket closed",
		"session", w.session.ID(),
		"reason", reason,
		"durationSec", summary.DurationSec,
		"framesProcessed", summary.FrameCount,
		"framesDropped", summary.DroppedCount,
		"detections", summary.DetectionCount,
	)
	close(w.done)
}

// closeCode maps terminal reasons onto WebSocket close codes.
func closeCode(reason string) int {
	switch reason {
	case internal_session.ReasonShutdown:
		return websocket.CloseGoingAway
	case internal_session.ReasonCapacity:
		return websocket.ClosePolicyViolation
	case internal_session.ReasonInternalError:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}
