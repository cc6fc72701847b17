// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	internal_buffer "github.com/woundsight/api/triage-api/internal/buffer"
	webrtc_internal "github.com/woundsight/api/triage-api/internal/channel/webrtc/internal"
	internal_emitter "github.com/woundsight/api/triage-api/internal/emitter"
	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_media "github.com/woundsight/api/triage-api/internal/media"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	internal_preprocess "github.com/woundsight/api/triage-api/internal/preprocess"
	internal_processor "github.com/woundsight/api/triage-api/internal/processor"
	internal_session "github.com/woundsight/api/triage-api/internal/session"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	internal_worker "github.com/woundsight/api/triage-api/internal/worker"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

// ============================================================================
// Streamer - WebRTC media plane with HTTP offer/answer signaling
// ============================================================================

// Dependencies carries the process-wide components every streamer shares.
// Preprocessor, Router, Analyzer and Pool are safe for concurrent sessions;
// Forwarder may be nil when event forwarding is disabled.
type Dependencies struct {
	Config       *config.AppConfig
	Preprocessor *internal_preprocess.Preprocessor
	Router       internal_type.Router
	Analyzer     internal_processor.WindowAnalyzer
	Pool         *internal_worker.Pool
	Forwarder    *internal_emitter.Forwarder
	Registry     internal_session.Registry
}

// dataChannel adapts the pion data channel to the emitter's Channel contract.
// It is attached late: the channel only exists once the browser's offer has
// been negotiated, while the emitter is wired at construction time.
type dataChannel struct {
	mu sync.Mutex
	dc *pionwebrtc.DataChannel
}

func (d *dataChannel) attach(dc *pionwebrtc.DataChannel) {
	d.mu.Lock()
	d.dc = dc
	d.mu.Unlock()
}

func (d *dataChannel) get() *pionwebrtc.DataChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dc
}

func (d *dataChannel) IsOpen() bool {
	dc := d.get()
	return dc != nil && dc.ReadyState() == pionwebrtc.DataChannelStateOpen
}

func (d *dataChannel) SendText(msg string) error {
	dc := d.get()
	if dc == nil {
		return errors.New("data channel not attached")
	}
	return dc.SendText(msg)
}

// Streamer owns one browser session: the peer connection, the per-track
// reader goroutines, the decode pipelines feeding the frame and audio
// buffers, and the processors consuming them. Media flows over WebRTC
// tracks; results flow back over the "detections" data channel.
type Streamer struct {
	mu sync.Mutex

	// Core components
	logger commons.Logger
	cfg    *config.AppConfig
	ice    *webrtc_internal.Config

	// Lifecycle. The streamer owns its context (derived from Background) so
	// teardown is never short-circuited by the signaling request ending.
	ctx       context.Context
	cancel    context.CancelFunc
	lifecycle webrtc_internal.Lifecycle
	closeOnce sync.Once

	// Session state
	session  *internal_session.Session
	registry internal_session.Registry

	// Pion WebRTC
	pc      *pionwebrtc.PeerConnection
	channel *dataChannel
	emitter *internal_emitter.ChannelEmitter

	// Media pipelines
	videoBuffer    *internal_buffer.Buffer
	audioBuffer    *internal_buffer.Buffer
	sampler        *internal_media.FrameSampler
	videoProcessor *internal_processor.VideoProcessor
	audioProcessor *internal_processor.AudioProcessor

	// Track accounting: teardown waits for reader goroutines, and the last
	// track to end closes the session. Guarded by mu.
	trackWg    sync.WaitGroup
	tracksSeen int
	tracksLive int

	startedOnce sync.Once // session_started goes out once per session
}

// NewStreamer builds a session around one browser's offer. The peer
// connection is ready for HandleOffer when this returns; media pipelines
// start lazily as tracks arrive.
func NewStreamer(logger commons.Logger, deps Dependencies) (*Streamer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := deps.Config
	session := internal_session.New("")
	channel := &dataChannel{}
	emitter := internal_emitter.NewChannelEmitter(logger, channel, deps.Forwarder)

	videoBuffer := internal_buffer.NewFrameBuffer()
	audioBuffer := internal_buffer.NewAudioBuffer(0)

	s := &Streamer{
		logger:      logger,
		cfg:         cfg,
		ice:         webrtc_internal.ConfigFromServers(cfg.StunServers),
		ctx:         ctx,
		cancel:      cancel,
		session:     session,
		registry:    deps.Registry,
		channel:     channel,
		emitter:     emitter,
		videoBuffer: videoBuffer,
		audioBuffer: audioBuffer,
		sampler:     internal_media.NewFrameSampler(cfg.VideoSampleFPS),
		videoProcessor: internal_processor.NewVideoProcessor(
			logger, session.ID(), session, videoBuffer,
			deps.Preprocessor, deps.Router, emitter, cfg.MaxFrameSizeBytes),
		audioProcessor: internal_processor.NewAudioProcessor(
			logger, session.ID(), session, audioBuffer,
			deps.Analyzer, deps.Pool, emitter, cfg.AudioBatchSize, cfg.AudioWindowSeconds),
	}

	if err := s.createPeerConnection(); err != nil {
		cancel()
		return nil, err
	}

	go s.watchIdle()
	return s, nil
}

// SessionID identifies this streamer in the registry and in every event.
func (s *Streamer) SessionID() string {
	return s.session.ID()
}

// State reports the lifecycle state.
func (s *Streamer) State() webrtc_internal.State {
	return s.lifecycle.State()
}

// ============================================================================
// Peer Connection Setup
// ============================================================================

func (s *Streamer) createPeerConnection() error {
	mediaEngine := &pionwebrtc.MediaEngine{}

	audioCodecs := []pionwebrtc.RTPCodecParameters{
		{
			RTPCodecCapability: pionwebrtc.RTPCodecCapability{
				MimeType:    pionwebrtc.MimeTypeOpus,
				ClockRate:   webrtc_internal.OpusSampleRate,
				Channels:    webrtc_internal.OpusChannels,
				SDPFmtpLine: webrtc_internal.OpusSDPFmtpLine,
			},
			PayloadType: webrtc_internal.OpusPayloadType,
		},
		{
			RTPCodecCapability: pionwebrtc.RTPCodecCapability{
				MimeType:  pionwebrtc.MimeTypePCMU,
				ClockRate: webrtc_internal.G711SampleRate,
				Channels:  1,
			},
			PayloadType: webrtc_internal.PCMUPayloadType,
		},
		{
			RTPCodecCapability: pionwebrtc.RTPCodecCapability{
				MimeType:  pionwebrtc.MimeTypePCMA,
				ClockRate: webrtc_internal.G711SampleRate,
				Channels:  1,
			},
			PayloadType: webrtc_internal.PCMAPayloadType,
		},
	}
	for _, codec := range audioCodecs {
		if err := mediaEngine.RegisterCodec(codec, pionwebrtc.RTPCodecTypeAudio); err != nil {
			return fmt.Errorf("failed to register audio codec %s: %w", codec.MimeType, err)
		}
	}

	videoCodecs := []pionwebrtc.RTPCodecParameters{
		{
			RTPCodecCapability: pionwebrtc.RTPCodecCapability{
				MimeType:  pionwebrtc.MimeTypeVP8,
				ClockRate: webrtc_internal.VideoClockRate,
			},
			PayloadType: webrtc_internal.VP8PayloadType,
		},
		{
			RTPCodecCapability: pionwebrtc.RTPCodecCapability{
				MimeType:    pionwebrtc.MimeTypeH264,
				ClockRate:   webrtc_internal.VideoClockRate,
				SDPFmtpLine: webrtc_internal.H264SDPFmtpLine,
			},
			PayloadType: webrtc_internal.H264PayloadType,
		},
	}
	for _, codec := range videoCodecs {
		if err := mediaEngine.RegisterCodec(codec, pionwebrtc.RTPCodecTypeVideo); err != nil {
			return fmt.Errorf("failed to register video codec %s: %w", codec.MimeType, err)
		}
	}

	// Interceptors (default includes NACK for packet recovery)
	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]pionwebrtc.ICEServer, len(s.ice.ICEServers))
	for i, srv := range s.ice.ICEServers {
		iceServers[i] = pionwebrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}

	pcConfig := pionwebrtc.Configuration{ICEServers: iceServers}
	if s.ice.ICETransportPolicy == "relay" {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	s.setupPeerEventHandlers()
	return nil
}

func (s *Streamer) setupPeerEventHandlers() {
	s.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		s.logger.Infow("WebRTC connection state changed", "state", state, "session", s.session.ID())

		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			s.lifecycle.Activate()

		case pionwebrtc.PeerConnectionStateFailed:
			// ICE gave up; nothing will flow again on this peer.
			s.logger.Errorw("WebRTC connection failed, closing session", "session", s.session.ID())
			go s.CloseWithReason(internal_session.ReasonConnectionFailed)

		case pionwebrtc.PeerConnectionStateClosed:
			// The browser went away without a goodbye. Teardown also lands
			// here when it closes the peer connection itself; the lifecycle
			// gate keeps that from spawning a redundant close.
			if s.lifecycle.State() < webrtc_internal.StateClosing {
				go s.CloseWithReason(internal_session.ReasonClientClosed)
			}

		case pionwebrtc.PeerConnectionStateDisconnected:
			// Possibly transient, ICE may still recover. Keep the
			// session; the idle watchdog reaps it if media never resumes.
			s.logger.Warnw("WebRTC peer disconnected, waiting for recovery", "session", s.session.ID())
		}
	})

	s.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		switch track.Kind() {
		case pionwebrtc.RTPCodecTypeVideo:
			s.handleVideoTrack(track)
		case pionwebrtc.RTPCodecTypeAudio:
			s.handleAudioTrack(track)
		}
	})

	s.pc.OnDataChannel(func(dc *pionwebrtc.DataChannel) {
		s.handleDataChannel(dc)
	})
}

// ============================================================================
// Signaling
// ============================================================================

// HandleOffer completes the SDP exchange: apply the browser's offer, create
// an answer, and wait for ICE gathering so the answer carries every candidate
// (non-trickle). The bounded wait keeps slow STUN from stalling signaling;
// answering with partial candidates still connects on most networks.
func (s *Streamer) HandleOffer(ctx context.Context, offerSDP string) (string, error) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return "", errors.New("peer connection closed")
	}

	offer := pionwebrtc.SessionDescription{Type: pionwebrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	// The promise must exist before SetLocalDescription starts gathering.
	gatherComplete := pionwebrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(webrtc_internal.GatherTimeout):
		s.logger.Warnw("ICE gathering timed out, answering with partial candidates", "session", s.session.ID())
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description unavailable")
	}
	return local.SDP, nil
}

// ============================================================================
// Track Readers: WebRTC track -> decode -> buffer
// ============================================================================

func (s *Streamer) handleVideoTrack(track *pionwebrtc.TrackRemote) {
	mimeType := track.Codec().MimeType
	s.logger.Infow("Remote video track received", "codec", mimeType, "session", s.session.ID())

	decoder, err := internal_media.NewVideoDecoder(s.logger, mimeType, s.cfg.MaxFrameSizeBytes, s.onVideoFrame)
	if err != nil {
		// The session stays up for audio; the client learns video is dead.
		s.logger.Errorw("Failed to start video decoder", "codec", mimeType, "error", err, "session", s.session.ID())
		s.emitter.Emit(s.ctx, internal_events.NewErrorEvent(
			s.session.ID(), utils.NowMs(), internal_events.ErrCodeInternal,
			"video decoding unavailable", internal_events.SeverityWarning))
		return
	}

	s.videoProcessor.Start()
	if !s.registerTrack() {
		decoder.Close()
		return
	}
	go s.readVideoTrack(track, decoder)
}

func (s *Streamer) handleAudioTrack(track *pionwebrtc.TrackRemote) {
	mimeType := track.Codec().MimeType
	s.logger.Infow("Remote audio track received", "codec", mimeType, "session", s.session.ID())

	decoder, err := internal_media.NewAudioDecoder(mimeType)
	if err != nil {
		s.logger.Errorw("Failed to create audio decoder", "codec", mimeType, "error", err, "session", s.session.ID())
		s.emitter.Emit(s.ctx, internal_events.NewErrorEvent(
			s.session.ID(), utils.NowMs(), internal_events.ErrCodeInternal,
			"audio decoding unavailable", internal_events.SeverityWarning))
		return
	}

	s.audioProcessor.Start()
	if !s.registerTrack() {
		return
	}
	go s.readAudioTrack(track, decoder)
}

// registerTrack accounts for a new reader goroutine. It reports false when
// the session is already closing, in which case no reader may start.
func (s *Streamer) registerTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle.State() >= webrtc_internal.StateClosing {
		return false
	}
	s.trackWg.Add(1)
	s.tracksSeen++
	s.tracksLive++
	return true
}

// trackEnded runs when a reader goroutine exits. The last reader to leave
// closes the whole session, so browsers that stop their tracks without a
// goodbye still get a stream_closed summary.
func (s *Streamer) trackEnded() {
	s.mu.Lock()
	s.tracksLive--
	last := s.tracksLive == 0 && s.tracksSeen > 0
	s.mu.Unlock()
	s.trackWg.Done()

	if last && s.lifecycle.State() < webrtc_internal.StateClosing {
		go s.CloseWithReason(internal_session.ReasonTracksEnded)
	}
}

// readVideoTrack pumps RTP into the transcoder; decoded frames come back
// through onVideoFrame on the transcoder's scan goroutine.
func (s *Streamer) readVideoTrack(track *pionwebrtc.TrackRemote, decoder *internal_media.VideoDecoder) {
	defer s.trackEnded()
	defer decoder.Close()

	buf := make([]byte, webrtc_internal.RTPBufferSize)
	consecutiveErrors := 0

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= webrtc_internal.MaxConsecutiveErrors {
				s.logger.Errorw("Too many consecutive video read errors, stopping reader", "lastError", err, "session", s.session.ID())
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("Failed to unmarshal RTP packet", "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		if err := decoder.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			s.logger.Debugw("Video depacketize failed", "error", err)
		}
	}
}

// readAudioTrack decodes RTP payloads to PCM inline; G.711 and Opus decode
// are cheap enough to run on the reader goroutine.
func (s *Streamer) readAudioTrack(track *pionwebrtc.TrackRemote, decoder internal_media.AudioDecoder) {
	defer s.trackEnded()

	buf := make([]byte, webrtc_internal.RTPBufferSize)
	consecutiveErrors := 0

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= webrtc_internal.MaxConsecutiveErrors {
				s.logger.Errorw("Too many consecutive audio read errors, stopping reader", "lastError", err, "session", s.session.ID())
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("Failed to unmarshal RTP packet", "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := decoder.Decode(pkt.Payload)
		if err != nil {
			s.logger.Debugw("Audio decode failed", "error", err, "payloadSize", len(pkt.Payload))
			continue
		}
		if len(pcm) == 0 {
			continue
		}
		s.onAudioPCM(pcm, decoder.SampleRate())
	}
}

// onVideoFrame receives one decoded JPEG from the transcoder. The sampler
// gates before any accounting, so frames skipped by rate limiting never
// count as received.
func (s *Streamer) onVideoFrame(frame []byte) {
	if !s.sampler.ShouldProcess(time.Now()) {
		return
	}
	s.session.RecordReceived()
	item := internal_type.FrameItem{
		Kind:      internal_type.FrameKindVideo,
		ArrivalMs: utils.NowMs(),
		Payload:   frame,
	}
	if s.videoBuffer.Put(item) {
		s.session.RecordDropped()
		internal_metrics.FramesDropped.WithLabelValues("video").Inc()
	}
}

func (s *Streamer) onAudioPCM(pcm []int16, sampleRate int) {
	s.session.RecordReceived()
	item := internal_type.FrameItem{
		Kind:       internal_type.FrameKindAudio,
		ArrivalMs:  utils.NowMs(),
		PCM:        pcm,
		SampleRate: sampleRate,
	}
	if s.audioBuffer.Put(item) {
		s.session.RecordDropped()
		internal_metrics.FramesDropped.WithLabelValues("audio").Inc()
	}
}

// ============================================================================
// Data Channel
// ============================================================================

func (s *Streamer) handleDataChannel(dc *pionwebrtc.DataChannel) {
	if dc.Label() != internal_events.ChannelLabel {
		s.logger.Warnw("Ignoring unexpected data channel", "label", dc.Label(), "session", s.session.ID())
		return
	}
	s.channel.attach(dc)

	dc.OnOpen(func() {
		if s.lifecycle.State() >= webrtc_internal.StateClosing {
			return
		}
		s.sendSessionStarted()
	})

	dc.OnMessage(func(msg pionwebrtc.DataChannelMessage) {
		s.handleClientMessage(msg)
	})
}

// sendSessionStarted announces the effective processing parameters. Sent
// once per session even if the data channel reopens.
func (s *Streamer) sendSessionStarted() {
	s.startedOnce.Do(func() {
		event := internal_events.NewSessionStartedEvent(s.session.ID(), utils.NowMs(),
			internal_events.SessionStartedConfig{
				MaxResolution:       s.cfg.MaxResolution(),
				ConfidenceThreshold: s.cfg.ConfidenceThreshold,
				IdleTimeoutSec:      s.cfg.IdleTimeoutSec,
				BBoxFormat:          internal_events.BBoxFormat,
			})
		s.emitter.Emit(s.ctx, event)
	})
}

// handleClientMessage answers data-channel pings. Pings probe channel
// liveness only; they do not refresh media activity.
func (s *Streamer) handleClientMessage(msg pionwebrtc.DataChannelMessage) {
	if !msg.IsString {
		return
	}
	var ping struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Data, &ping); err != nil {
		s.logger.Debugw("Ignoring malformed data channel message", "error", err)
		return
	}
	if ping.Type == "ping" {
		s.emitter.Emit(s.ctx, internal_events.NewPongEvent(utils.NowMs()))
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// watchIdle reaps the session when no media activity lands inside the
// configured idle window. The watchdog exits with the streamer context.
func (s *Streamer) watchIdle() {
	ticker := time.NewTicker(webrtc_internal.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.session.IsIdle(utils.NowMs(), s.cfg.IdleTimeout()) {
				s.logger.Infow("Session idle, closing", "session", s.session.ID(), "timeoutSec", s.cfg.IdleTimeoutSec)
				s.CloseWithReason(internal_session.ReasonIdleTimeout)
				return
			}
		}
	}
}

// Close tears the session down with the generic reason. It satisfies
// io.Closer for callers that carry none of their own.
func (s *Streamer) Close() error {
	s.CloseWithReason(internal_session.ReasonNormal)
	return nil
}

// CloseWithReason tears the session down exactly once and blocks until
// teardown completes. Concurrent callers converge on the same teardown.
func (s *Streamer) CloseWithReason(reason string) {
	s.closeOnce.Do(func() {
		s.teardown(reason)
	})
}

// teardown runs the ordered shutdown: stop feeding (readers), stop
// consuming (processors, which drain), freeze the session summary, say
// goodbye on the channel, then release the transport.
func (s *Streamer) teardown(reason string) {
	// BeginClose under mu so registerTrack can never Add after the gate:
	// either it observes Closing and refuses, or its Add lands before the
	// wait below.
	s.mu.Lock()
	s.lifecycle.BeginClose()
	s.mu.Unlock()

	s.logger.Infow("Closing session", "session", s.session.ID(), "reason", reason)

	s.cancel()
	if !waitWithTimeout(&s.trackWg, webrtc_internal.TrackDrainTimeout) {
		s.logger.Warnw("Track readers did not drain in time", "session", s.session.ID())
	}

	if err := s.videoProcessor.Stop(internal_processor.DefaultStopTimeout); err != nil {
		s.logger.Warnw("Video processor stop", "error", err, "session", s.session.ID())
	}
	if err := s.audioProcessor.Stop(internal_processor.DefaultStopTimeout); err != nil {
		s.logger.Warnw("Audio processor stop", "error", err, "session", s.session.ID())
	}

	// Freeze counters and send the goodbye while the channel may still be up.
	summary := s.session.Close()
	s.emitter.Emit(context.Background(), internal_events.NewStreamClosedEvent(
		s.session.ID(), utils.NowMs(), summary.StreamClosed()))

	s.mu.Lock()
	pc := s.pc
	s.pc = nil
	s.mu.Unlock()
	if pc != nil {
		if err := pc.Close(); err != nil {
			s.logger.Warnw("Peer connection close", "error", err, "session", s.session.ID())
		}
	}

	s.lifecycle.FinishClose()
	s.registry.Remove(s.session.ID())
	internal_metrics.SessionsTotal.WithLabelValues(reason).Inc()

	s.logger.Infow("Session closed",
		"session", s.session.ID(),
		"reason", reason,
		"durationSec", summary.DurationSec,
		"framesProcessed", summary.FrameCount,
		"framesDropped", summary.DroppedCount,
		"detections", summary.DetectionCount,
		"audioSeconds", summary.AudioSeconds,
	)
}

// waitWithTimeout waits for wg up to timeout, reporting whether it finished.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
