// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package webrtc_internal

import (
	"sync/atomic"
	"time"
)

// Codec parameters negotiated with browsers. Opus RTP always signals 2
// encoding channels (opus/48000/2) per RFC 7587, even for mono voice.
const (
	OpusSampleRate  = 48000
	OpusChannels    = 2
	OpusPayloadType = 111
	OpusSDPFmtpLine = "minptime=10;useinbandfec=1"

	PCMUPayloadType = 0
	PCMAPayloadType = 8
	G711SampleRate  = 8000

	VideoClockRate  = 90000
	VP8PayloadType  = 96
	H264PayloadType = 102
	H264SDPFmtpLine = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f"
)

// Reader and teardown tuning.
const (
	RTPBufferSize        = 1500 // max RTP packet size (MTU)
	MaxConsecutiveErrors = 50   // max track read errors before stopping

	// GatherTimeout bounds the wait for ICE gathering before answering
	// with whatever candidates exist.
	GatherTimeout = 5 * time.Second

	// TrackDrainTimeout bounds the wait for track readers (and their
	// transcoders) during teardown.
	TrackDrainTimeout = 5 * time.Second

	// WatchdogInterval is how often the idle watchdog samples activity.
	WatchdogInterval = time.Second
)

// Config holds WebRTC transport configuration.
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"
}

// ICEServer represents a STUN/TURN server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// DefaultConfig returns the fallback WebRTC configuration.
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
	}
}

// ConfigFromServers builds a config from deployment STUN URLs, falling back
// to the defaults when none are configured.
func ConfigFromServers(urls []string) *Config {
	if len(urls) == 0 {
		return DefaultConfig()
	}
	return &Config{
		ICEServers:         []ICEServer{{URLs: urls}},
		ICETransportPolicy: "all",
	}
}

// State is the orchestrator lifecycle of one streaming session.
type State int32

const (
	StateCreated State = iota // offer accepted, no media yet
	StateActive               // peer connection established
	StateClosing              // teardown in progress
	StateClosed               // all resources released
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle is the monotonic state machine guarding session transitions:
// Created -> Active -> Closing -> Closed, with Active skippable when a
// session dies before connecting. Transitions never go backwards.
type Lifecycle struct {
	v atomic.Int32
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.v.Load())
}

// Activate moves Created to Active. It reports whether the transition
// happened; a session already active or closing is left untouched.
func (l *Lifecycle) Activate() bool {
	return l.v.CompareAndSwap(int32(StateCreated), int32(StateActive))
}

// BeginClose moves any pre-closing state to Closing. It reports false when
// teardown already started, making it the idempotency gate for close paths.
func (l *Lifecycle) BeginClose() bool {
	for {
		cur := l.v.Load()
		if cur >= int32(StateClosing) {
			return false
		}
		if l.v.CompareAndSwap(cur, int32(StateClosing)) {
			return true
		}
	}
}

// FinishClose marks teardown complete.
func (l *Lifecycle) FinishClose() {
	l.v.Store(int32(StateClosed))
}
