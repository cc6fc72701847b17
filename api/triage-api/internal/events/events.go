// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_events

import "encoding/json"

// ChannelLabel is the fixed data-channel label all events travel on.
const ChannelLabel = "detections"

// Error codes carried by ErrorEvent.
const (
	ErrCodeInvalidImageFormat = "INVALID_IMAGE_FORMAT"
	ErrCodeFrameTooLarge      = "FRAME_TOO_LARGE"
	ErrCodeInferenceFailed    = "INFERENCE_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// Error severities. Warning means the frame was skipped and the stream
// continues; Error means the session is terminating.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// BBoxFormat is advertised in the session_started config block. Boxes are
// absolute pixel coordinates in this deployment.
const BBoxFormat = "pixels"

// Event is any message the gateway sends over the data channel. The single
// authoritative definition of every message lives in this package; nothing
// else hand-builds wire payloads.
type Event interface {
	EventType() string
}

// Marshal serializes an event to its UTF-8 JSON wire form.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// BBox is an absolute-pixel bounding box.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one wound hypothesis within a frame. ID is 0-based per frame;
// WoundID mirrors it for clients that expect the legacy field.
type Detection struct {
	ID             int     `json:"id"`
	WoundID        int     `json:"wound_id"`
	Cls            string  `json:"cls"`
	BBox           BBox    `json:"bbox"`
	Confidence     float64 `json:"confidence"`
	TypeConfidence float64 `json:"type_confidence"`
}

// SessionStartedConfig is the configuration block advertised to the client.
type SessionStartedConfig struct {
	MaxResolution       string  `json:"max_resolution"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IdleTimeoutSec      int     `json:"idle_timeout_sec"`
	BBoxFormat          string  `json:"bbox_format"`
}

// SessionStartedEvent is sent exactly once, when the data channel opens.
type SessionStartedEvent struct {
	Type        string               `json:"event_type"`
	SessionID   string               `json:"session_id"`
	TimestampMs int64                `json:"timestamp_ms"`
	Config      SessionStartedConfig `json:"config"`
}

func (e SessionStartedEvent) EventType() string { return "session_started" }

// NewSessionStartedEvent fills the constant event_type discriminator.
func NewSessionStartedEvent(sessionID string, timestampMs int64, cfg SessionStartedConfig) SessionStartedEvent {
	return SessionStartedEvent{
		Type:        "session_started",
		SessionID:   sessionID,
		TimestampMs: timestampMs,
		Config:      cfg,
	}
}

// DetectionMetadata rides along with every detection event.
type DetectionMetadata struct {
	ProcessingTimeMs       float64 `json:"processing_time_ms"`
	QualityWarning         string  `json:"quality_warning,omitempty"`
	FramesDroppedSinceLast int64   `json:"frames_dropped_since_last"`
}

// DetectionEvent reports the wounds located in one processed video frame.
// HasWounds is true exactly when Wounds is non-empty.
type DetectionEvent struct {
	Type        string            `json:"event_type"`
	SessionID   string            `json:"session_id"`
	TimestampMs int64             `json:"timestamp_ms"`
	FrameIndex  int64             `json:"frame_index"`
	HasWounds   bool              `json:"has_wounds"`
	Wounds      []Detection       `json:"wounds"`
	Metadata    DetectionMetadata `json:"metadata"`
}

func (e DetectionEvent) EventType() string { return "detection_event" }

// NewDetectionEvent derives HasWounds from the wound list so the two can
// never disagree.
func NewDetectionEvent(sessionID string, timestampMs int64, frameIndex int64, wounds []Detection, meta DetectionMetadata) DetectionEvent {
	if wounds == nil {
		wounds = []Detection{}
	}
	return DetectionEvent{
		Type:        "detection_event",
		SessionID:   sessionID,
		TimestampMs: timestampMs,
		FrameIndex:  frameIndex,
		HasWounds:   len(wounds) > 0,
		Wounds:      wounds,
		Metadata:    meta,
	}
}

// AudioAnalysis carries the acoustic risk scoring for one window.
type AudioAnalysis struct {
	RiskScore   float64  `json:"risk_score"`
	MfccMean    float64  `json:"mfcc_mean"`
	Energy      float64  `json:"energy"`
	Emotion     string   `json:"emotion,omitempty"`
	SpeechRatio *float64 `json:"speech_ratio,omitempty"`
}

// AudioEvent reports one analyzed audio window.
type AudioEvent struct {
	Type          string        `json:"event_type"`
	SessionID     string        `json:"session_id"`
	TimestampMs   int64         `json:"timestamp_ms"`
	Analysis      AudioAnalysis `json:"analysis"`
	AudioSeconds  float64       `json:"audio_seconds"`
	Frames        int           `json:"frames"`
	WindowSeconds float64       `json:"window_seconds"`
}

func (e AudioEvent) EventType() string { return "audio_event" }

// NewAudioEvent fills the constant event_type discriminator.
func NewAudioEvent(sessionID string, timestampMs int64, analysis AudioAnalysis, audioSeconds float64, frames int, windowSeconds float64) AudioEvent {
	return AudioEvent{
		Type:          "audio_event",
		SessionID:     sessionID,
		TimestampMs:   timestampMs,
		Analysis:      analysis,
		AudioSeconds:  audioSeconds,
		Frames:        frames,
		WindowSeconds: windowSeconds,
	}
}

// ErrorEvent surfaces a per-frame or session-level failure inline on the
// data channel. FrameIndex is present only for frame-scoped failures.
type ErrorEvent struct {
	Type         string `json:"event_type"`
	SessionID    string `json:"session_id"`
	TimestampMs  int64  `json:"timestamp_ms"`
	FrameIndex   *int64 `json:"frame_index,omitempty"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Severity     string `json:"severity"`
}

func (e ErrorEvent) EventType() string { return "error" }

// NewErrorEvent builds a frame-agnostic error event.
func NewErrorEvent(sessionID string, timestampMs int64, code, message, severity string) ErrorEvent {
	return ErrorEvent{
		Type:         "error",
		SessionID:    sessionID,
		TimestampMs:  timestampMs,
		ErrorCode:    code,
		ErrorMessage: message,
		Severity:     severity,
	}
}

// NewFrameErrorEvent builds an error event scoped to a frame index.
func NewFrameErrorEvent(sessionID string, timestampMs int64, frameIndex int64, code, message, severity string) ErrorEvent {
	e := NewErrorEvent(sessionID, timestampMs, code, message, severity)
	e.FrameIndex = &frameIndex
	return e
}

// StreamClosedSummary is the terminal aggregate for one session.
type StreamClosedSummary struct {
	TotalFramesReceived  int64   `json:"total_frames_received"`
	TotalFramesProcessed int64   `json:"total_frames_processed"`
	TotalFramesDropped   int64   `json:"total_frames_dropped"`
	TotalDetections      int64   `json:"total_detections"`
	DurationSec          float64 `json:"duration_sec"`
}

// StreamClosedEvent is sent best-effort as the final message of a session.
type StreamClosedEvent struct {
	Type        string              `json:"event_type"`
	SessionID   string              `json:"session_id"`
	TimestampMs int64               `json:"timestamp_ms"`
	Summary     StreamClosedSummary `json:"summary"`
}

func (e StreamClosedEvent) EventType() string { return "stream_closed" }

// NewStreamClosedEvent fills the constant event_type discriminator.
func NewStreamClosedEvent(sessionID string, timestampMs int64, summary StreamClosedSummary) StreamClosedEvent {
	return StreamClosedEvent{
		Type:        "stream_closed",
		SessionID:   sessionID,
		TimestampMs: timestampMs,
		Summary:     summary,
	}
}

// PongEvent answers a client ping.
type PongEvent struct {
	Type        string `json:"event_type"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func (e PongEvent) EventType() string { return "pong" }

// NewPongEvent fills the constant event_type discriminator.
func NewPongEvent(timestampMs int64) PongEvent {
	return PongEvent{Type: "pong", TimestampMs: timestampMs}
}
