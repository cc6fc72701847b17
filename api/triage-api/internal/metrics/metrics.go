// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks currently open sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "triage_sessions_active",
		Help: "Currently active analysis sessions",
	})

	// SessionsTotal counts sessions by terminal reason.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_sessions_total",
		Help: "Total sessions by close reason",
	}, []string{"reason"})

	// SessionsRejected counts offers refused at admission.
	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_sessions_rejected_total",
		Help: "Offers rejected because the session cap was reached",
	})

	// FramesProcessed counts pipeline outcomes per track kind.
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_frames_processed_total",
		Help: "Frames fully processed by the pipeline",
	}, []string{"kind"})

	// FramesDropped counts buffer evictions per track kind.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_frames_dropped_total",
		Help: "Frames evicted by buffer overflow",
	}, []string{"kind"})

	// InferenceRequests counts router outcomes per backend.
	InferenceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_inference_requests_total",
		Help: "Inference attempts by backend and outcome",
	}, []string{"backend", "outcome"})

	// InferenceDuration observes per-backend inference latency.
	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "triage_inference_duration_seconds",
		Help:    "Inference latency by backend",
		Buckets: prometheus.ExponentialBuckets(0.001, 2.0, 14), // 1ms to ~8s
	}, []string{"backend"})

	// EventsEmitted counts events pushed to clients by type and outcome.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_events_emitted_total",
		Help: "Events emitted over the data channel by type and outcome",
	}, []string{"event_type", "outcome"})

	// DetectionsEmitted counts wounds reported to clients.
	DetectionsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_detections_emitted_total",
		Help: "Total detections delivered in detection events",
	})

	// AudioSecondsAnalyzed accumulates analyzed audio duration.
	AudioSecondsAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_audio_seconds_analyzed_total",
		Help: "Seconds of audio run through acoustic analysis",
	})
)
