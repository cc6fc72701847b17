// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_emitter

import (
	"context"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	"github.com/woundsight/pkg/commons"
)

// Channel is the transport slice the emitter writes to: a WebRTC data
// channel or a websocket, reduced to a readiness probe and a text send.
// SendText must not block on a slow peer beyond the transport's own
// buffering.
type Channel interface {
	IsOpen() bool
	SendText(msg string) error
}

// ChannelEmitter serializes events and pushes them down one channel.
// Emission is lossy on purpose: a channel that is not open yet, or already
// closed, drops the event with a debug log instead of stalling the pipeline.
// When a forwarder is attached every event is also handed to it, regardless
// of whether the client send succeeded.
type ChannelEmitter struct {
	logger    commons.Logger
	channel   Channel
	forwarder *Forwarder
}

// NewChannelEmitter wires an emitter to its channel. forwarder may be nil.
func NewChannelEmitter(logger commons.Logger, channel Channel, forwarder *Forwarder) *ChannelEmitter {
	return &ChannelEmitter{
		logger:    logger,
		channel:   channel,
		forwarder: forwarder,
	}
}

// Emit implements internal_type.Emitter.
func (e *ChannelEmitter) Emit(ctx context.Context, event internal_events.Event) bool {
	eventType := event.EventType()
	payload, err := internal_events.Marshal(event)
	if err != nil {
		e.logger.Errorw("event marshal failed", "event_type", eventType, "error", err)
		internal_metrics.EventsEmitted.WithLabelValues(eventType, "failed").Inc()
		return false
	}

	if e.forwarder != nil {
		e.forwarder.Forward(eventType, payload)
	}

	if !e.channel.IsOpen() {
		e.logger.Debugw("event dropped, channel not open", "event_type", eventType)
		internal_metrics.EventsEmitted.WithLabelValues(eventType, "skipped").Inc()
		return false
	}
	if err := e.channel.SendText(string(payload)); err != nil {
		e.logger.Debugw("event send failed", "event_type", eventType, "error", err)
		internal_metrics.EventsEmitted.WithLabelValues(eventType, "failed").Inc()
		return false
	}
	internal_metrics.EventsEmitted.WithLabelValues(eventType, "sent").Inc()
	return true
}
