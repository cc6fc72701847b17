// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package triage_signaling_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	channel_webrtc "github.com/woundsight/api/triage-api/internal/channel/webrtc"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	internal_session "github.com/woundsight/api/triage-api/internal/session"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
)

// TriageApi serves the signaling surface: the WebRTC offer exchange and the
// WebSocket ingest fallback. Media never touches these handlers; it flows
// through the peer connection (SRTP) or the upgraded socket.
type TriageApi struct {
	cfg    *config.AppConfig
	logger commons.Logger
	deps   channel_webrtc.Dependencies
}

func New(cfg *config.AppConfig, logger commons.Logger, deps channel_webrtc.Dependencies) *TriageApi {
	return &TriageApi{cfg: cfg, logger: logger, deps: deps}
}

// OfferRequest is the browser's half of the SDP exchange.
type OfferRequest struct {
	SDP  string `json:"sdp" binding:"required"`
	Type string `json:"type" binding:"required"`
}

// Offer negotiates a new analysis session.
//
// @Router /offer [post]
// @Summary Open a WebRTC analysis session
// @Description Accepts a browser SDP offer and answers after ICE gathering
// @Accept json
// @Produce json
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Failure 503 {object} gin.H
func (api *TriageApi) Offer(c *gin.Context) {
	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed offer: " + err.Error()})
		return
	}
	if req.Type != "offer" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected type offer, got " + req.Type})
		return
	}

	// Cheap pre-check so obviously full nodes skip peer connection setup;
	// Admit below is the authoritative gate.
	if api.cfg.MaxConcurrentSessions > 0 && api.deps.Registry.Len() >= api.cfg.MaxConcurrentSessions {
		internal_metrics.SessionsRejected.Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session capacity reached"})
		return
	}

	streamer, err := channel_webrtc.NewStreamer(api.logger, api.deps)
	if err != nil {
		api.logger.Errorw("Failed to create streamer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	if !api.deps.Registry.Admit(streamer, api.cfg.MaxConcurrentSessions) {
		streamer.CloseWithReason(internal_session.ReasonCapacity)
		internal_metrics.SessionsRejected.Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session capacity reached"})
		return
	}

	answer, err := streamer.HandleOffer(c.Request.Context(), req.SDP)
	if err != nil {
		api.logger.Warnw("Offer negotiation failed", "error", err, "session", streamer.SessionID())
		streamer.CloseWithReason(internal_session.ReasonInternalError)
		c.JSON(http.StatusBadRequest, gin.H{"error": "negotiation failed: " + err.Error()})
		return
	}

	api.logger.Infow("Session negotiated", "session", streamer.SessionID())
	c.JSON(http.StatusOK, gin.H{
		"sdp":        answer,
		"type":       "answer",
		"session_id": streamer.SessionID(),
	})
}
