// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package triage_routers

import (
	"github.com/gin-gonic/gin"
	triageSignalingApi "github.com/woundsight/api/triage-api/api/signaling"
	channel_webrtc "github.com/woundsight/api/triage-api/internal/channel/webrtc"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
)

func TriageRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, deps channel_webrtc.Dependencies) {
	logger.Info("Internal TriageRoutes added to engine.")
	apiv1 := engine.Group("")
	tApi := triageSignalingApi.New(cfg, logger, deps)
	{
		apiv1.POST("/offer", tApi.Offer)
		apiv1.GET("/ws/analyze", tApi.Analyze)
	}
}
