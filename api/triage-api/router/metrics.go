// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package triage_routers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woundsight/pkg/commons"
)

func MetricsRoutes(engine *gin.Engine, logger commons.Logger) {
	logger.Info("Internal MetricsRoutes added to engine.")
	apiv1 := engine.Group("")
	{
		apiv1.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
