// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
)

// SessionCounter reports how many analysis sessions are currently open.
// The triage session registry satisfies it.
type SessionCounter interface {
	Len() int
}

type HealthCheckApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	sessions SessionCounter
}

func New(cfg *config.AppConfig, logger commons.Logger, sessions SessionCounter) *HealthCheckApi {
	return &HealthCheckApi{cfg: cfg, logger: logger, sessions: sessions}
}

// Healthz reports process liveness.
func (h *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.cfg.Version,
	})
}

// Readiness reports whether the gateway can accept another session. Load
// balancers drain a node that answers 503 here; existing sessions keep
// running either way.
func (h *HealthCheckApi) Readiness(c *gin.Context) {
	active := h.sessions.Len()
	if h.cfg.MaxConcurrentSessions > 0 && active >= h.cfg.MaxConcurrentSessions {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":          "at_capacity",
			"active_sessions": active,
			"max_sessions":    h.cfg.MaxConcurrentSessions,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ready",
		"active_sessions": active,
		"max_sessions":    h.cfg.MaxConcurrentSessions,
	})
}
