// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	internal_acoustic "github.com/woundsight/api/triage-api/internal/acoustic"
	channel_webrtc "github.com/woundsight/api/triage-api/internal/channel/webrtc"
	internal_emitter "github.com/woundsight/api/triage-api/internal/emitter"
	internal_inference "github.com/woundsight/api/triage-api/internal/inference"
	internal_preprocess "github.com/woundsight/api/triage-api/internal/preprocess"
	internal_session "github.com/woundsight/api/triage-api/internal/session"
	internal_worker "github.com/woundsight/api/triage-api/internal/worker"
	triage_routers "github.com/woundsight/api/triage-api/router"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

const shutdownGrace = 10 * time.Second

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("unable to initialize configuration: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("unable to load application configuration: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Level(cfg.LogLevel),
		commons.Path(cfg.LogPath),
	)
	if err != nil {
		log.Fatalf("unable to initialize logger: %v", err)
	}
	defer logger.Sync()

	if utils.FromEnvironmentStr(cfg.Environment) == utils.PRODUCTION {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============ Shared Pipeline Components ============
	preprocessor := internal_preprocess.New(logger, cfg.MaxFrameWidth, cfg.MaxFrameHeight, cfg.BlurWarningThreshold)
	router := internal_inference.NewRouter(logger, cfg)
	analyzer, err := internal_acoustic.NewAnalyzer(logger, cfg)
	if err != nil {
		logger.Errorw("Unable to initialize acoustic analyzer", "error", err)
		log.Fatalf("unable to initialize acoustic analyzer: %v", err)
	}
	pool := internal_worker.NewPool(0)
	registry := internal_session.NewRegistry(logger)

	var forwarder *internal_emitter.Forwarder
	if !utils.IsEmpty(cfg.EventForwardURL) {
		forwarder = internal_emitter.NewForwarder(logger, cfg.EventForwardURL, cfg.EventForwardKey)
	}

	deps := channel_webrtc.Dependencies{
		Config:       cfg,
		Preprocessor: preprocessor,
		Router:       router,
		Analyzer:     analyzer,
		Pool:         pool,
		Forwarder:    forwarder,
		Registry:     registry,
	}

	// ============ HTTP Engine ============
	engine := gin.New()
	engine.Use(gin.Recovery())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Api-Key")
	engine.Use(cors.New(corsConfig))

	triage_routers.TriageRoutes(cfg, engine, logger, deps)
	triage_routers.HealthCheckRoutes(cfg, engine, logger, registry)
	triage_routers.MetricsRoutes(engine, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("Starting triage gateway",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"version", cfg.Version,
			"maxConcurrentSessions", cfg.MaxConcurrentSessions,
			"remoteInference", cfg.RemoteInferenceConfigured(),
			"demoMode", cfg.DemoMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, draining sessions")

		// Tear sessions down first so every client gets its stream_closed
		// goodbye before the listener stops accepting.
		registry.CloseAll(internal_session.ReasonShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorw("Gateway terminated with error", "error", err)
	}

	router.Close()
	analyzer.Close()
	if forwarder != nil {
		forwarder.Close()
	}
	logger.Info("Gateway stopped")
}
