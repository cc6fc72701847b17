// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_inference

import (
	"context"
	"time"

	"github.com/woundsight/config"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
)

// =============================================================================
// Inference Router
// =============================================================================

// Backend produces raw, unfiltered detections for a decoded frame. A failing
// backend returns an error and the router falls through to the next one.
type Backend interface {
	Name() string
	Detect(ctx context.Context, img *internal_type.DecodedImage) ([]internal_events.Detection, error)
}

// Router tries each configured backend in order and returns the first
// successful result, filtered at the confidence threshold. Falling off the
// end of the chain is not an error: the frame legitimately has no detections
// the service can vouch for.
type Router struct {
	logger    commons.Logger
	threshold float64
	backends  []Backend
}

var _ internal_type.Router = (*Router)(nil)

// NewRouter assembles the backend chain from configuration: hosted inference
// when URL and key are present, then the local ONNX fallback, then the demo
// generator. A deployment with none of them configured emits empty frames.
func NewRouter(logger commons.Logger, cfg *config.AppConfig) *Router {
	backends := make([]Backend, 0, 3)
	if cfg.RemoteInferenceConfigured() {
		backends = append(backends, NewRemoteBackend(
			logger,
			cfg.InferenceRemoteURL,
			cfg.InferenceRemoteKey,
			cfg.RemoteInferenceTimeout(),
			cfg.ConfidenceThreshold,
		))
	}
	if cfg.InferenceLocalEnabled {
		backends = append(backends, NewLocalBackend(
			logger,
			cfg.InferenceLocalWeightsPath,
			cfg.OnnxRuntimeLibPath,
			cfg.InferenceLocalClasses,
			cfg.ConfidenceThreshold,
		))
	}
	if cfg.DemoMode {
		backends = append(backends, NewDemoBackend())
	}
	logger.Infof("inference: router configured backends=%d remote=%v local=%v demo=%v",
		len(backends), cfg.RemoteInferenceConfigured(), cfg.InferenceLocalEnabled, cfg.DemoMode)
	return &Router{
		logger:    logger,
		threshold: cfg.ConfidenceThreshold,
		backends:  backends,
	}
}

// Infer implements internal_type.Router.
func (r *Router) Infer(ctx context.Context, img *internal_type.DecodedImage) ([]internal_events.Detection, error) {
	for _, backend := range r.backends {
		start := time.Now()
		detections, err := backend.Detect(ctx, img)
		internal_metrics.InferenceDuration.WithLabelValues(backend.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			internal_metrics.InferenceRequests.WithLabelValues(backend.Name(), "failure").Inc()
			r.logger.Warnf("inference: %s backend failed, falling back: %v", backend.Name(), err)
			continue
		}
		internal_metrics.InferenceRequests.WithLabelValues(backend.Name(), "success").Inc()
		return filterByConfidence(detections, r.threshold), nil
	}
	return []internal_events.Detection{}, nil
}

// Close releases backend resources. Only the local model holds any.
func (r *Router) Close() {
	for _, backend := range r.backends {
		if closer, ok := backend.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
