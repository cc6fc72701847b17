// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_inference

import (
	"context"
	"math"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
)

// =============================================================================
// Demo Backend
// =============================================================================

// demoBackend fabricates one deterministic centered detection so the full
// event path can be exercised without any model or network. Frames narrower
// than 51 px yield nothing, which keeps tiny synthetic frames quiet.
type demoBackend struct{}

// NewDemoBackend builds the demo-mode strategy.
func NewDemoBackend() Backend {
	return demoBackend{}
}

// Name implements Backend.
func (demoBackend) Name() string {
	return "demo"
}

// Detect implements Backend.
func (demoBackend) Detect(_ context.Context, img *internal_type.DecodedImage) ([]internal_events.Detection, error) {
	if img == nil || img.Width <= 50 {
		return nil, nil
	}

	width := math.Min(100, float64(img.Width)*0.3)
	height := math.Min(100, float64(img.Height)*0.3)
	x := math.Max(0, float64(img.Width)/2-width/2)
	y := math.Max(0, float64(img.Height)/2-height/2)

	return []internal_events.Detection{{
		Cls:            "cut",
		BBox:           internal_events.BBox{X: x, Y: y, Width: width, Height: height},
		Confidence:     0.75,
		TypeConfidence: 0.6,
	}}, nil
}
