// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_inference

import (
	internal_events "github.com/woundsight/api/triage-api/internal/events"
)

// =============================================================================
// Prediction Normalization
// =============================================================================

// remotePrediction mirrors the JSON shape of hosted detection backends
// (Roboflow-compatible). Boxes arrive either as a packed bbox array or as
// discrete x/y/width/height fields; the class label key varies by provider.
type remotePrediction struct {
	X               *float64  `json:"x"`
	Y               *float64  `json:"y"`
	Width           *float64  `json:"width"`
	Height          *float64  `json:"height"`
	BBox            []float64 `json:"bbox"`
	Class           string    `json:"class"`
	Cls             string    `json:"cls"`
	Label           string    `json:"label"`
	Confidence      float64   `json:"confidence"`
	ClassConfidence *float64  `json:"class_confidence"`
}

// remoteResponse is the top-level backend payload.
type remoteResponse struct {
	Predictions []remotePrediction `json:"predictions"`
}

func (p remotePrediction) box() internal_events.BBox {
	if len(p.BBox) >= 4 {
		return internal_events.BBox{X: p.BBox[0], Y: p.BBox[1], Width: p.BBox[2], Height: p.BBox[3]}
	}
	return internal_events.BBox{
		X:      floatOrZero(p.X),
		Y:      floatOrZero(p.Y),
		Width:  floatOrZero(p.Width),
		Height: floatOrZero(p.Height),
	}
}

func (p remotePrediction) className() string {
	switch {
	case p.Class != "":
		return p.Class
	case p.Cls != "":
		return p.Cls
	case p.Label != "":
		return p.Label
	default:
		return "unknown"
	}
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// normalizePredictions maps backend predictions into the unified detection
// shape. type_confidence falls back to confidence when the backend does not
// report a distinct type score. No filtering happens here; the router applies
// the confidence threshold identically to every backend.
func normalizePredictions(preds []remotePrediction) []internal_events.Detection {
	detections := make([]internal_events.Detection, 0, len(preds))
	for _, p := range preds {
		typeConfidence := p.Confidence
		if p.ClassConfidence != nil {
			typeConfidence = *p.ClassConfidence
		}
		detections = append(detections, internal_events.Detection{
			Cls:            p.className(),
			BBox:           p.box(),
			Confidence:     p.Confidence,
			TypeConfidence: typeConfidence,
		})
	}
	return detections
}

// filterByConfidence keeps detections at or above the threshold and assigns
// the 0-based per-frame ids. wound_id mirrors id.
func filterByConfidence(detections []internal_events.Detection, threshold float64) []internal_events.Detection {
	kept := make([]internal_events.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < threshold {
			continue
		}
		d.ID = len(kept)
		d.WoundID = d.ID
		kept = append(kept, d)
	}
	return kept
}
