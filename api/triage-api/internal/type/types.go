// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"gocv.io/x/gocv"
)

// FrameKind discriminates what a FrameItem carries.
type FrameKind string

const (
	FrameKindVideo FrameKind = "video"
	FrameKindAudio FrameKind = "audio"
)

// FrameItem is the unit flowing from a track producer into a pipeline buffer.
// It is ephemeral: consumed once, never retained after processing.
type FrameItem struct {
	Kind      FrameKind
	ArrivalMs int64

	// Video payload: encoded image bytes (JPEG/PNG) or a raw BGR plane.
	// Raw planes carry explicit dimensions; encoded payloads leave them zero.
	Payload []byte
	Width   int
	Height  int

	// Audio payload: decoded mono PCM samples at SampleRate.
	PCM        []int16
	SampleRate int
}

// Samples returns the number of PCM samples for audio items.
func (f *FrameItem) Samples() int {
	return len(f.PCM)
}

// DecodedImage is a 3-channel 8-bit pixel matrix plus the quality metadata
// computed during preprocessing. The Mat owns C-allocated memory and must be
// released with Close once the frame is processed.
type DecodedImage struct {
	Mat            gocv.Mat
	Width          int
	Height         int
	BlurScore      float64
	QualityWarning string
}

// Close releases the underlying pixel matrix. The image has a single owner;
// Close is called exactly once by the consuming processor.
func (d *DecodedImage) Close() error {
	if d == nil {
		return nil
	}
	return d.Mat.Close()
}
