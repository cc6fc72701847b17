// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_acoustic

import (
	"fmt"
	"math"

	"github.com/woundsight/pkg/commons"
)

// =============================================================================
// Audio Resampler
// =============================================================================

// AudioResampler converts mono PCM16 between sample rates. Inbound tracks
// arrive at whatever rate their codec dictates (8 kHz for G.711, anything for
// socket ingest); the analyzer needs one uniform rate.
type AudioResampler interface {
	Resample(pcm []int16, srcRate, dstRate int) ([]int16, error)
}

// sincResampler interpolates with a Hamming-windowed sinc kernel. Quality is
// plenty for feature extraction; the kernel widens for downsampling so the
// lowpass still lands below the destination Nyquist.
type sincResampler struct {
	logger commons.Logger
}

// GetResampler returns the shared resampler.
func GetResampler(logger commons.Logger) (AudioResampler, error) {
	return &sincResampler{logger: logger}, nil
}

const resamplerHalfTaps = 8

func (r *sincResampler) Resample(pcm []int16, srcRate, dstRate int) ([]int16, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", srcRate, dstRate)
	}
	if srcRate == dstRate || len(pcm) == 0 {
		return pcm, nil
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(math.Round(float64(len(pcm)) * ratio))
	if outLen < 1 {
		outLen = 1
	}

	// Cutoff sits just under the smaller Nyquist, normalized to the source
	// rate. When downsampling the kernel stretches by 1/ratio to keep the
	// transition band effective.
	cutoff := 0.475 * math.Min(1.0, ratio)
	halfWidth := float64(resamplerHalfTaps)
	if ratio < 1 {
		halfWidth = math.Ceil(float64(resamplerHalfTaps) / ratio)
	}

	out := make([]int16, outLen)
	for i := range out {
		center := float64(i) / ratio
		lo := int(math.Ceil(center - halfWidth))
		hi := int(math.Floor(center + halfWidth))

		var sum, weightSum float64
		for j := lo; j <= hi; j++ {
			if j < 0 || j >= len(pcm) {
				continue
			}
			x := center - float64(j)
			w := sinc(2*cutoff*x) * hammingAt(x/halfWidth)
			sum += float64(pcm[j]) * w
			weightSum += w
		}
		if weightSum != 0 {
			out[i] = clampPCM(sum / weightSum)
		}
	}
	return out, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// hammingAt evaluates the Hamming window at t in [-1, 1].
func hammingAt(t float64) float64 {
	if t < -1 || t > 1 {
		return 0
	}
	return 0.54 + 0.46*math.Cos(math.Pi*t)
}

func clampPCM(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}
