// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_acoustic

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// =============================================================================
// Spectral Features
// =============================================================================

const (
	mfccCoefficients = 13
	fftWindowSize    = 2048
	fftHopSize       = 512
	melFilterCount   = 40
	melLogFloor      = 1e-10
)

// Features computes the grand MFCC mean and the mean frame RMS energy for a
// PCM16 window: 13 cepstral coefficients over 2048-sample frames with a 512
// hop, averaged across coefficients and frames. The risk heuristic multiplies
// the two.
func Features(pcm []int16, sampleRate int) (mfccMean, energy float64) {
	if len(pcm) == 0 || sampleRate <= 0 {
		return 0, 0
	}

	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s) / 32768.0
	}

	frames := 1
	if len(samples) > fftWindowSize {
		frames += (len(samples) - fftWindowSize) / fftHopSize
	}

	fft := fourier.NewFFT(fftWindowSize)
	filters := melFilterbank(sampleRate)

	frame := make([]float64, fftWindowSize)
	power := make([]float64, fftWindowSize/2+1)
	logMel := make([]float64, melFilterCount)
	ceps := make([]float64, mfccCoefficients)

	var mfccSum, rmsSum float64
	for f := 0; f < frames; f++ {
		start := f * fftHopSize
		end := start + fftWindowSize
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(frame, samples[start:end])
		for i := n; i < fftWindowSize; i++ {
			frame[i] = 0
		}

		rmsSum += frameRMS(frame[:n])

		window.Hann(frame)
		coeffs := fft.Coefficients(nil, frame)
		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		for m, filter := range filters {
			var e float64
			for k, w := range filter {
				if w != 0 {
					e += w * power[k]
				}
			}
			logMel[m] = math.Log(math.Max(e, melLogFloor))
		}

		dct2(logMel, ceps)
		for _, c := range ceps {
			mfccSum += c
		}
	}

	mfccMean = mfccSum / float64(frames*mfccCoefficients)
	energy = rmsSum / float64(frames)
	return mfccMean, energy
}

func frameRMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10, mel/2595.0) - 1.0)
}

// melFilterbank builds triangular filters over the positive FFT bins, evenly
// spaced on the mel scale from 0 to Nyquist.
func melFilterbank(sampleRate int) [][]float64 {
	bins := fftWindowSize/2 + 1
	melHi := hzToMel(float64(sampleRate) / 2)

	points := make([]float64, melFilterCount+2)
	for i := range points {
		hz := melToHz(melHi * float64(i) / float64(melFilterCount+1))
		points[i] = hz * fftWindowSize / float64(sampleRate)
	}

	filters := make([][]float64, melFilterCount)
	for m := 0; m < melFilterCount; m++ {
		lo, mid, hi := points[m], points[m+1], points[m+2]
		row := make([]float64, bins)
		for k := 0; k < bins; k++ {
			fk := float64(k)
			switch {
			case fk > lo && fk <= mid && mid > lo:
				row[k] = (fk - lo) / (mid - lo)
			case fk > mid && fk < hi && hi > mid:
				row[k] = (hi - fk) / (hi - mid)
			}
		}
		filters[m] = row
	}
	return filters
}

// dct2 computes the orthonormal DCT-II of in, writing the leading len(out)
// coefficients.
func dct2(in, out []float64) {
	n := float64(len(in))
	for k := range out {
		var sum float64
		for m, v := range in {
			sum += v * math.Cos(math.Pi*float64(k)*(float64(m)+0.5)/n)
		}
		scale := math.Sqrt(2.0 / n)
		if k == 0 {
			scale = math.Sqrt(1.0 / n)
		}
		out[k] = scale * sum
	}
}
