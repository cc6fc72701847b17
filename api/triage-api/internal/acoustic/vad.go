// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_acoustic

import (
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

// =============================================================================
// Voice Activity Detection
// =============================================================================

// vadSampleRate is the rate the silero model is trained on.
const vadSampleRate = 16000

// VoiceDetector reports how much of an audio window contains speech. The
// model loads lazily on the first window so a missing model path only fails
// when voice detection is actually asked for.
type VoiceDetector struct {
	logger    commons.Logger
	modelPath string
	resampler AudioResampler

	mu       sync.Mutex
	loadOnce sync.Once
	loadErr  error
	detector *speech.Detector
}

// NewVoiceDetector wraps the silero VAD model at modelPath.
func NewVoiceDetector(logger commons.Logger, modelPath string, resampler AudioResampler) *VoiceDetector {
	return &VoiceDetector{
		logger:    logger,
		modelPath: modelPath,
		resampler: resampler,
	}
}

// SpeechRatio returns the fraction of the window, in [0, 1], the model
// attributes to speech.
func (v *VoiceDetector) SpeechRatio(pcm []int16, sampleRate int) (float64, error) {
	if err := v.ensureLoaded(); err != nil {
		return 0, err
	}
	mono, err := v.resampler.Resample(pcm, sampleRate, vadSampleRate)
	if err != nil {
		return 0, fmt.Errorf("vad resample: %w", err)
	}
	if len(mono) == 0 {
		return 0, nil
	}
	samples := make([]float32, len(mono))
	for i, s := range mono {
		samples[i] = float32(s) / 32768.0
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	segments, err := v.detector.Detect(samples)
	if err != nil {
		return 0, fmt.Errorf("vad detect: %w", err)
	}
	// The detector keeps state across calls but windows are independent.
	if err := v.detector.Reset(); err != nil {
		v.logger.Debugf("acoustic: vad reset failed: %v", err)
	}

	total := float64(len(samples)) / float64(vadSampleRate)
	var voiced float64
	for _, seg := range segments {
		end := seg.SpeechEndAt
		if end <= 0 || end > total {
			// Speech still running at the end of the window.
			end = total
		}
		if end > seg.SpeechStartAt {
			voiced += end - seg.SpeechStartAt
		}
	}
	return utils.Clamp01(voiced / total), nil
}

// Close releases the underlying model. Safe when loading never happened.
func (v *VoiceDetector) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.detector == nil {
		return
	}
	if err := v.detector.Destroy(); err != nil {
		v.logger.Debugf("acoustic: vad destroy failed: %v", err)
	}
	v.detector = nil
}

func (v *VoiceDetector) ensureLoaded() error {
	v.loadOnce.Do(func() {
		detector, err := speech.NewDetector(speech.DetectorConfig{
			ModelPath:            v.modelPath,
			SampleRate:           vadSampleRate,
			Threshold:            0.5,
			MinSilenceDurationMs: 100,
			SpeechPadMs:          30,
		})
		if err != nil {
			v.loadErr = fmt.Errorf("vad model %s: %w", v.modelPath, err)
			return
		}
		v.detector = detector
		v.logger.Infof("acoustic: vad model loaded path=%s", v.modelPath)
	})
	return v.loadErr
}
