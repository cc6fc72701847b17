// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_acoustic

import (
	"context"
	"fmt"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/config"
	"github.com/woundsight/pkg/commons"
)

// =============================================================================
// Acoustic Analyzer
// =============================================================================

// Window is one analyzed audio batch, ready to become an audio event.
type Window struct {
	Analysis     internal_events.AudioAnalysis
	AudioSeconds float64
	Frames       int
	WAV          []byte
}

// Analyzer concatenates a batch of buffered audio items into a single window
// at the configured sample rate and scores it. Voice detection and emotion
// classification are optional stages, present only when their model paths are
// configured.
type Analyzer struct {
	logger     commons.Logger
	sampleRate int
	resampler  AudioResampler
	vad        *VoiceDetector
	emotion    *EmotionClassifier

	// features computes (mfccMean, energy) for a window; swappable in tests.
	features func(pcm []int16, sampleRate int) (float64, float64)
}

// NewAnalyzer builds the analysis chain from configuration.
func NewAnalyzer(logger commons.Logger, cfg *config.AppConfig) (*Analyzer, error) {
	resampler, err := GetResampler(logger)
	if err != nil {
		return nil, err
	}
	a := &Analyzer{
		logger:     logger,
		sampleRate: cfg.AudioSampleRate,
		resampler:  resampler,
		features:   Features,
	}
	if cfg.VadModelPath != "" {
		a.vad = NewVoiceDetector(logger, cfg.VadModelPath, resampler)
	}
	if cfg.EmotionModelPath != "" {
		a.emotion = NewEmotionClassifier(logger, cfg.EmotionModelPath, cfg.OnnxRuntimeLibPath, resampler)
	}
	return a, nil
}

// Analyze scores one window. Items whose sample rate differs from the
// configured one are resampled before concatenation. A window with no audio
// samples yields nil: the caller emits no event for it.
func (a *Analyzer) Analyze(ctx context.Context, items []internal_type.FrameItem) (*Window, error) {
	var merged []int16
	for i := range items {
		item := &items[i]
		if item.Kind != internal_type.FrameKindAudio || len(item.PCM) == 0 {
			continue
		}
		pcm := item.PCM
		if item.SampleRate != a.sampleRate {
			resampled, err := a.resampler.Resample(pcm, item.SampleRate, a.sampleRate)
			if err != nil {
				return nil, fmt.Errorf("resample %dHz item: %w", item.SampleRate, err)
			}
			pcm = resampled
		}
		merged = append(merged, pcm...)
	}
	if len(merged) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audioSeconds := float64(len(merged)) / float64(a.sampleRate)
	wav := EncodeWAV(merged, a.sampleRate, 1)

	mfccMean, energy := a.features(merged, a.sampleRate)
	analysis := internal_events.AudioAnalysis{
		RiskScore: mfccMean * energy,
		MfccMean:  mfccMean,
		Energy:    energy,
	}

	if a.vad != nil {
		ratio, err := a.vad.SpeechRatio(merged, a.sampleRate)
		if err != nil {
			a.logger.Warnf("acoustic: speech ratio unavailable: %v", err)
		} else {
			analysis.SpeechRatio = &ratio
		}
	}
	if a.emotion != nil && a.speechPresent(analysis.SpeechRatio) {
		label, err := a.emotion.Classify(merged, a.sampleRate)
		if err != nil {
			a.logger.Warnf("acoustic: emotion classification failed: %v", err)
		} else {
			analysis.Emotion = label
		}
	}

	return &Window{
		Analysis:     analysis,
		AudioSeconds: audioSeconds,
		Frames:       len(items),
		WAV:          wav,
	}, nil
}

// speechPresent gates emotion on the voice detector when one is configured.
func (a *Analyzer) speechPresent(ratio *float64) bool {
	if a.vad == nil || ratio == nil {
		return true
	}
	return *ratio > 0
}

// Close releases the optional model-backed stages.
func (a *Analyzer) Close() {
	if a.vad != nil {
		a.vad.Close()
	}
	if a.emotion != nil {
		a.emotion.Close()
	}
}
