// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_acoustic

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-acoustic"),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

// newTestAnalyzer wires an analyzer with a stubbed feature extractor so the
// scoring arithmetic is observable without real spectral math.
func newTestAnalyzer(t *testing.T, mfccMean, energy float64) *Analyzer {
	t.Helper()
	logger := newTestLogger(t)
	resampler, err := GetResampler(logger)
	require.NoError(t, err)
	return &Analyzer{
		logger:     logger,
		sampleRate: 48000,
		resampler:  resampler,
		features: func(pcm []int16, sampleRate int) (float64, float64) {
			return mfccMean, energy
		},
	}
}

func audioItem(pcm []int16, sampleRate int) internal_type.FrameItem {
	return internal_type.FrameItem{
		Kind:       internal_type.FrameKindAudio,
		PCM:        pcm,
		SampleRate: sampleRate,
	}
}

func sinePCM(freq float64, sampleRate, n int, amplitude float64) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return pcm
}

func constantPCM(n int, value int16) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = value
	}
	return pcm
}

func pcmRMS(pcm []int16) float64 {
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// --- Resampler Tests ---

func TestResample_SameRatePassthrough(t *testing.T) {
	r, err := GetResampler(newTestLogger(t))
	require.NoError(t, err)

	in := []int16{1, -2, 3, -4}
	out, err := r.Resample(in, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestResample_InvalidRates(t *testing.T) {
	r, err := GetResampler(newTestLogger(t))
	require.NoError(t, err)

	_, err = r.Resample([]int16{1}, 0, 48000)
	assert.Error(t, err)
	_, err = r.Resample([]int16{1}, 48000, -1)
	assert.Error(t, err)
}

func TestResample_LengthFollowsRateRatio(t *testing.T) {
	r, err := GetResampler(newTestLogger(t))
	require.NoError(t, err)

	cases := []struct {
		src, dst, in, out int
	}{
		{8000, 48000, 800, 4800},
		{48000, 16000, 4800, 1600},
		{44100, 48000, 4410, 4800},
	}
	for _, tc := range cases {
		out, err := r.Resample(make([]int16, tc.in), tc.src, tc.dst)
		require.NoError(t, err)
		assert.Len(t, out, tc.out, "%d -> %d", tc.src, tc.dst)
	}
}

func TestResample_ConstantSignalPreserved(t *testing.T) {
	r, err := GetResampler(newTestLogger(t))
	require.NoError(t, err)

	out, err := r.Resample(constantPCM(480, 1000), 48000, 16000)
	require.NoError(t, err)
	require.Len(t, out, 160)
	for i, s := range out {
		require.InDelta(t, 1000, float64(s), 1.0, "sample %d", i)
	}
}

func TestResample_SineRMSPreserved(t *testing.T) {
	r, err := GetResampler(newTestLogger(t))
	require.NoError(t, err)

	in := sinePCM(440, 16000, 16000, 8192)
	out, err := r.Resample(in, 16000, 48000)
	require.NoError(t, err)
	require.Len(t, out, 48000)
	assert.InEpsilon(t, pcmRMS(in), pcmRMS(out), 0.05)
}

// --- WAV Tests ---

func TestEncodeWAV_HeaderLayout(t *testing.T) {
	pcm := []int16{1, -1, 32767, -32768, 0}
	blob := EncodeWAV(pcm, 48000, 1)

	require.Len(t, blob, 44+len(pcm)*2)
	assert.Equal(t, "RIFF", string(blob[0:4]))
	assert.Equal(t, uint32(36+len(pcm)*2), binary.LittleEndian.Uint32(blob[4:8]))
	assert.Equal(t, "WAVE", string(blob[8:12]))
	assert.Equal(t, "fmt ", string(blob[12:16]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(blob[16:20]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(blob[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(blob[22:24]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(blob[24:28]))
	assert.Equal(t, uint32(96000), binary.LittleEndian.Uint32(blob[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(blob[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(blob[34:36]))
	assert.Equal(t, "data", string(blob[36:40]))
	assert.Equal(t, uint32(len(pcm)*2), binary.LittleEndian.Uint32(blob[40:44]))

	decoded := make([]int16, len(pcm))
	require.NoError(t, binary.Read(bytes.NewReader(blob[44:]), binary.LittleEndian, decoded))
	assert.Equal(t, pcm, decoded)
}

func TestEncodeWAV_StereoBlockAlign(t *testing.T) {
	blob := EncodeWAV([]int16{0, 0}, 48000, 2)

	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(blob[22:24]))
	assert.Equal(t, uint32(192000), binary.LittleEndian.Uint32(blob[28:32]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(blob[32:34]))
}

// --- Feature Tests ---

func TestFeatures_EmptyInput(t *testing.T) {
	mfcc, energy := Features(nil, 48000)
	assert.Zero(t, mfcc)
	assert.Zero(t, energy)

	mfcc, energy = Features([]int16{1, 2, 3}, 0)
	assert.Zero(t, mfcc)
	assert.Zero(t, energy)
}

func TestFeatures_SilenceHasZeroEnergy(t *testing.T) {
	mfcc, energy := Features(make([]int16, 48000), 48000)
	assert.Zero(t, energy)
	// All-floor log mel spectrum pushes the leading cepstral coefficient
	// deep negative.
	assert.Less(t, mfcc, 0.0)
}

func TestFeatures_SineEnergyMatchesRMS(t *testing.T) {
	pcm := sinePCM(440, 48000, 48000, 0.25*32768)

	mfcc, energy := Features(pcm, 48000)
	assert.InDelta(t, 0.25/math.Sqrt2, energy, 0.01)
	assert.False(t, math.IsNaN(mfcc))
	assert.False(t, math.IsInf(mfcc, 0))
}

func TestFeatures_ShortInputSingleFrame(t *testing.T) {
	// Shorter than one FFT window; the single zero-padded frame still scores
	// and the energy reflects only the real samples.
	mfcc, energy := Features(constantPCM(1000, 8192), 48000)
	assert.InDelta(t, 0.25, energy, 1e-3)
	assert.False(t, math.IsNaN(mfcc))
}

// --- Analyzer Tests ---

func TestAnalyze_WindowScoring(t *testing.T) {
	a := newTestAnalyzer(t, 10.0, 0.05)

	// Ten items of 100 ms at 48 kHz: exactly one second of audio.
	items := make([]internal_type.FrameItem, 0, 10)
	for i := 0; i < 10; i++ {
		items = append(items, audioItem(make([]int16, 4800), 48000))
	}

	win, err := a.Analyze(context.Background(), items)
	require.NoError(t, err)
	require.NotNil(t, win)

	assert.InDelta(t, 0.5, win.Analysis.RiskScore, 1e-9)
	assert.InDelta(t, 10.0, win.Analysis.MfccMean, 1e-9)
	assert.InDelta(t, 0.05, win.Analysis.Energy, 1e-9)
	assert.InDelta(t, 1.0, win.AudioSeconds, 1e-9)
	assert.Equal(t, 10, win.Frames)
	assert.Len(t, win.WAV, 44+48000*2)
	assert.Empty(t, win.Analysis.Emotion)
	assert.Nil(t, win.Analysis.SpeechRatio)
}

func TestAnalyze_MixedRatesResampled(t *testing.T) {
	a := newTestAnalyzer(t, 1.0, 1.0)

	items := []internal_type.FrameItem{
		audioItem(make([]int16, 4800), 48000),
		audioItem(make([]int16, 1600), 16000), // 0.1 s, becomes 4800 at 48 kHz
	}

	win, err := a.Analyze(context.Background(), items)
	require.NoError(t, err)
	require.NotNil(t, win)

	assert.InDelta(t, 0.2, win.AudioSeconds, 1e-9)
	assert.Equal(t, 2, win.Frames)
}

func TestAnalyze_EmptyWindowYieldsNothing(t *testing.T) {
	a := newTestAnalyzer(t, 1.0, 1.0)

	win, err := a.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, win)

	win, err = a.Analyze(context.Background(), []internal_type.FrameItem{
		{Kind: internal_type.FrameKindAudio, SampleRate: 48000},
	})
	require.NoError(t, err)
	assert.Nil(t, win)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	a := newTestAnalyzer(t, 1.0, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, []internal_type.FrameItem{audioItem(make([]int16, 480), 48000)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpeechPresent_GatesOnDetector(t *testing.T) {
	a := newTestAnalyzer(t, 1.0, 1.0)

	// Without a voice detector emotion always runs.
	assert.True(t, a.speechPresent(nil))

	a.vad = &VoiceDetector{}
	assert.True(t, a.speechPresent(nil))

	zero, half := 0.0, 0.5
	assert.False(t, a.speechPresent(&zero))
	assert.True(t, a.speechPresent(&half))
}
