// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_acoustic

import (
	"fmt"
	"sync"

	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// =============================================================================
// Speech Emotion Recognition
// =============================================================================

const (
	// emotionSampleRate is the rate the classifier is trained on.
	emotionSampleRate = 16000

	// emotionInputSamples fixes the session input to one second of audio;
	// longer windows are truncated and shorter ones zero padded.
	emotionInputSamples = emotionSampleRate
)

// emotionLabels maps classifier output indices to labels.
var emotionLabels = []string{
	"neutral", "calm", "happy", "sad", "angry", "fearful", "disgust", "surprised",
}

// EmotionClassifier labels the dominant emotion of an audio window using an
// ONNX speech emotion model. Loading is lazy, mirroring the detection model.
type EmotionClassifier struct {
	logger    commons.Logger
	modelPath string
	libPath   string
	resampler AudioResampler

	mu       sync.Mutex
	loadOnce sync.Once
	loadErr  error
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
}

// NewEmotionClassifier wraps the emotion model at modelPath.
func NewEmotionClassifier(logger commons.Logger, modelPath, libPath string, resampler AudioResampler) *EmotionClassifier {
	return &EmotionClassifier{
		logger:    logger,
		modelPath: modelPath,
		libPath:   libPath,
		resampler: resampler,
	}
}

// Classify returns the dominant emotion label for the window.
func (e *EmotionClassifier) Classify(pcm []int16, sampleRate int) (string, error) {
	if err := e.ensureLoaded(); err != nil {
		return "", err
	}
	mono, err := e.resampler.Resample(pcm, sampleRate, emotionSampleRate)
	if err != nil {
		return "", fmt.Errorf("emotion resample: %w", err)
	}

	// The session owns fixed input/output tensors, so runs are serialized.
	e.mu.Lock()
	defer e.mu.Unlock()

	data := e.input.GetData()
	n := len(mono)
	if n > len(data) {
		n = len(data)
	}
	for i := 0; i < n; i++ {
		data[i] = float32(mono[i]) / 32768.0
	}
	for i := n; i < len(data); i++ {
		data[i] = 0
	}

	if err := e.session.Run(); err != nil {
		return "", fmt.Errorf("emotion inference run: %w", err)
	}
	scores := e.output.GetData()
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	if best >= len(emotionLabels) {
		return "", fmt.Errorf("emotion model returned class %d beyond label set", best)
	}
	return emotionLabels[best], nil
}

// Close releases the session and tensors. Safe when the model never loaded.
func (e *EmotionClassifier) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
}

func (e *EmotionClassifier) ensureLoaded() error {
	e.loadOnce.Do(func() {
		e.loadErr = e.load()
		if e.loadErr == nil {
			e.logger.Infof("acoustic: emotion model loaded path=%s classes=%d", e.modelPath, len(emotionLabels))
		}
	})
	return e.loadErr
}

func (e *EmotionClassifier) load() error {
	if err := onnx.EnsureRuntime(e.libPath); err != nil {
		return fmt.Errorf("onnxruntime init: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(e.modelPath)
	if err != nil {
		return fmt.Errorf("model metadata %s: %w", e.modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model %s declares no inputs or outputs", e.modelPath)
	}

	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, emotionInputSamples))
	if err != nil {
		return fmt.Errorf("input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(emotionLabels))))
	if err != nil {
		in.Destroy()
		return fmt.Errorf("output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return fmt.Errorf("model session %s: %w", e.modelPath, err)
	}

	e.session = session
	e.input = in
	e.output = out
	return nil
}
