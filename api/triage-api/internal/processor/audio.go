// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_processor

import (
	"context"
	"sync"
	"time"

	internal_acoustic "github.com/woundsight/api/triage-api/internal/acoustic"
	internal_buffer "github.com/woundsight/api/triage-api/internal/buffer"
	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	internal_worker "github.com/woundsight/api/triage-api/internal/worker"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

// WindowAnalyzer scores one batch of audio items. Satisfied by
// internal_acoustic.Analyzer; tests substitute deterministic stubs.
type WindowAnalyzer interface {
	Analyze(ctx context.Context, items []internal_type.FrameItem) (*internal_acoustic.Window, error)
}

// AudioProcessor groups buffered audio items into fixed-size batches and
// scores each batch on the shared worker pool. On stop it drains whatever
// is still buffered into one final partial window, so short utterances
// right before hangup still produce an event.
type AudioProcessor struct {
	logger        commons.Logger
	sessionID     string
	recorder      internal_type.Recorder
	buffer        *internal_buffer.Buffer
	analyzer      WindowAnalyzer
	pool          *internal_worker.Pool
	emitter       internal_type.Emitter
	batchSize     int
	windowSeconds float64

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAudioProcessor wires a consumer loop to one session's audio buffer.
// batchSize of zero or less falls back to a single-item batch.
func NewAudioProcessor(
	logger commons.Logger,
	sessionID string,
	recorder internal_type.Recorder,
	buffer *internal_buffer.Buffer,
	analyzer WindowAnalyzer,
	pool *internal_worker.Pool,
	emitter internal_type.Emitter,
	batchSize int,
	windowSeconds float64,
) *AudioProcessor {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &AudioProcessor{
		logger:        logger,
		sessionID:     sessionID,
		recorder:      recorder,
		buffer:        buffer,
		analyzer:      analyzer,
		pool:          pool,
		emitter:       emitter,
		batchSize:     batchSize,
		windowSeconds: windowSeconds,
	}
}

// Start launches the consumer loop. Calling it twice is a no-op.
func (p *AudioProcessor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.run()
}

// Stop cancels the loop and waits up to timeout for the final drain to
// finish. A timeout of zero or less uses DefaultStopTimeout.
func (p *AudioProcessor) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errStopTimeout("audio", timeout)
	}
}

func (p *AudioProcessor) run() {
	defer close(p.done)
	window := make([]internal_type.FrameItem, 0, p.batchSize)
	for {
		item, err := p.buffer.Get(p.ctx)
		if err != nil {
			p.drain(window)
			return
		}
		window = append(window, item)
		if len(window) >= p.batchSize {
			p.flush(p.ctx, window)
			window = window[:0]
		}
	}
}

// drain pulls whatever is left in the buffer into one last partial window.
// The loop context is already cancelled here, so the flush runs under its
// own short deadline.
func (p *AudioProcessor) drain(window []internal_type.FrameItem) {
	for {
		item, ok := p.buffer.TryGet()
		if !ok {
			break
		}
		window = append(window, item)
	}
	if len(window) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultStopTimeout)
	defer cancel()
	p.flush(ctx, window)
}

// flush scores one window on the pool and emits the audio event. Analysis
// failures are confined to the window.
func (p *AudioProcessor) flush(ctx context.Context, items []internal_type.FrameItem) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("audio window panic", "session_id", p.sessionID, "panic", r)
		}
	}()

	var window *internal_acoustic.Window
	err := p.pool.Do(ctx, func() error {
		w, analyzeErr := p.analyzer.Analyze(ctx, items)
		if analyzeErr != nil {
			return analyzeErr
		}
		window = w
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warnw("audio window analysis failed", "session_id", p.sessionID, "error", err)
		p.emitter.Emit(ctx, internal_events.NewErrorEvent(
			p.sessionID, utils.NowMs(), internal_events.ErrCodeInternal,
			"audio analysis failed for window", internal_events.SeverityWarning))
		return
	}
	// A window with no usable audio produces nothing.
	if window == nil {
		return
	}

	p.recorder.RecordAudio(window.Frames, window.AudioSeconds)
	internal_metrics.FramesProcessed.WithLabelValues("audio").Add(float64(window.Frames))
	internal_metrics.AudioSecondsAnalyzed.Add(window.AudioSeconds)

	event := internal_events.NewAudioEvent(
		p.sessionID, utils.NowMs(), window.Analysis, window.AudioSeconds, window.Frames, p.windowSeconds)
	p.emitter.Emit(ctx, event)
}
