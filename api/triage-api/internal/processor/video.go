// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_processor

import (
	"context"
	"errors"
	"sync"
	"time"

	internal_buffer "github.com/woundsight/api/triage-api/internal/buffer"
	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_metrics "github.com/woundsight/api/triage-api/internal/metrics"
	internal_preprocess "github.com/woundsight/api/triage-api/internal/preprocess"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/utils"
)

// VideoProcessor consumes the newest buffered frame, runs the preprocess
// and inference chain, and emits one detection event per processed frame.
// Frame indices count processed frames only: a frame that fails validation
// or inference produces a warning event and leaves the index untouched.
type VideoProcessor struct {
	logger        commons.Logger
	sessionID     string
	recorder      internal_type.Recorder
	buffer        *internal_buffer.Buffer
	pre           *internal_preprocess.Preprocessor
	router        internal_type.Router
	emitter       internal_type.Emitter
	maxFrameBytes int64

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Loop-goroutine state, untouched elsewhere.
	frameIndex      int64
	dropsAtLastEmit int64
}

// NewVideoProcessor wires a consumer loop to one session's frame buffer.
// maxFrameBytes of zero or less disables the payload size guard.
func NewVideoProcessor(
	logger commons.Logger,
	sessionID string,
	recorder internal_type.Recorder,
	buffer *internal_buffer.Buffer,
	pre *internal_preprocess.Preprocessor,
	router internal_type.Router,
	emitter internal_type.Emitter,
	maxFrameBytes int64,
) *VideoProcessor {
	return &VideoProcessor{
		logger:        logger,
		sessionID:     sessionID,
		recorder:      recorder,
		buffer:        buffer,
		pre:           pre,
		router:        router,
		emitter:       emitter,
		maxFrameBytes: maxFrameBytes,
	}
}

// Start launches the consumer loop. Calling it twice is a no-op.
func (p *VideoProcessor) Start() {
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

// Stop cancels the loop and waits up to timeout for it to exit. A timeout
// of zero or less uses DefaultStopTimeout. Stopping a never-started
// processor returns immediately.
func (p *VideoProcessor) Stop(timeout time.Duration) error {
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
		return errStopTimeout("video", timeout)
	}
}

func (p *VideoProcessor) run() {
	defer close(p.done)
	for {
		item, err := p.buffer.Get(p.ctx)
		if err != nil {
			return
		}
		p.processFrame(item)
	}
}

// processFrame runs one frame through the chain. A panic anywhere in the
// chain is confined to this frame: the loop reports it and moves on.
func (p *VideoProcessor) processFrame(item internal_type.FrameItem) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("frame processing panic",
				"session_id", p.sessionID, "frame_index", p.frameIndex, "panic", r)
			p.emitFrameError(internal_events.ErrCodeInternal, "internal error while processing frame")
		}
	}()

	start := time.Now()

	if p.maxFrameBytes > 0 && int64(len(item.Payload)) > p.maxFrameBytes {
		p.logger.Debugw("frame exceeds size limit",
			"session_id", p.sessionID, "bytes", len(item.Payload), "limit", p.maxFrameBytes)
		p.emitFrameError(internal_events.ErrCodeFrameTooLarge, "frame exceeds maximum size")
		return
	}

	img, err := p.pre.Process(item)
	if err != nil {
		code := internal_events.ErrCodeInternal
		if errors.Is(err, internal_preprocess.ErrInvalidImage) {
			code = internal_events.ErrCodeInvalidImageFormat
		}
		p.logger.Debugw("frame decode failed", "session_id", p.sessionID, "error", err)
		p.emitFrameError(code, err.Error())
		return
	}
	defer img.Close()

	wounds, err := p.router.Infer(p.ctx, img)
	if err != nil {
		p.logger.Warnw("inference failed", "session_id", p.sessionID, "error", err)
		p.emitFrameError(internal_events.ErrCodeInferenceFailed, "inference failed for frame")
		return
	}

	droppedTotal := p.buffer.Dropped()
	meta := internal_events.DetectionMetadata{
		ProcessingTimeMs:       float64(time.Since(start).Microseconds()) / 1000.0,
		QualityWarning:         img.QualityWarning,
		FramesDroppedSinceLast: droppedTotal - p.dropsAtLastEmit,
	}
	p.dropsAtLastEmit = droppedTotal

	event := internal_events.NewDetectionEvent(p.sessionID, utils.NowMs(), p.frameIndex, wounds, meta)
	if event.HasWounds {
		p.recorder.RecordDetection(len(wounds))
		internal_metrics.DetectionsEmitted.Add(float64(len(wounds)))
	}
	p.recorder.RecordFrame()
	internal_metrics.FramesProcessed.WithLabelValues("video").Inc()
	p.frameIndex++

	p.emitter.Emit(p.ctx, event)
}

func (p *VideoProcessor) emitFrameError(code, message string) {
	event := internal_events.NewFrameErrorEvent(
		p.sessionID, utils.NowMs(), p.frameIndex, code, message, internal_events.SeverityWarning)
	p.emitter.Emit(p.ctx, event)
}
