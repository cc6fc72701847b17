// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_inference

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
	"github.com/woundsight/pkg/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// =============================================================================
// Local Backend (ONNX)
// =============================================================================

const (
	// localInputSize is the square model input; frames are letterboxed into it.
	localInputSize = 640

	// localIoULimit suppresses overlapping boxes of the same class.
	localIoULimit = 0.45
)

// localBackend runs a YOLO-family detector exported to ONNX. The model loads
// lazily on the first frame so configuring the path never delays startup, and
// a load failure surfaces as an ordinary backend error the router can skip.
type localBackend struct {
	logger      commons.Logger
	weightsPath string
	libPath     string
	classNames  []string
	threshold   float64

	mu       sync.Mutex
	loadOnce sync.Once
	loadErr  error
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	attrs    int
	anchors  int
}

// NewLocalBackend builds the on-box inference strategy. classNames maps
// model class indices to wound labels; indices beyond the list fall back to
// their numeric form.
func NewLocalBackend(logger commons.Logger, weightsPath, libPath string, classNames []string, threshold float64) Backend {
	return &localBackend{
		logger:      logger,
		weightsPath: weightsPath,
		libPath:     libPath,
		classNames:  classNames,
		threshold:   threshold,
	}
}

// Name implements Backend.
func (b *localBackend) Name() string {
	return "local"
}

// Detect implements Backend.
func (b *localBackend) Detect(ctx context.Context, img *internal_type.DecodedImage) ([]internal_events.Detection, error) {
	if err := b.ensureLoaded(); err != nil {
		return nil, err
	}

	// The session owns fixed input/output tensors, so runs are serialized.
	b.mu.Lock()
	defer b.mu.Unlock()

	lb := letterboxParams(img.Width, img.Height, localInputSize)
	if err := b.fillInput(img.Mat, lb); err != nil {
		return nil, err
	}
	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("local inference run: %w", err)
	}
	return decodeDetections(b.output.GetData(), b.attrs, b.anchors, lb, img.Width, img.Height, b.classNames, b.threshold), nil
}

// Close releases the session and tensors. Safe when the model never loaded.
func (b *localBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	if b.input != nil {
		b.input.Destroy()
		b.input = nil
	}
	if b.output != nil {
		b.output.Destroy()
		b.output = nil
	}
}

func (b *localBackend) ensureLoaded() error {
	b.loadOnce.Do(func() {
		b.loadErr = b.load()
		if b.loadErr == nil {
			b.logger.Infof("inference: local model loaded path=%s attrs=%d anchors=%d", b.weightsPath, b.attrs, b.anchors)
		}
	})
	return b.loadErr
}

func (b *localBackend) load() error {
	if b.weightsPath == "" {
		return fmt.Errorf("local inference enabled without weights path")
	}
	if err := onnx.EnsureRuntime(b.libPath); err != nil {
		return fmt.Errorf("onnxruntime init: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(b.weightsPath)
	if err != nil {
		return fmt.Errorf("model metadata %s: %w", b.weightsPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model %s declares no inputs or outputs", b.weightsPath)
	}

	// Detector heads export as [1, 4+classes, anchors].
	outDims := outputs[0].Dimensions
	if len(outDims) != 3 || outDims[0] != 1 || outDims[1] <= 4 || outDims[2] <= 0 {
		return fmt.Errorf("model %s has unsupported output shape %v", b.weightsPath, outDims)
	}

	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, localInputSize, localInputSize))
	if err != nil {
		return fmt.Errorf("input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(outDims...))
	if err != nil {
		in.Destroy()
		return fmt.Errorf("output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		b.weightsPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return fmt.Errorf("model session %s: %w", b.weightsPath, err)
	}

	b.session = session
	b.input = in
	b.output = out
	b.attrs = int(outDims[1])
	b.anchors = int(outDims[2])
	return nil
}

// fillInput letterboxes the frame onto a gray square canvas and writes it as
// planar RGB floats in [0,1], the layout detector exports expect.
func (b *localBackend) fillInput(src gocv.Mat, lb letterbox) error {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(lb.newW, lb.newH), 0, 0, gocv.InterpolationLinear)

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), localInputSize, localInputSize, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	roi := canvas.Region(image.Rect(lb.padX, lb.padY, lb.padX+lb.newW, lb.padY+lb.newH))
	resized.CopyTo(&roi)
	roi.Close()

	pixels := canvas.ToBytes()
	data := b.input.GetData()
	plane := localInputSize * localInputSize
	if len(pixels) < plane*3 || len(data) < plane*3 {
		return fmt.Errorf("input buffer size mismatch")
	}
	for i := 0; i < plane; i++ {
		data[i] = float32(pixels[i*3+2]) / 255.0
		data[plane+i] = float32(pixels[i*3+1]) / 255.0
		data[2*plane+i] = float32(pixels[i*3]) / 255.0
	}
	return nil
}

// letterbox captures the scale and padding used to fit a frame into the
// square model input while preserving aspect ratio.
type letterbox struct {
	scale      float64
	padX, padY int
	newW, newH int
}

func letterboxParams(srcW, srcH, dst int) letterbox {
	scale := math.Min(float64(dst)/float64(srcW), float64(dst)/float64(srcH))
	newW := int(math.Round(float64(srcW) * scale))
	newH := int(math.Round(float64(srcH) * scale))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	if newW > dst {
		newW = dst
	}
	if newH > dst {
		newH = dst
	}
	return letterbox{
		scale: scale,
		padX:  (dst - newW) / 2,
		padY:  (dst - newH) / 2,
		newW:  newW,
		newH:  newH,
	}
}

// decodeDetections walks the raw [attrs][anchors] head, keeps anchors whose
// best class score clears the threshold, undoes the letterbox into source
// pixel space and suppresses same-class overlaps.
func decodeDetections(data []float32, attrs, anchors int, lb letterbox, origW, origH int, names []string, threshold float64) []internal_events.Detection {
	classes := attrs - 4
	if classes < 1 || len(data) < attrs*anchors {
		return nil
	}

	var candidates []internal_events.Detection
	for j := 0; j < anchors; j++ {
		best := -1
		var bestScore float32
		for c := 0; c < classes; c++ {
			if s := data[(4+c)*anchors+j]; s > bestScore {
				bestScore = s
				best = c
			}
		}
		if best < 0 || float64(bestScore) < threshold {
			continue
		}

		cx := float64(data[0*anchors+j])
		cy := float64(data[1*anchors+j])
		bw := float64(data[2*anchors+j])
		bh := float64(data[3*anchors+j])

		x := (cx - bw/2 - float64(lb.padX)) / lb.scale
		y := (cy - bh/2 - float64(lb.padY)) / lb.scale
		w := bw / lb.scale
		h := bh / lb.scale

		x = clampFloat(x, 0, float64(origW))
		y = clampFloat(y, 0, float64(origH))
		w = clampFloat(w, 0, float64(origW)-x)
		h = clampFloat(h, 0, float64(origH)-y)
		if w <= 0 || h <= 0 {
			continue
		}

		candidates = append(candidates, internal_events.Detection{
			Cls:            classNameAt(names, best),
			BBox:           internal_events.BBox{X: x, Y: y, Width: w, Height: h},
			Confidence:     float64(bestScore),
			TypeConfidence: float64(bestScore),
		})
	}
	return nonMaxSuppression(candidates, localIoULimit)
}

func classNameAt(names []string, idx int) string {
	if idx >= 0 && idx < len(names) {
		return names[idx]
	}
	return strconv.Itoa(idx)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nonMaxSuppression greedily keeps the highest-confidence box and drops
// same-class boxes overlapping it beyond the IoU limit.
func nonMaxSuppression(detections []internal_events.Detection, iouLimit float64) []internal_events.Detection {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	kept := make([]internal_events.Detection, 0, len(detections))
	suppressed := make([]bool, len(detections))
	for i := range detections {
		if suppressed[i] {
			continue
		}
		kept = append(kept, detections[i])
		for j := i + 1; j < len(detections); j++ {
			if suppressed[j] || detections[j].Cls != detections[i].Cls {
				continue
			}
			if intersectionOverUnion(detections[i].BBox, detections[j].BBox) > iouLimit {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func intersectionOverUnion(a, b internal_events.BBox) float64 {
	ix := math.Max(a.X, b.X)
	iy := math.Max(a.Y, b.Y)
	ix2 := math.Min(a.X+a.Width, b.X+b.Width)
	iy2 := math.Min(a.Y+a.Height, b.Y+b.Height)
	iw := math.Max(0, ix2-ix)
	ih := math.Max(0, iy2-iy)
	inter := iw * ih
	union := a.Width*a.Height + b.Width*b.Height - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
