// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_preprocess

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
)

// ErrInvalidImage marks payloads the decoder cannot turn into a pixel
// matrix. Callers surface it as INVALID_IMAGE_FORMAT and keep the stream
// alive.
var ErrInvalidImage = errors.New("invalid image format")

// Preprocessor decodes inbound frames, enforces the resolution ceiling and
// scores image sharpness. It is stateless and shared by all sessions.
type Preprocessor struct {
	logger        commons.Logger
	maxWidth      int
	maxHeight     int
	blurThreshold float64
}

func New(logger commons.Logger, maxWidth, maxHeight int, blurThreshold float64) *Preprocessor {
	return &Preprocessor{
		logger:        logger,
		maxWidth:      maxWidth,
		maxHeight:     maxHeight,
		blurThreshold: blurThreshold,
	}
}

// Process runs the full per-frame chain: decode, resize to the ceiling,
// score blur. The returned image owns a Mat the caller must Close.
func (p *Preprocessor) Process(item internal_type.FrameItem) (*internal_type.DecodedImage, error) {
	img, err := p.Decode(item)
	if err != nil {
		return nil, err
	}
	if err := p.ResizeToCeiling(img); err != nil {
		img.Close()
		return nil, err
	}
	p.ComputeBlur(img)
	return img, nil
}

// Decode converts an inbound payload to a 3-channel 8-bit BGR matrix. Raw
// BGR planes (explicit dimensions, exact plane size) are wrapped directly;
// anything else goes through the image decoder.
func (p *Preprocessor) Decode(item internal_type.FrameItem) (*internal_type.DecodedImage, error) {
	if len(item.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	if item.Width > 0 && item.Height > 0 && len(item.Payload) == item.Width*item.Height*3 {
		mat, err := gocv.NewMatFromBytes(item.Height, item.Width, gocv.MatTypeCV8UC3, item.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		return &internal_type.DecodedImage{Mat: mat, Width: item.Width, Height: item.Height}, nil
	}

	mat, err := gocv.IMDecode(item.Payload, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: undecodable payload of %d bytes", ErrInvalidImage, len(item.Payload))
	}

	return &internal_type.DecodedImage{Mat: mat, Width: mat.Cols(), Height: mat.Rows()}, nil
}

// ResizeToCeiling scales the image proportionally so both dimensions fit
// within the configured ceiling. Images already inside the ceiling are left
// untouched. Downscaling uses area interpolation.
func (p *Preprocessor) ResizeToCeiling(img *internal_type.DecodedImage) error {
	if img.Width <= p.maxWidth && img.Height <= p.maxHeight {
		return nil
	}

	scale := math.Min(float64(p.maxWidth)/float64(img.Width), float64(p.maxHeight)/float64(img.Height))
	newW := int(math.Round(float64(img.Width) * scale))
	newH := int(math.Round(float64(img.Height) * scale))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := gocv.NewMat()
	gocv.Resize(img.Mat, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationArea)
	img.Mat.Close()
	img.Mat = resized
	img.Width = newW
	img.Height = newH
	return nil
}

// ComputeBlur sets the variance-of-Laplacian sharpness score and flags the
// frame when the score falls below the warning threshold. Higher is sharper.
func (p *Preprocessor) ComputeBlur(img *internal_type.DecodedImage) {
	img.BlurScore = p.blurScore(img.Mat)
	img.QualityWarning = p.qualityWarning(img.BlurScore)
}

func (p *Preprocessor) blurScore(mat gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	laplacian := gocv.NewMat()
	defer laplacian.Close()
	gocv.Laplacian(gray, &laplacian, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(laplacian, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd
}

// qualityWarning flags scores strictly below the threshold; a score exactly
// at the threshold is not blurry.
func (p *Preprocessor) qualityWarning(score float64) string {
	if score < p.blurThreshold {
		return fmt.Sprintf("blurry:score=%.1f", score)
	}
	return ""
}
