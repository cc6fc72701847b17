// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"gocv.io/x/gocv"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	internal_type "github.com/woundsight/api/triage-api/internal/type"
	"github.com/woundsight/pkg/commons"
)

// =============================================================================
// Remote Backend
// =============================================================================

// remoteBackend posts JPEG-encoded frames to a hosted detection endpoint.
// The confidence parameter is forwarded as an integer percentage, matching
// the Roboflow query convention.
type remoteBackend struct {
	logger    commons.Logger
	client    *resty.Client
	url       string
	apiKey    string
	threshold float64
}

// NewRemoteBackend builds the hosted-inference strategy. Every request runs
// under the given timeout; expiry counts as a failure and the router falls
// through to the next backend.
func NewRemoteBackend(logger commons.Logger, url, apiKey string, timeout time.Duration, threshold float64) Backend {
	return &remoteBackend{
		logger:    logger,
		client:    resty.New().SetTimeout(timeout),
		url:       url,
		apiKey:    apiKey,
		threshold: threshold,
	}
}

// Name implements Backend.
func (b *remoteBackend) Name() string {
	return "remote"
}

// Detect implements Backend.
func (b *remoteBackend) Detect(ctx context.Context, img *internal_type.DecodedImage) ([]internal_events.Detection, error) {
	payload, err := EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":    b.apiKey,
			"confidence": strconv.Itoa(int(b.threshold * 100)),
		}).
		SetFileReader("file", "frame.jpg", bytes.NewReader(payload)).
		Post(b.url)
	if err != nil {
		return nil, fmt.Errorf("remote inference request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote inference status %s", resp.Status())
	}

	// An unparseable body counts as a failure so the router can fall back.
	var parsed remoteResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("remote inference response: %w", err)
	}
	return normalizePredictions(parsed.Predictions), nil
}

// EncodeJPEG serializes a decoded frame for transport to the remote backend.
func EncodeJPEG(img *internal_type.DecodedImage) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img.Mat)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
