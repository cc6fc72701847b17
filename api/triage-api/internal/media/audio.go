// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_media decodes inbound RTP media into the forms the
// pipeline consumes: mono PCM16 for audio tracks, JPEG images for video
// tracks. Decoders live on the producer side of the buffers; one instance
// serves one track and is not safe for concurrent use.
package internal_media

import (
	"encoding/binary"
	"fmt"
	"strings"

	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/zaf/g711"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusSampleRate = 48000
	g711SampleRate = 8000

	// maxOpusFrameSamples covers the longest legal Opus frame, 120 ms at
	// 48 kHz.
	maxOpusFrameSamples = 5760
)

// AudioDecoder turns one RTP payload into mono PCM16 at a fixed rate.
type AudioDecoder interface {
	SampleRate() int
	Decode(payload []byte) ([]int16, error)
}

// NewAudioDecoder picks a decoder for the negotiated codec. Opus decodes
// at 48 kHz with stereo sources downmixed; PCMU and PCMA decode at 8 kHz.
func NewAudioDecoder(mimeType string) (AudioDecoder, error) {
	switch {
	case strings.EqualFold(mimeType, pionwebrtc.MimeTypeOpus):
		return newOpusDecoder()
	case strings.EqualFold(mimeType, pionwebrtc.MimeTypePCMU):
		return &g711Decoder{ulaw: true}, nil
	case strings.EqualFold(mimeType, pionwebrtc.MimeTypePCMA):
		return &g711Decoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio codec %q", mimeType)
	}
}

type opusDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := opus.NewDecoder(opusSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &opusDecoder{
		dec: dec,
		pcm: make([]int16, maxOpusFrameSamples),
	}, nil
}

func (d *opusDecoder) SampleRate() int {
	return opusSampleRate
}

func (d *opusDecoder) Decode(payload []byte) ([]int16, error) {
	n, err := d.dec.Decode(payload, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	out := make([]int16, n)
	copy(out, d.pcm[:n])
	return out, nil
}

type g711Decoder struct {
	ulaw bool
}

func (d *g711Decoder) SampleRate() int {
	return g711SampleRate
}

func (d *g711Decoder) Decode(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var lpcm []byte
	if d.ulaw {
		lpcm = g711.DecodeUlaw(payload)
	} else {
		lpcm = g711.DecodeAlaw(payload)
	}
	pcm := make([]int16, len(lpcm)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(lpcm[2*i:]))
	}
	return pcm, nil
}
