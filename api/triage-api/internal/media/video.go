// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"

	"github.com/woundsight/pkg/commons"
)

const (
	decoderDrainTimeout = 2 * time.Second
	decoderExitTimeout  = time.Second
	decoderKillTimeout  = time.Second

	defaultScanCapacity = 16 << 20
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// rtpFrameWriter is the slice of pion's IVF and Annex-B writers the decoder
// uses: RTP in, elementary stream out. Close also closes the underlying
// pipe, signalling EOF to the transcoder.
type rtpFrameWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// VideoDecoder feeds one remote track's RTP into an ffmpeg transcode and
// hands back complete JPEG images. VP8 is containerized as IVF, H.264 as an
// Annex-B stream; ffmpeg emits MJPEG on stdout which is split on JPEG
// markers. A missing ffmpeg binary fails the constructor, not the process:
// the caller degrades that one track and the session keeps running.
type VideoDecoder struct {
	logger commons.Logger
	cmd    *exec.Cmd
	writer rtpFrameWriter
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewVideoDecoder starts the transcode for one track. onFrame is invoked on
// the decoder's own goroutine with a fresh copy of every JPEG produced.
// maxFrameBytes of zero or less uses a default scan ceiling.
func NewVideoDecoder(logger commons.Logger, mimeType string, maxFrameBytes int64, onFrame func(jpeg []byte)) (*VideoDecoder, error) {
	var inputFormat string
	switch {
	case strings.EqualFold(mimeType, pionwebrtc.MimeTypeVP8):
		inputFormat = "ivf"
	case strings.EqualFold(mimeType, pionwebrtc.MimeTypeH264):
		inputFormat = "h264"
	default:
		return nil, fmt.Errorf("unsupported video codec %q", mimeType)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	cmd := exec.Command("ffmpeg", transcodeArgs(inputFormat)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	var writer rtpFrameWriter
	switch inputFormat {
	case "ivf":
		w, err := ivfwriter.NewWith(stdin)
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, fmt.Errorf("ivf writer: %w", err)
		}
		writer = w
	case "h264":
		writer = h264writer.NewWith(stdin)
	}

	d := &VideoDecoder{
		logger: logger,
		cmd:    cmd,
		writer: writer,
		done:   make(chan struct{}),
	}
	scanCap := int(maxFrameBytes) * 2
	if scanCap <= 0 {
		scanCap = defaultScanCapacity
	}
	go d.scanFrames(stdout, scanCap, onFrame)
	go d.relayStderr(stderr)
	return d, nil
}

// transcodeArgs builds the low-latency pipe-to-pipe MJPEG transcode.
func transcodeArgs(inputFormat string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-fflags", "nobuffer", "-flags", "low_delay",
		"-f", inputFormat, "-i", "pipe:0",
		"-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "4", "pipe:1",
	}
}

// WriteRTP forwards one RTP packet into the transcode. Packets written
// after Close are discarded.
func (d *VideoDecoder) WriteRTP(pkt *rtp.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return io.ErrClosedPipe
	}
	return d.writer.WriteRTP(pkt)
}

// Close ends the transcode: stdin is closed so ffmpeg can flush, the tail
// frames are drained, and a process that will not exit is interrupted and
// finally killed. Close is idempotent and bounded.
func (d *VideoDecoder) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.writer.Close(); err != nil {
		d.logger.Debugw("video decoder stdin close", "error", err)
	}

	select {
	case <-d.done:
	case <-time.After(decoderDrainTimeout):
	}

	waited := make(chan error, 1)
	go func() { waited <- d.cmd.Wait() }()
	select {
	case <-waited:
	case <-time.After(decoderExitTimeout):
		_ = d.cmd.Process.Signal(os.Interrupt)
		select {
		case <-waited:
		case <-time.After(decoderKillTimeout):
			d.logger.Warnw("ffmpeg did not exit, killing")
			_ = d.cmd.Process.Kill()
			<-waited
		}
	}
	<-d.done
}

func (d *VideoDecoder) scanFrames(stdout io.Reader, scanCap int, onFrame func([]byte)) {
	defer close(d.done)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), scanCap)
	scanner.Split(ScanJPEGFrames)
	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		onFrame(frame)
	}
	if err := scanner.Err(); err != nil {
		d.logger.Debugw("mjpeg stream ended", "error", err)
	}
}

func (d *VideoDecoder) relayStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			d.logger.Debugf("ffmpeg: %s", line)
		}
	}
}

// ScanJPEGFrames is a bufio.SplitFunc that cuts a concatenated MJPEG byte
// stream into complete JPEG images. Bytes before a start-of-image marker
// are discarded; a truncated trailing image is dropped at EOF.
func ScanJPEGFrames(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Nothing resembling a start marker yet. Keep the final byte in
		// case the marker straddles the read boundary.
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}
	if start > 0 {
		return start, nil, nil
	}
	end := bytes.Index(data[len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	frameLen := len(jpegSOI) + end + len(jpegEOI)
	return frameLen, data[:frameLen], nil
}
