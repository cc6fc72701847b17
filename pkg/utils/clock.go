// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import "time"

// processStart anchors NowMs to the process start so successive calls are
// driven by the runtime's monotonic clock rather than the wall clock, while
// values stay aligned with epoch milliseconds for client correlation.
var (
	processStart   = time.Now()
	processStartMs = processStart.UnixMilli()
)

// NowMs returns the current time in epoch milliseconds. Successive calls are
// non-decreasing even across wall-clock adjustments.
func NowMs() int64 {
	return processStartMs + time.Since(processStart).Milliseconds()
}

// SinceMs returns the elapsed milliseconds between a NowMs-style timestamp
// and now. Negative inputs from foreign clocks clamp to zero.
func SinceMs(startMs int64) int64 {
	d := NowMs() - startMs
	if d < 0 {
		return 0
	}
	return d
}
