// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_processor owns the per-session consumer loops: one
// goroutine scoring sampled video frames, one batching audio into analysis
// windows. Processors read from the session's bounded buffers, mutate
// counters only through the Recorder contract, and push results to the
// emitter. Per-frame failures stay per-frame; only Stop ends a loop.
package internal_processor

import (
	"fmt"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for a consumer loop to
// drain before giving up. Session teardown must never hang on a wedged
// decode or a slow model.
const DefaultStopTimeout = 2 * time.Second

// errStopTimeout builds the uniform timeout error for both processors.
func errStopTimeout(name string, timeout time.Duration) error {
	return fmt.Errorf("%s processor did not stop within %s", name, timeout)
}
