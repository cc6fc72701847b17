// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"context"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
)

// Emitter delivers events to the client. Emit reports whether the event was
// handed to the transport; a closed or congested channel drops the event and
// returns false. Implementations never block the calling processor.
type Emitter interface {
	Emit(ctx context.Context, event internal_events.Event) bool
}

// Router resolves detections for a decoded frame. Implementations handle
// backend fallback internally; an error escapes only when every configured
// strategy failed in an unexpected way.
type Router interface {
	Infer(ctx context.Context, img *DecodedImage) ([]internal_events.Detection, error)
}
