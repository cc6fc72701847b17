// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

// Recorder is the processor-facing slice of a session: counter mutations go
// through these methods and nowhere else. Implementations are safe for
// concurrent use by the video and audio processors.
type Recorder interface {
	// RecordReceived counts a frame handed to the pipeline by a producer.
	RecordReceived()
	// RecordFrame counts a successfully processed video frame and refreshes
	// the activity timestamp.
	RecordFrame()
	// RecordDropped counts one frame evicted by a buffer overflow.
	RecordDropped()
	// RecordDetection counts n emitted detections and refreshes activity.
	RecordDetection(n int)
	// RecordAudio counts an analyzed audio window and its duration.
	RecordAudio(frames int, seconds float64)
}
