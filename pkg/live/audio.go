package live

// CaptureSource produces PCM audio chunks from a microphone-like
// input device plus a coarse input level.
type CaptureSource interface {
	// Start begins capture. Chunks is valid after Start returns.
	Start() error
	// Chunks delivers captured PCM at the device's native cadence.
	// The channel is closed by Stop.
	Chunks() <-chan []byte
	// Level is the current input volume in [0, 1].
	Level() float64
	// Stop ends capture. Idempotent.
	Stop()
}

// PlaybackSink renders PCM audio chunks from the model in arrival
// order.
type PlaybackSink interface {
	// Enqueue appends a chunk to the playback queue.
	Enqueue(pcm []byte)
	// Flush discards all unplayed queued audio immediately. Used on
	// interruption; must complete before any later Enqueue takes
	// effect.
	Flush()
	// Level is the current output volume in [0, 1].
	Level() float64
	// Close stops playback and releases the device. Idempotent.
	Close()
}

// Frame is one still image sampled from a video feed.
type Frame struct {
	Data     []byte
	MIMEType string
}

// FrameSource supplies still frames from an optional video feed,
// sampled by the orchestrator at a fixed low rate.
type FrameSource interface {
	// NextFrame grabs the most recent frame. An error skips this
	// sample; it is never fatal to the session.
	NextFrame() (Frame, error)
}
