package live

import "time"

// Config tunes the orchestrator. Zero values take the defaults below.
type Config struct {
	// KeepAliveInterval is how often a silent frame is sent when no
	// other outbound activity occurred.
	KeepAliveInterval time.Duration

	// SilentFrameBytes is the size of the keep-alive PCM frame.
	SilentFrameBytes int

	// InputMIME tags outbound realtime audio chunks.
	InputMIME string

	// VideoFrameInterval is the still-frame sampling cadence while a
	// video feed is enabled.
	VideoFrameInterval time.Duration

	// PollInterval and PollMaxAttempts bound the status poller for
	// async remote operations.
	PollInterval    time.Duration
	PollMaxAttempts int

	// ToolTimeout caps one immediate tool execution.
	ToolTimeout time.Duration

	// TurnFinalizeTimeout force-finalizes an open turn with no delta
	// activity, in case the transport drops a turn_complete.
	TurnFinalizeTimeout time.Duration

	// MaxSessionDuration ends the session when exceeded. Zero means
	// unbounded.
	MaxSessionDuration time.Duration

	// DisableChimes suppresses the connect/disconnect cues.
	DisableChimes bool
}

func (c Config) withDefaults() Config {
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.SilentFrameBytes <= 0 {
		c.SilentFrameBytes = 512
	}
	if c.InputMIME == "" {
		c.InputMIME = "audio/pcm;rate=16000"
	}
	if c.VideoFrameInterval <= 0 {
		c.VideoFrameInterval = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = 60
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.TurnFinalizeTimeout <= 0 {
		c.TurnFinalizeTimeout = 30 * time.Second
	}
	return c
}
