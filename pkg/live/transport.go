package live

import (
	"context"

	"github.com/vango-go/vai-agent/pkg/core/types"
)

// SessionConfig identifies one streaming conversation session.
type SessionConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []types.ToolDeclaration

	// InputMIME tags outbound realtime audio chunks. Defaults to
	// "audio/pcm;rate=16000".
	InputMIME string
}

// ContentPart is one element of an outbound content message.
type ContentPart struct {
	Text       string
	Attachment *types.Attachment
}

// Transport is the bidirectional streaming channel to the backend.
// Open must return only once the channel is established; after Open,
// Events delivers inbound traffic until the transport closes. Close
// is idempotent and causes Events to be closed after a final
// ClosedEvent.
type Transport interface {
	Open(ctx context.Context, cfg SessionConfig) error
	SendRealtimeChunk(mime string, data []byte) error
	SendContent(parts []ContentPart) error
	SendToolResults(results []types.ToolCallResult) error
	Close() error
	Events() <-chan TransportEvent
}

// TransportEvent is an inbound frame from the backend.
type TransportEvent interface {
	transportEventType() string
}

// AudioChunkEvent carries model speech audio for playback.
type AudioChunkEvent struct {
	Data []byte
}

func (AudioChunkEvent) transportEventType() string { return "audio" }

// InputTranscriptEvent is a delta of what the user said.
type InputTranscriptEvent struct {
	Text  string
	Final bool
}

func (InputTranscriptEvent) transportEventType() string { return "input_transcript" }

// OutputTranscriptEvent is a delta of what the agent is saying.
type OutputTranscriptEvent struct {
	Text  string
	Final bool
}

func (OutputTranscriptEvent) transportEventType() string { return "output_transcript" }

// ContentEvent is a structured agent text delta with optional
// grounding citations. Emitted instead of (or alongside) output
// transcripts depending on response modality.
type ContentEvent struct {
	Text      string
	Citations []types.Citation
}

func (ContentEvent) transportEventType() string { return "content" }

// ToolCallEvent carries one batch of tool call requests.
type ToolCallEvent struct {
	Calls []types.ToolCallRequest
}

func (ToolCallEvent) transportEventType() string { return "tool_call" }

// TurnCompleteEvent marks the end of the model's current turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) transportEventType() string { return "turn_complete" }

// InterruptedEvent signals the backend abandoned its current
// utterance (for example because the user started speaking). Unplayed
// audio must be flushed before any later chunk is accepted.
type InterruptedEvent struct{}

func (InterruptedEvent) transportEventType() string { return "interrupted" }

// ClosedEvent is the final event on the stream. Err is nil for a
// clean close and non-nil when the transport failed.
type ClosedEvent struct {
	Err error
}

func (ClosedEvent) transportEventType() string { return "closed" }
