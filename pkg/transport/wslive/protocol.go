// Package wslive implements the live transport over a websocket
// gateway speaking a JSON frame protocol. It is the self-hosted
// alternative to the direct Gemini transport.
package wslive

import "github.com/vango-go/vai-agent/pkg/core/types"

// Client frame types.
const (
	clientFrameSetup       = "setup"
	clientFrameAudio       = "audio"
	clientFrameContent     = "content"
	clientFrameToolResults = "tool_results"
)

// Server frame types.
const (
	serverFrameReady            = "ready"
	serverFrameAudio            = "audio"
	serverFrameInputTranscript  = "input_transcript"
	serverFrameOutputTranscript = "output_transcript"
	serverFrameContent          = "content"
	serverFrameToolCall         = "tool_call"
	serverFrameTurnComplete     = "turn_complete"
	serverFrameInterrupted      = "interrupted"
	serverFrameError            = "error"
)

type setupPayload struct {
	Model             string                  `json:"model"`
	Voice             string                  `json:"voice,omitempty"`
	SystemInstruction string                  `json:"system_instruction,omitempty"`
	Tools             []types.ToolDeclaration `json:"tools,omitempty"`
	InputMIME         string                  `json:"input_mime,omitempty"`
}

type audioPayload struct {
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data"`
}

type contentPartPayload struct {
	Text       string            `json:"text,omitempty"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
}

type clientFrame struct {
	Type        string                 `json:"type"`
	Setup       *setupPayload          `json:"setup,omitempty"`
	Audio       *audioPayload          `json:"audio,omitempty"`
	Parts       []contentPartPayload   `json:"parts,omitempty"`
	ToolResults []types.ToolCallResult `json:"tool_results,omitempty"`
}

type transcriptPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

type serverContentPayload struct {
	Text      string           `json:"text"`
	Citations []types.Citation `json:"citations,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverFrame struct {
	Type       string                  `json:"type"`
	SessionID  string                  `json:"session_id,omitempty"`
	Audio      *audioPayload           `json:"audio,omitempty"`
	Transcript *transcriptPayload      `json:"transcript,omitempty"`
	Content    *serverContentPayload   `json:"content,omitempty"`
	Calls      []types.ToolCallRequest `json:"calls,omitempty"`
	Error      *errorPayload           `json:"error,omitempty"`
}
