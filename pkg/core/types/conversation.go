package types

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Citation is a grounding reference attached to agent output.
type Citation struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri"`
}

// Attachment references non-text content carried by a turn. Content
// is referenced, not embedded; rendering is the consumer's problem.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Ref      string `json:"ref,omitempty"`
}

// Turn is one logical utterance in the conversation. Text is
// append-only while the turn is open and frozen once Final is set.
type Turn struct {
	Role        Role              `json:"role"`
	Text        string            `json:"text"`
	Final       bool              `json:"final"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Citations   []Citation        `json:"citations,omitempty"`
	ToolCalls   []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResults []ToolCallResult  `json:"tool_results,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
