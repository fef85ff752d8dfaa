package types

import "fmt"

// ToolCallRequest is a structured action request issued by the model
// mid-conversation. Args are untyped; each tool validates its own
// argument shape at dispatch time.
type ToolCallRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolError is the failure payload of a tool call result.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToolCallResult answers exactly one ToolCallRequest. It carries
// either Output or Error, never both.
type ToolCallResult struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Output map[string]any `json:"output,omitempty"`
	Error  *ToolError     `json:"error,omitempty"`
}

// ErrorResult builds a failed result for the given call.
func ErrorResult(call ToolCallRequest, code, message string) ToolCallResult {
	return ToolCallResult{
		ID:    call.ID,
		Name:  call.Name,
		Error: &ToolError{Code: code, Message: message},
	}
}

// ToolDeclaration describes a callable tool to the model.
type ToolDeclaration struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *JSONSchema `json:"parameters,omitempty"`
}

// JSONSchema is the subset of JSON Schema used for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Required    []string               `json:"required,omitempty"`
}
