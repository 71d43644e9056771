package models

import "time"

// MessageKind distinguishes plain text from tool traffic in a transcript.
type MessageKind string

const (
	MessageText        MessageKind = "text"
	MessageToolCalls   MessageKind = "tool_calls"
	MessageToolResults MessageKind = "tool_results"
)

// Message is one transcript entry. Entries are totally ordered by emission.
type Message struct {
	Source      string       `json:"source"`
	Kind        MessageKind  `json:"kind"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TextMessage builds a plain text message.
func TextMessage(source, content string) Message {
	return Message{Source: source, Kind: MessageText, Content: content}
}

// ToolCallMessage builds a message requesting tool invocations.
func ToolCallMessage(source string, calls ...ToolCall) Message {
	return Message{Source: source, Kind: MessageToolCalls, ToolCalls: calls}
}

// ToolCall is a request to invoke a registered tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	// ArgsError is set when the raw arguments could not be decoded.
	ArgsError string `json:"args_error,omitempty"`
}

// ToolResult is the structured outcome of a tool invocation.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool to a role capability.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
