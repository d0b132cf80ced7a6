package entity

import "encoding/json"

// Role of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation. Content may be empty for
// assistant turns that only carry tool calls. ToolCallID binds a tool
// result message to the call that produced it.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a request issued by the model to invoke a named tool.
// The ID is provider-issued and unique within a turn. Arguments stay
// raw until validated against the tool's declared schema.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a single tool call. Every
// issued call produces exactly one result; failures are carried as
// text in Content with IsError set, never as an error value.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
