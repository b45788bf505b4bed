// Package protocol defines the message and tool-call types shared between
// the LLM providers, the tool-call parser and the agent executor.
package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single chat message in an agent invocation history.
type Message struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []*ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set on tool-role messages carrying results.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall is a normalized tool invocation request, regardless of whether it
// arrived as a structured streaming event or was parsed out of free text.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// NewToolCallID generates a unique tool-call id.
func NewToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%s", name, uuid.NewString()[:8])
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string, calls []*ToolCall) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds a tool-role message carrying a tool result.
func ToolMessage(call *ToolCall, content string) *Message {
	return &Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// Metrics carries the terminal execution metrics of one model call.
type Metrics struct {
	PromptEvalCount    int           `json:"prompt_eval_count"`
	EvalCount          int           `json:"eval_count"`
	TotalDuration      time.Duration `json:"total_duration"`
	LoadDuration       time.Duration `json:"load_duration"`
	PromptEvalDuration time.Duration `json:"prompt_eval_duration"`
	EvalDuration       time.Duration `json:"eval_duration"`
}

// TotalTokens returns prompt plus completion token counts.
func (m *Metrics) TotalTokens() int {
	if m == nil {
		return 0
	}
	return m.PromptEvalCount + m.EvalCount
}
