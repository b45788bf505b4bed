// Package llms provides the streaming chat provider used by agent
// invocations, plus the stream collector that separates reasoning, answer
// text and structured tool calls.
package llms

import (
	"context"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
)

// ToolDefinition describes a tool in the shape the chat endpoint expects.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Options carries per-request sampling parameters.
type Options struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ChatRequest is one streaming chat call.
type ChatRequest struct {
	Model    string
	Messages []*protocol.Message
	Tools    []ToolDefinition
	Options  Options
	Think    bool
}

// ChunkKind distinguishes the three orthogonal event streams plus terminal
// and error events.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkThinking ChunkKind = "thinking"
	ChunkToolCall ChunkKind = "tool_call"
	ChunkDone     ChunkKind = "done"
	ChunkError    ChunkKind = "error"
)

// StreamChunk is one event from a streaming chat response.
type StreamChunk struct {
	Kind     ChunkKind
	Text     string
	ToolCall *protocol.ToolCall
	Metrics  *protocol.Metrics
	Err      error
}

// Provider is a streaming chat endpoint with tool-call metadata.
type Provider interface {
	// ChatStream starts a streaming chat call. The returned channel is closed
	// after the terminal chunk (done or error) is delivered.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// SupportsThinking reports whether the given model emits reasoning chunks.
	SupportsThinking(model string) bool

	Close() error
}
