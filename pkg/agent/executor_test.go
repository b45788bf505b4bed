package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/llms"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/tools"
)

// scriptedProvider replays canned turns. The last turn repeats when the
// conversation outlives the script.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    [][]llms.StreamChunk
	requests []llms.ChatRequest
	thinking bool
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var turn []llms.StreamChunk
	if len(p.turns) > 0 {
		turn = p.turns[0]
		if len(p.turns) > 1 {
			p.turns = p.turns[1:]
		}
	}
	p.mu.Unlock()

	ch := make(chan llms.StreamChunk, len(turn)+1)
	for _, chunk := range turn {
		ch <- chunk
	}
	ch <- llms.StreamChunk{Kind: llms.ChunkDone, Metrics: &protocol.Metrics{EvalCount: 3}}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) SupportsThinking(string) bool { return p.thinking }
func (p *scriptedProvider) Close() error                 { return nil }

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) llms.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func textTurn(text string) []llms.StreamChunk {
	return []llms.StreamChunk{{Kind: llms.ChunkText, Text: text}}
}

func toolTurn(name string, args map[string]any) []llms.StreamChunk {
	return []llms.StreamChunk{{
		Kind:     llms.ChunkToolCall,
		ToolCall: &protocol.ToolCall{ID: protocol.NewToolCallID(name), Name: name, Args: args},
	}}
}

type countingTool struct {
	name         string
	writeCapable bool
	mu           sync.Mutex
	calls        int
	content      string
}

func (t *countingTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:         t.name,
		Description:  "test tool",
		Server:       "test",
		WriteCapable: t.writeCapable,
		Schema:       map[string]any{"type": "object"},
	}
}

func (t *countingTool) GetName() string        { return t.name }
func (t *countingTool) GetDescription() string { return "test tool" }

func (t *countingTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return tools.ToolResult{Success: true, Content: t.content, ToolName: t.name}, nil
}

func (t *countingTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func chatSpec(limit int) Spec {
	return Spec{Type: "chat", SystemPrompt: "You are helpful.", LoopLimit: limit}
}

func TestRunPlainAnswer(t *testing.T) {
	provider := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("hello there")}}
	executor := NewExecutor(provider, tools.NewRegistry(), nil)

	result, err := executor.Run(context.Background(), chatSpec(5), "hi", RunOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Text)
	assert.False(t, result.LoopLimitReached)
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, 3, result.Metrics.EvalCount)
	assert.Equal(t, 1, provider.requestCount())

	// First request carries system prompt then user message.
	req := provider.request(0)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, protocol.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[1].Content)

	// The post-run history ends with the assistant's reply.
	require.Len(t, result.Messages, 3)
	assert.Equal(t, protocol.RoleAssistant, result.Messages[2].Role)
	assert.Equal(t, "hello there", result.Messages[2].Content)
}

func TestRunToolRoundTrip(t *testing.T) {
	echo := &countingTool{name: "test.echo", content: "pong"}
	registry := tools.NewRegistry()
	registry.RegisterServer("test", []tools.Tool{echo})

	provider := &scriptedProvider{turns: [][]llms.StreamChunk{
		toolTurn("test.echo", map[string]any{"text": "ping"}),
		textTurn("the tool said pong"),
	}}
	executor := NewExecutor(provider, registry, nil)

	result, err := executor.Run(context.Background(), chatSpec(5), "ping it", RunOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "the tool said pong", result.Text)
	assert.Equal(t, 1, echo.callCount())
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "test.echo", result.ToolCalls[0].Call.Name)
	assert.True(t, result.ToolCalls[0].Result.Success)

	// Second request must carry the assistant call and the tool reply.
	req := provider.request(1)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, protocol.RoleAssistant, req.Messages[2].Role)
	require.Len(t, req.Messages[2].ToolCalls, 1)
	assert.Equal(t, protocol.RoleTool, req.Messages[3].Role)
	assert.Equal(t, "pong", req.Messages[3].Content)
	assert.Equal(t, "test.echo", req.Messages[3].ToolName)
}

func TestRunParserFallbackDisplacesText(t *testing.T) {
	echo := &countingTool{name: "test.echo", content: "ok"}
	registry := tools.NewRegistry()
	registry.RegisterServer("test", []tools.Tool{echo})

	provider := &scriptedProvider{turns: [][]llms.StreamChunk{
		textTurn(`I'll call the tool: {"name": "test.echo", "arguments": {"x": 1}}`),
		textTurn("done"),
	}}
	executor := NewExecutor(provider, registry, nil)

	result, err := executor.Run(context.Background(), chatSpec(5), "go", RunOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 1, echo.callCount())

	// The parsed-out turn contributes no answer text to the history.
	req := provider.request(1)
	assert.Equal(t, protocol.RoleAssistant, req.Messages[2].Role)
	assert.Empty(t, req.Messages[2].Content)
}

func TestRunLoopLimit(t *testing.T) {
	echo := &countingTool{name: "test.echo", content: "again"}
	registry := tools.NewRegistry()
	registry.RegisterServer("test", []tools.Tool{echo})

	// The model requests the tool forever.
	provider := &scriptedProvider{turns: [][]llms.StreamChunk{
		toolTurn("test.echo", nil),
	}}
	executor := NewExecutor(provider, registry, nil)

	result, err := executor.Run(context.Background(), chatSpec(2), "loop", RunOptions{Model: "m"})
	require.NoError(t, err)
	assert.True(t, result.LoopLimitReached)
	assert.Equal(t, 2, echo.callCount())
	assert.Equal(t, 3, provider.requestCount())
}

func TestRunUnknownToolBecomesToolMessage(t *testing.T) {
	provider := &scriptedProvider{turns: [][]llms.StreamChunk{
		toolTurn("nope.missing", nil),
		textTurn("giving up"),
	}}
	executor := NewExecutor(provider, tools.NewRegistry(), nil)

	result, err := executor.Run(context.Background(), chatSpec(5), "go", RunOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "giving up", result.Text)
	require.Len(t, result.ToolCalls, 1)
	assert.False(t, result.ToolCalls[0].Result.Success)
	assert.Contains(t, result.ToolCalls[0].Result.Error, `tool "nope.missing" not found`)

	// The failure reaches the model as a tool message, not a Go error.
	req := provider.request(1)
	assert.Equal(t, protocol.RoleTool, req.Messages[3].Role)
	assert.Contains(t, req.Messages[3].Content, "Error:")
}

func TestRunPlanModeHidesWriteTools(t *testing.T) {
	registry := tools.NewRegistry()
	registry.RegisterServer("test", []tools.Tool{
		&countingTool{name: "test.read"},
		&countingTool{name: "test.write", writeCapable: true},
	})

	provider := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("planned")}}
	executor := NewExecutor(provider, registry, nil)

	_, err := executor.Run(context.Background(), chatSpec(5), "plan", RunOptions{Model: "m", Mode: tools.ModePlan})
	require.NoError(t, err)

	req := provider.request(0)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "test.read", req.Tools[0].Name)
}

func TestRunWhitelistFiltersTools(t *testing.T) {
	registry := tools.NewRegistry()
	registry.RegisterServer("test", []tools.Tool{
		&countingTool{name: "test.a"},
		&countingTool{name: "test.b"},
	})

	provider := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("x")}}
	executor := NewExecutor(provider, registry, nil)

	spec := chatSpec(5)
	spec.AllowedTools = []string{"test.b"}
	_, err := executor.Run(context.Background(), spec, "go", RunOptions{Model: "m"})
	require.NoError(t, err)

	req := provider.request(0)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "test.b", req.Tools[0].Name)

	// An empty whitelist (not nil) means no tools at all.
	provider2 := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("x")}}
	executor2 := NewExecutor(provider2, registry, nil)
	spec.AllowedTools = []string{}
	_, err = executor2.Run(context.Background(), spec, "go", RunOptions{Model: "m"})
	require.NoError(t, err)
	assert.Empty(t, provider2.request(0).Tools)
}

func TestRunThinkRequiresProviderSupport(t *testing.T) {
	provider := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("x")}}
	executor := NewExecutor(provider, tools.NewRegistry(), nil)

	_, err := executor.Run(context.Background(), chatSpec(5), "go", RunOptions{Model: "m", Think: true})
	require.NoError(t, err)
	assert.False(t, provider.request(0).Think)

	provider2 := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("x")}, thinking: true}
	executor2 := NewExecutor(provider2, tools.NewRegistry(), nil)
	_, err = executor2.Run(context.Background(), chatSpec(5), "go", RunOptions{Model: "m", Think: true})
	require.NoError(t, err)
	assert.True(t, provider2.request(0).Think)
}

func TestRunCancelledContext(t *testing.T) {
	provider := &scriptedProvider{turns: [][]llms.StreamChunk{textTurn("x")}}
	executor := NewExecutor(provider, tools.NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Run(ctx, chatSpec(5), "go", RunOptions{Model: "m"})
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRecorder) Event(kind string, payload map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, kind)
	r.mu.Unlock()
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	echo := &countingTool{name: "test.echo", content: "ok"}
	registry := tools.NewRegistry()
	registry.RegisterServer("test", []tools.Tool{echo})

	provider := &scriptedProvider{turns: [][]llms.StreamChunk{
		toolTurn("test.echo", nil),
		textTurn("done"),
	}}
	executor := NewExecutor(provider, registry, nil)

	recorder := &recordingRecorder{}
	_, err := executor.Run(context.Background(), chatSpec(5), "go", RunOptions{Model: "m", Recorder: recorder})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"invocation_start",
		"model_turn",
		"tool_call",
		"model_turn",
		"invocation_end",
	}, recorder.events)
}
