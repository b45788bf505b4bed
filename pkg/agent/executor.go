// Package agent runs single agent invocations: the bounded
// prompt/stream/parse/execute loop, the closed role set, and token budget
// trimming.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/llms"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/observability"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/parser"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/tools"
)

// DefaultPerCallTimeout bounds a single tool call.
const DefaultPerCallTimeout = 2 * time.Minute

// EventRecorder receives executor lifecycle events for tracing. A nil
// recorder disables recording.
type EventRecorder interface {
	Event(kind string, payload map[string]any)
}

// ToolCallRecord pairs one performed call with its result.
type ToolCallRecord struct {
	Call   *protocol.ToolCall `json:"call"`
	Result tools.ToolResult   `json:"result"`
}

// Result is the outcome of one invocation.
type Result struct {
	Text             string
	Thinking         string
	ToolCalls        []ToolCallRecord
	LoopLimitReached bool
	Metrics          *protocol.Metrics
	// Messages is the full post-run history, for retain-context chat.
	Messages []*protocol.Message
}

// RunOptions carries the per-invocation context the role spec does not.
type RunOptions struct {
	Model       string
	Mode        tools.Mode
	Think       bool
	TokenBudget int
	// History holds prior conversation turns (no system message). Used by
	// direct chat with retain-context; delegated tasks always start fresh.
	History  []*protocol.Message
	Callback llms.UICallback
	Recorder EventRecorder
}

// Executor runs agent invocations against a provider and a tool registry.
type Executor struct {
	provider       llms.Provider
	registry       *tools.Registry
	parser         *parser.Parser
	logger         *slog.Logger
	perCallTimeout time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(provider llms.Provider, registry *tools.Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		provider:       provider,
		registry:       registry,
		parser:         parser.New(),
		logger:         logger,
		perCallTimeout: DefaultPerCallTimeout,
	}
}

// SetPerCallTimeout overrides the per-tool-call deadline.
func (e *Executor) SetPerCallTimeout(d time.Duration) {
	if d > 0 {
		e.perCallTimeout = d
	}
}

// Run executes one invocation to completion. The returned error covers
// faults the caller may retry (transport loss, cancellation); everything
// the model can recover from stays inside the loop as tool messages.
func (e *Executor) Run(ctx context.Context, spec Spec, userMessage string, opts RunOptions) (*Result, error) {
	tracer := observability.GetTracer("runtime.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentRun,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentType, spec.Type),
			attribute.String(observability.AttrLLMModel, opts.Model),
		),
	)
	defer span.End()

	messages := make([]*protocol.Message, 0, len(opts.History)+2)
	if spec.SystemPrompt != "" {
		messages = append(messages, protocol.SystemMessage(spec.SystemPrompt))
	}
	messages = append(messages, opts.History...)
	messages = append(messages, protocol.UserMessage(userMessage))

	result := &Result{}
	record := func(kind string, payload map[string]any) {
		if opts.Recorder != nil {
			opts.Recorder.Event(kind, payload)
		}
	}
	record("invocation_start", map[string]any{
		"agent_type": spec.Type,
		"model":      opts.Model,
	})

	think := opts.Think && e.provider.SupportsThinking(opts.Model)

	for loop := 0; ; loop++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}

		messages = trimToBudget(messages, opts.TokenBudget)
		toolDefs := e.visibleTools(spec, opts.Mode)

		streamCh, err := e.provider.ChatStream(ctx, llms.ChatRequest{
			Model:    opts.Model,
			Messages: messages,
			Tools:    toolDefs,
			Options:  llms.Options{Temperature: spec.Temperature},
			Think:    think,
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("start model stream: %w", err)
		}

		streamResult, err := llms.Collect(ctx, streamCh, opts.Callback)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if streamResult.Metrics != nil {
			result.Metrics = streamResult.Metrics
		}
		result.Thinking += streamResult.Thinking

		text := streamResult.Text
		calls := streamResult.ToolCalls
		if len(calls) == 0 {
			// No structured events; fall back to parsing the answer text.
			// A parse hit displaces the text for this iteration.
			if parsed := e.parser.Parse(text); len(parsed) > 0 {
				calls = parsed
				text = ""
			}
		}
		record("model_turn", map[string]any{
			"loop":       loop,
			"text_len":   len(text),
			"tool_calls": len(calls),
		})

		if len(calls) == 0 {
			result.Text = text
			break
		}
		if loop >= spec.LoopLimit {
			e.logger.Warn("Agent loop limit reached",
				"agent_type", spec.Type,
				"limit", spec.LoopLimit,
			)
			record("loop_limit", map[string]any{"limit": spec.LoopLimit})
			result.Text = text
			result.LoopLimitReached = true
			break
		}

		messages = append(messages, protocol.AssistantMessage(text, calls))

		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				span.SetStatus(codes.Error, "cancelled")
				return nil, err
			}

			toolResult, err := e.executeCall(ctx, call)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}

			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{Call: call, Result: toolResult})
			record("tool_call", map[string]any{
				"tool":    call.Name,
				"success": toolResult.Success,
			})

			messages = append(messages, protocol.ToolMessage(call, formatToolResult(toolResult)))
		}
	}

	span.SetStatus(codes.Ok, "success")
	record("invocation_end", map[string]any{
		"loop_limit_reached": result.LoopLimitReached,
		"tool_calls":         len(result.ToolCalls),
	})
	if result.Text != "" {
		messages = append(messages, protocol.AssistantMessage(result.Text, nil))
	}
	result.Messages = messages
	return result, nil
}

// executeCall runs one tool call under the per-call deadline. Unknown and
// disabled tools become structured error results the model can react to.
func (e *Executor) executeCall(ctx context.Context, call *protocol.ToolCall) (tools.ToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.perCallTimeout)
	defer cancel()

	result, err := e.registry.Execute(callCtx, call.Name, call.Args)
	if err != nil {
		var regErr *tools.Error
		if errors.As(err, &regErr) {
			return tools.ToolResult{
				Success:  false,
				Error:    regErr.Error(),
				ToolName: call.Name,
			}, nil
		}
		if ctx.Err() != nil {
			// The surrounding invocation was cancelled.
			return tools.ToolResult{}, ctx.Err()
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return tools.ToolResult{
				Success:  false,
				Error:    fmt.Sprintf("tool %s timed out after %v", call.Name, e.perCallTimeout),
				ToolName: call.Name,
			}, nil
		}
		return tools.ToolResult{}, err
	}
	return result, nil
}

// visibleTools intersects the registry's mode-filtered view with the role's
// whitelist.
func (e *Executor) visibleTools(spec Spec, mode tools.Mode) []llms.ToolDefinition {
	active := e.registry.ActiveTools(mode)

	var allowed map[string]bool
	if spec.AllowedTools != nil {
		allowed = make(map[string]bool, len(spec.AllowedTools))
		for _, name := range spec.AllowedTools {
			allowed[name] = true
		}
	}

	defs := make([]llms.ToolDefinition, 0, len(active))
	for _, info := range active {
		if allowed != nil && !allowed[info.Name] {
			continue
		}
		schema := info.Schema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  schema,
		})
	}
	return defs
}

func formatToolResult(result tools.ToolResult) string {
	if result.Success {
		if result.Content == "" {
			return "(no output)"
		}
		return result.Content
	}
	return "Error: " + result.Error
}
