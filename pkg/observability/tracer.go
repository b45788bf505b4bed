// Package observability centralizes tracing and metrics for the runtime.
// Spans wrap every model call and tool call; prometheus counters track task
// and tool outcomes and are served on the web boundary.
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the runtime.
const (
	SpanLLMRequest    = "llm.request"
	SpanToolCall      = "tool.call"
	SpanAgentRun      = "agent.run"
	SpanTaskExecution = "task.execute"
	SpanPlanRun       = "plan.run"
)

// Common attribute keys.
const (
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrToolName        = "tool.name"
	AttrToolServer      = "tool.server"
	AttrAgentType       = "agent.type"
	AttrTaskID          = "task.id"
)

// GetTracer returns a tracer for the named component. Uses the globally
// registered provider; a no-op tracer when none is installed.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
