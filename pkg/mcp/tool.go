package mcp

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/observability"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/tools"
)

// remoteTool exposes one server operation as a registry tool under the
// qualified name "server.op".
type remoteTool struct {
	server     string
	op         string
	descriptor ToolDescriptor
	session    Session
}

func newRemoteTool(server string, descriptor ToolDescriptor, session Session) *remoteTool {
	return &remoteTool{
		server:     server,
		op:         descriptor.Name,
		descriptor: descriptor,
		session:    session,
	}
}

func (t *remoteTool) GetName() string {
	return t.server + "." + t.op
}

func (t *remoteTool) GetDescription() string {
	return t.descriptor.Description
}

func (t *remoteTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        t.GetName(),
		Description: t.descriptor.Description,
		Schema:      t.descriptor.InputSchema,
		Server:      t.server,
	}
}

// Execute invokes the remote operation. Domain failures become failed tool
// results the model can read; transport and protocol failures return as Go
// errors for the caller's retry logic.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	tracer := observability.GetTracer("runtime.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolCall,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, t.op),
			attribute.String(observability.AttrToolServer, t.server),
		),
	)
	defer span.End()

	content, err := t.session.CallTool(ctx, t.op, args)
	if err != nil {
		var mcpErr *Error
		if errors.As(err, &mcpErr) && mcpErr.Kind == KindTool {
			t.countCall("tool_error")
			return tools.ToolResult{
				Success:  false,
				Error:    mcpErr.Message,
				ToolName: t.GetName(),
			}, nil
		}
		span.RecordError(err)
		t.countCall("error")
		return tools.ToolResult{}, err
	}

	t.countCall("ok")
	return tools.ToolResult{
		Success:  true,
		Content:  content,
		ToolName: t.GetName(),
	}, nil
}

func (t *remoteTool) countCall(outcome string) {
	if m := observability.GetMetrics(); m != nil {
		m.ToolCallsTotal.WithLabelValues(t.server, outcome).Inc()
	}
}

var _ tools.Tool = (*remoteTool)(nil)
