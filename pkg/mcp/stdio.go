package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const clientName = "ollmcp"

// stdioSession wraps an mcp-go subprocess client. Calls are serialized; the
// underlying pipe carries one request at a time.
type stdioSession struct {
	server string

	mu     sync.Mutex
	client *mcpclient.Client
}

func newStdioSession(ctx context.Context, cfg ServerConfig) (*stdioSession, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, newTransportError(cfg.Name, "connect", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, newTransportError(cfg.Name, "connect", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    clientName,
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = ProtocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, newTransportError(cfg.Name, "initialize", err)
	}

	slog.Info("Connected to MCP server (stdio)",
		"server", cfg.Name,
		"command", cfg.Command,
	)

	return &stdioSession{server: cfg.Name, client: mcpClient}, nil
}

func (s *stdioSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, newTransportError(s.server, "tools/list", fmt.Errorf("session closed"))
	}

	resp, err := s.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, newTransportError(s.server, "tools/list", err)
	}

	descriptors := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertSchema(t.InputSchema),
		})
	}
	return descriptors, nil
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return "", newTransportError(s.server, name, fmt.Errorf("session closed"))
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newTransportError(s.server, name, err)
	}

	content := collectText(resp)
	if resp.IsError {
		if content == "" {
			content = "unknown tool error"
		}
		return "", newToolError(s.server, name, content)
	}
	return content, nil
}

func (s *stdioSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func collectText(resp *mcpgo.CallToolResult) string {
	var out string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcpgo.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += textContent.Text
		}
	}
	return out
}

func convertSchema(schema mcpgo.ToolInputSchema) map[string]any {
	out := map[string]any{"type": schema.Type}
	if len(schema.Properties) > 0 {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	if schema.Type == "" {
		out["type"] = "object"
	}
	return out
}

var _ Session = (*stdioSession)(nil)
