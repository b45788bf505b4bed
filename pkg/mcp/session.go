// Package mcp implements the tool plane: transport sessions against MCP
// servers (stdio, SSE, streamable HTTP), the server catalog that owns them,
// and the adapter exposing remote operations as registry tools.
package mcp

import "context"

// Transport names accepted in server descriptors.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable_http"
)

// ToolDescriptor is one remote operation as advertised by its server.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Session is the uniform transport contract. Implementations are safe for
// concurrent use; calls are cancellable through the context.
type Session interface {
	// ListTools fetches the server's current tool catalog.
	ListTools(ctx context.Context) ([]ToolDescriptor, error)

	// CallTool invokes one operation. Domain failures surface as a
	// KindTool *Error carrying the server's payload; transport loss as
	// KindTransport (retryable); malformed responses as KindProtocol.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// Close tears the session down. Idempotent.
	Close() error
}

// ServerConfig describes one MCP server.
type ServerConfig struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Disabled  bool              `json:"disabled,omitempty"`
}

// Validate checks descriptor completeness and defaults the transport from
// the fields present.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return NewConfigError("", "server name is required")
	}
	if c.Transport == "" {
		if c.Command != "" {
			c.Transport = TransportStdio
		} else if c.URL != "" {
			c.Transport = TransportStreamableHTTP
		}
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return NewConfigError(c.Name, "stdio transport requires a command")
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.URL == "" {
			return NewConfigError(c.Name, c.Transport+" transport requires a url")
		}
	default:
		return NewConfigError(c.Name, "unknown transport "+c.Transport)
	}
	return nil
}

// NewSession opens a session for the descriptor.
func NewSession(ctx context.Context, cfg ServerConfig) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case TransportStdio:
		return newStdioSession(ctx, cfg)
	default:
		return newHTTPSession(ctx, cfg)
	}
}
