package mcp

import "fmt"

// ErrorKind splits call failures by recovery strategy. Transport failures
// are retryable; protocol and tool failures are not.
type ErrorKind string

const (
	// KindTransport covers connection loss, HTTP 5xx and timeouts.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers malformed JSON-RPC responses.
	KindProtocol ErrorKind = "protocol"
	// KindTool carries the server's structured domain failure.
	KindTool ErrorKind = "tool"
	// KindConfig covers invalid server descriptors, detected before any call.
	KindConfig ErrorKind = "config"
)

// Error is a failure from the tool plane.
type Error struct {
	Kind    ErrorKind
	Server  string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("mcp %s error (%s/%s): %s", e.Kind, e.Server, e.Op, e.Message)
	}
	return fmt.Sprintf("mcp %s error (%s): %s", e.Kind, e.Server, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying as-is.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

func newTransportError(server, op string, err error) *Error {
	return &Error{Kind: KindTransport, Server: server, Op: op, Message: err.Error(), Err: err}
}

func newProtocolError(server, op, message string) *Error {
	return &Error{Kind: KindProtocol, Server: server, Op: op, Message: message}
}

func newToolError(server, op, message string) *Error {
	return &Error{Kind: KindTool, Server: server, Op: op, Message: message}
}

// NewConfigError reports an invalid server descriptor.
func NewConfigError(server, message string) *Error {
	return &Error{Kind: KindConfig, Server: server, Message: message}
}
