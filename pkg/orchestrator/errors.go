package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/mcp"
)

// ErrorKind is the orchestration failure taxonomy.
type ErrorKind string

const (
	KindPlanInvalid   ErrorKind = "plan_invalid"
	KindUnknownAgent  ErrorKind = "unknown_agent"
	KindToolTransport ErrorKind = "tool_transport"
	KindToolDomain    ErrorKind = "tool_domain_error"
	KindLoopLimit     ErrorKind = "loop_limit"
	KindTaskTimeout   ErrorKind = "task_timeout"
	KindCancelled     ErrorKind = "cancelled"
	KindModel         ErrorKind = "model_error"
)

// Error is one classified orchestration failure.
type Error struct {
	Kind    ErrorKind
	TaskID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.TaskID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is worth retrying without
// changing anything.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindToolTransport, KindTaskTimeout, KindModel:
		return true
	default:
		return false
	}
}

// NewPlanInvalidError reports a rejected plan.
func NewPlanInvalidError(format string, args ...any) *Error {
	return &Error{Kind: KindPlanInvalid, Message: fmt.Sprintf(format, args...)}
}

// classify folds an arbitrary task failure into the taxonomy.
func classify(taskID string, err error) *Error {
	var orchErr *Error
	if errors.As(err, &orchErr) {
		if orchErr.TaskID == "" {
			orchErr.TaskID = taskID
		}
		return orchErr
	}

	var mcpErr *mcp.Error
	if errors.As(err, &mcpErr) {
		kind := KindToolDomain
		if mcpErr.Retryable() {
			kind = KindToolTransport
		}
		return &Error{Kind: kind, TaskID: taskID, Message: mcpErr.Message, Err: err}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, TaskID: taskID, Message: "cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTaskTimeout, TaskID: taskID, Message: "task wall budget exceeded", Err: err}
	default:
		return &Error{Kind: KindModel, TaskID: taskID, Message: err.Error(), Err: err}
	}
}
