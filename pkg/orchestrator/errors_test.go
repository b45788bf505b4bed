package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/mcp"
)

func TestClassifyContextErrors(t *testing.T) {
	err := classify("t1", context.Canceled)
	assert.Equal(t, KindCancelled, err.Kind)
	assert.Equal(t, "t1", err.TaskID)
	assert.False(t, err.Retryable())

	err = classify("t1", fmt.Errorf("run: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTaskTimeout, err.Kind)
	assert.True(t, err.Retryable())
}

func TestClassifyMCPErrors(t *testing.T) {
	transportErr := &mcp.Error{Kind: mcp.KindTransport, Server: "srv", Op: "call", Message: "connection reset"}
	err := classify("t1", fmt.Errorf("tool: %w", transportErr))
	assert.Equal(t, KindToolTransport, err.Kind)
	assert.True(t, err.Retryable())

	domainErr := &mcp.Error{Kind: mcp.KindTool, Server: "srv", Op: "call", Message: "bad argument"}
	err = classify("t1", domainErr)
	assert.Equal(t, KindToolDomain, err.Kind)
	assert.False(t, err.Retryable())
	assert.Equal(t, "bad argument", err.Message)
}

func TestClassifyPassesThroughOwnKind(t *testing.T) {
	inner := &Error{Kind: KindLoopLimit, Message: "loop limit 8 reached"}
	err := classify("t9", fmt.Errorf("wrapped: %w", inner))
	assert.Equal(t, KindLoopLimit, err.Kind)
	assert.Equal(t, "t9", err.TaskID)
}

func TestClassifyUnknownIsModelError(t *testing.T) {
	err := classify("t1", errors.New("mystery"))
	assert.Equal(t, KindModel, err.Kind)
	assert.True(t, err.Retryable())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindPlanInvalid, Message: "no tasks"}
	assert.Equal(t, "plan_invalid: no tasks", err.Error())

	err.TaskID = "task_2"
	assert.Equal(t, "plan_invalid (task_2): no tasks", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("root")
	err := &Error{Kind: KindModel, Message: "m", Err: inner}
	require.ErrorIs(t, err, inner)
}
