// Package orchestrator implements the delegation pipeline: planning,
// plan validation, DAG dispatch of specialist tasks, and aggregation of
// their results into one reply.
package orchestrator

import (
	"time"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/agent"
)

// Task is one unit of delegated work.
type Task struct {
	ID             string   `json:"id"`
	AgentType      string   `json:"agent_type"`
	Description    string   `json:"description"`
	DependsOn      []string `json:"depends_on,omitempty"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
}

// Plan is the planner's validated output.
type Plan struct {
	Tasks []*Task `json:"tasks"`
}

// TaskStatus is a task's terminal state.
type TaskStatus string

const (
	StatusOK      TaskStatus = "ok"
	StatusFailed  TaskStatus = "failed"
	StatusSkipped TaskStatus = "skipped"
)

// TaskResult is one task's terminal record.
type TaskResult struct {
	TaskID    string                 `json:"task_id"`
	AgentType string                 `json:"agent_type"`
	Status    TaskStatus             `json:"status"`
	Output    string                 `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ToolCalls []agent.ToolCallRecord `json:"tool_calls,omitempty"`
	Elapsed   time.Duration          `json:"elapsed"`
	Attempts  int                    `json:"attempts"`
	Escalated bool                   `json:"escalated,omitempty"`
	// Partial marks a failed task that still produced usable output.
	Partial bool `json:"partial,omitempty"`
}
