package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/agent"
)

// Aggregator folds ordered task results into one user-facing reply.
type Aggregator struct {
	executor *agent.Executor
}

// NewAggregator creates an aggregator around an executor.
func NewAggregator(executor *agent.Executor) *Aggregator {
	return &Aggregator{executor: executor}
}

// Aggregate runs the aggregator agent over the results. It is invoked even
// when tasks failed; the prompt obliges the model to surface those failures.
func (a *Aggregator) Aggregate(ctx context.Context, userQuery string, results []*TaskResult, opts agent.RunOptions) (string, error) {
	spec, err := agent.SpecFor(agent.RoleAggregator)
	if err != nil {
		return "", err
	}

	runResult, err := a.executor.Run(ctx, spec, buildAggregationMessage(userQuery, results), opts)
	if err != nil {
		return "", err
	}
	return runResult.Text, nil
}

func buildAggregationMessage(userQuery string, results []*TaskResult) string {
	var b strings.Builder
	b.WriteString("Original request:\n")
	b.WriteString(userQuery)
	b.WriteString("\n\nTask results, in execution order:\n")

	for i, res := range results {
		fmt.Fprintf(&b, "\n--- Task %d: %s (%s) status=%s", i+1, res.TaskID, res.AgentType, res.Status)
		if res.Escalated {
			b.WriteString(" escalated")
		}
		b.WriteString(" ---\n")
		switch res.Status {
		case StatusOK:
			b.WriteString(res.Output)
		case StatusFailed:
			fmt.Fprintf(&b, "FAILED: %s", res.Error)
			if res.Partial && res.Output != "" {
				fmt.Fprintf(&b, "\nPartial output before the failure:\n%s", res.Output)
			}
		case StatusSkipped:
			fmt.Fprintf(&b, "SKIPPED: %s", res.Error)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCompose the reply to the original request from these results.")
	return b.String()
}
