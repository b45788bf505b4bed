package orchestrator

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/agent"
)

var planFenceRe = regexp.MustCompile("(?s)```(?:json)?[ \t]*\n(.*?)```")

// Planner turns a user query into a validated Plan.
type Planner struct {
	executor *agent.Executor
}

// NewPlanner creates a planner around an executor.
func NewPlanner(executor *agent.Executor) *Planner {
	return &Planner{executor: executor}
}

// Plan runs the planner agent and validates its output. The raw planner
// reply is returned alongside the plan for tracing. Returns a
// KindPlanInvalid error when the model's reply cannot be used.
func (p *Planner) Plan(ctx context.Context, userQuery string, opts agent.RunOptions) (*Plan, string, error) {
	spec, err := agent.SpecFor(agent.RolePlanner)
	if err != nil {
		return nil, "", err
	}

	result, err := p.executor.Run(ctx, spec, userQuery, opts)
	if err != nil {
		return nil, "", err
	}

	plan, err := ExtractPlan(result.Text)
	if err != nil {
		return nil, result.Text, err
	}
	if err := Validate(plan, userQuery); err != nil {
		return nil, result.Text, err
	}
	return plan, result.Text, nil
}

// ExtractPlan pulls the plan JSON out of the model's reply. Prefers a
// fenced block; falls back to treating the whole reply as JSON, with one
// repair pass on either path.
func ExtractPlan(text string) (*Plan, error) {
	candidates := make([]string, 0, 2)
	if m := planFenceRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, strings.TrimSpace(text))

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if plan := decodePlan(candidate); plan != nil {
			return plan, nil
		}
	}
	return nil, NewPlanInvalidError("planner reply contains no parseable plan JSON")
}

func decodePlan(payload string) *Plan {
	var plan Plan
	if err := json.Unmarshal([]byte(payload), &plan); err == nil && len(plan.Tasks) > 0 {
		return &plan
	}
	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &plan); err == nil && len(plan.Tasks) > 0 {
		return &plan
	}
	return nil
}
