package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/agent"
)

var (
	// taskRefRe matches id-shaped task references and the phrasings planners
	// use to chain outputs. Ordinary English uses of the word "task" must
	// not match.
	taskRefRe = regexp.MustCompile(`(?i)\b(task_\d+|the (previous|prior|earlier|above) task|output of task)\b`)
	// pathRe picks path-like tokens out of a user query: something with a
	// slash, or a bare file name with an extension.
	pathRe = regexp.MustCompile(`[\w.~-]+(?:/[\w.~-]+)+|\b[\w-]+\.[A-Za-z]{1,5}\b`)
	// memoryTermRe recognizes requests that actually ask for feature, goal
	// or progress bookkeeping.
	memoryTermRe = regexp.MustCompile(`(?i)\b(memor\w*|features?|goals?|progress|track\w*|test results?)\b`)
)

// Validate rejects malformed plans before any task runs. userQuery feeds
// the path-embedding lint; pass the original query verbatim.
func Validate(plan *Plan, userQuery string) error {
	if plan == nil || len(plan.Tasks) == 0 {
		return NewPlanInvalidError("plan contains no tasks")
	}

	seen := make(map[string]bool, len(plan.Tasks))
	for i, task := range plan.Tasks {
		if task.ID == "" {
			return NewPlanInvalidError("task %d has no id", i)
		}
		if seen[task.ID] {
			return NewPlanInvalidError("duplicate task id %q", task.ID)
		}
		if strings.TrimSpace(task.Description) == "" {
			return NewPlanInvalidError("task %q has an empty description", task.ID)
		}

		if !agent.IsSpecialist(task.AgentType) {
			return &Error{
				Kind:    KindUnknownAgent,
				TaskID:  task.ID,
				Message: fmt.Sprintf("agent type %q is not a known specialist", task.AgentType),
			}
		}

		// Dependencies may only point backwards; this also rules out cycles.
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return NewPlanInvalidError("task %q depends on itself", task.ID)
			}
			if !seen[dep] {
				return NewPlanInvalidError("task %q depends on %q, which is not declared before it", task.ID, dep)
			}
		}
		seen[task.ID] = true

		if err := lintDescription(task); err != nil {
			return err
		}
	}

	if err := lintPaths(plan, userQuery); err != nil {
		return err
	}
	return lintStayOnTask(plan, userQuery)
}

// lintDescription rejects descriptions that reference other tasks' outputs;
// every task must be self-contained.
func lintDescription(task *Task) error {
	if match := taskRefRe.FindString(task.Description); match != "" {
		return NewPlanInvalidError(
			"task %q description references another task (%q); descriptions must be self-contained",
			task.ID, match)
	}
	return nil
}

// lintStayOnTask rejects memory-bookkeeping tasks the request never asked
// for. Planners tend to append feature-tracking work whenever memory context
// is visible in the prompt.
func lintStayOnTask(plan *Plan, userQuery string) error {
	if memoryTermRe.MatchString(userQuery) {
		return nil
	}
	for _, task := range plan.Tasks {
		if task.AgentType == agent.RoleMemory {
			return NewPlanInvalidError(
				"task %q adds memory bookkeeping the request did not ask for", task.ID)
		}
	}
	return nil
}

// lintPaths checks that paths from the user query appear verbatim in tasks
// that operate on them. A task mentioning only a path's base name has
// paraphrased it, which is how path hallucination starts.
func lintPaths(plan *Plan, userQuery string) error {
	for _, path := range pathRe.FindAllString(userQuery, -1) {
		if !strings.Contains(path, "/") {
			continue
		}
		base := path[strings.LastIndex(path, "/")+1:]
		if base == "" {
			continue
		}
		for _, task := range plan.Tasks {
			if strings.Contains(task.Description, base) && !strings.Contains(task.Description, path) {
				return NewPlanInvalidError(
					"task %q refers to %q but not the full path %q from the request; paths must be embedded verbatim",
					task.ID, base, path)
			}
		}
	}
	return nil
}
