package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/agent"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/observability"
	runtrace "github.com/schwab/mcp-client-for-ollama-sub001/pkg/trace"
)

// Defaults for dispatcher tuning.
const (
	DefaultMaxParallel = 3
	DefaultRetryLimit  = 2
	DefaultTaskTimeout = 10 * time.Minute
)

// EscalationPolicy decides whether a repeatedly failing task should be
// re-dispatched through the fallback provider.
type EscalationPolicy interface {
	ShouldEscalate(task *Task, consecutiveFailures int) bool
}

// Fallback runs a task against an external provider when escalation fires.
type Fallback interface {
	RunTask(ctx context.Context, task *Task, spec agent.Spec, opts agent.RunOptions) (*agent.Result, error)
}

// ModelFallback reruns an escalated task through the same executor with a
// stronger model.
type ModelFallback struct {
	executor *agent.Executor
	model    string
}

// NewModelFallback creates a fallback bound to the given model name.
func NewModelFallback(executor *agent.Executor, model string) *ModelFallback {
	return &ModelFallback{executor: executor, model: model}
}

// RunTask implements Fallback.
func (f *ModelFallback) RunTask(ctx context.Context, task *Task, spec agent.Spec, opts agent.RunOptions) (*agent.Result, error) {
	opts.Model = f.model
	return f.executor.Run(ctx, spec, task.Description, opts)
}

// NeverEscalate disables escalation; tasks just fail.
type NeverEscalate struct{}

func (NeverEscalate) ShouldEscalate(*Task, int) bool { return false }

// EscalateAfter escalates once a task has failed N times in a row.
type EscalateAfter struct {
	Failures int
}

func (e EscalateAfter) ShouldEscalate(_ *Task, consecutiveFailures int) bool {
	return e.Failures > 0 && consecutiveFailures >= e.Failures
}

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	MaxParallel int
	RetryLimit  int
	TaskTimeout time.Duration
	Escalation  EscalationPolicy
	Fallback    Fallback
	Logger      *slog.Logger
}

// Dispatcher runs a validated plan to completion.
type Dispatcher struct {
	executor    *agent.Executor
	maxParallel int64
	retryLimit  int
	taskTimeout time.Duration
	escalation  EscalationPolicy
	fallback    Fallback
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(executor *agent.Executor, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.Escalation == nil {
		cfg.Escalation = NeverEscalate{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		executor:    executor,
		maxParallel: int64(cfg.MaxParallel),
		retryLimit:  cfg.RetryLimit,
		taskTimeout: cfg.TaskTimeout,
		escalation:  cfg.Escalation,
		fallback:    cfg.Fallback,
		logger:      cfg.Logger,
	}
}

// Run executes the plan's tasks in dependency order, sibling tasks in
// parallel up to the configured bound. Task failures are recorded in the
// returned results; the error return is reserved for cancellation.
// Results come back in plan order. traceRun may be nil.
func (d *Dispatcher) Run(ctx context.Context, plan *Plan, opts agent.RunOptions, traceRun *runtrace.Run) ([]*TaskResult, error) {
	tracer := observability.GetTracer("runtime.orchestrator")
	ctx, span := tracer.Start(ctx, observability.SpanPlanRun,
		trace.WithAttributes(attribute.Int("plan.tasks", len(plan.Tasks))),
	)
	defer span.End()

	var mu sync.Mutex
	results := make(map[string]*TaskResult, len(plan.Tasks))
	sem := semaphore.NewWeighted(d.maxParallel)

	terminal := func(id string) (*TaskResult, bool) {
		mu.Lock()
		defer mu.Unlock()
		res, ok := results[id]
		return res, ok
	}

	for {
		if err := ctx.Err(); err != nil {
			return d.ordered(plan, results, &mu), classify("", err)
		}

		// Collect the next wave: tasks whose dependencies are all terminal.
		var wave []*Task
		pending := 0
		for _, task := range plan.Tasks {
			if _, done := terminal(task.ID); done {
				continue
			}
			pending++
			ready := true
			for _, dep := range task.DependsOn {
				if _, done := terminal(dep); !done {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, task)
			}
		}
		if pending == 0 {
			break
		}
		if len(wave) == 0 {
			// Unreachable for validated plans; guard against scheduler bugs.
			return d.ordered(plan, results, &mu),
				NewPlanInvalidError("no runnable tasks with %d pending", pending)
		}

		group, waveCtx := errgroup.WithContext(ctx)
		for _, task := range wave {
			// Skip tasks whose ancestors failed, unless the failure left
			// partial output the dependent role accepts.
			if skipped := d.skipForDependencies(task, terminal); skipped != nil {
				mu.Lock()
				results[task.ID] = skipped
				mu.Unlock()
				d.countTask(skipped)
				continue
			}

			task := task
			group.Go(func() error {
				if err := sem.Acquire(waveCtx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				taskOpts := opts
				if taskTrace := traceRun.Task(task.ID, task.AgentType); taskTrace != nil {
					taskOpts.Recorder = taskTrace
				}
				result := d.runTask(waveCtx, task, taskOpts)
				mu.Lock()
				results[task.ID] = result
				mu.Unlock()
				d.countTask(result)
				return waveCtx.Err()
			})
		}
		if err := group.Wait(); err != nil {
			return d.ordered(plan, results, &mu), classify("", err)
		}
	}

	return d.ordered(plan, results, &mu), nil
}

// skipForDependencies returns a skipped result when an ancestor's failure
// blocks the task, nil when the task may run.
func (d *Dispatcher) skipForDependencies(task *Task, terminal func(string) (*TaskResult, bool)) *TaskResult {
	spec, err := agent.SpecFor(task.AgentType)
	acceptsPartial := err == nil && spec.AcceptsPartial

	for _, dep := range task.DependsOn {
		depResult, ok := terminal(dep)
		if !ok {
			continue
		}
		if depResult.Status == StatusOK {
			continue
		}
		if depResult.Status == StatusFailed && depResult.Partial && acceptsPartial {
			continue
		}
		return &TaskResult{
			TaskID:    task.ID,
			AgentType: task.AgentType,
			Status:    StatusSkipped,
			Error:     fmt.Sprintf("dependency %s %s", dep, depResult.Status),
		}
	}
	return nil
}

// runTask runs one task with retry and optional escalation.
func (d *Dispatcher) runTask(ctx context.Context, task *Task, opts agent.RunOptions) *TaskResult {
	tracer := observability.GetTracer("runtime.orchestrator")
	ctx, span := tracer.Start(ctx, observability.SpanTaskExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrTaskID, task.ID),
			attribute.String(observability.AttrAgentType, task.AgentType),
		),
	)
	defer span.End()

	start := time.Now()
	result := &TaskResult{TaskID: task.ID, AgentType: task.AgentType}
	defer func() {
		result.Elapsed = time.Since(start)
		if m := observability.GetMetrics(); m != nil {
			m.TaskDuration.Observe(result.Elapsed.Seconds())
		}
	}()

	spec, err := agent.SpecFor(task.AgentType)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	var lastErr *Error
	failures := 0
	for attempt := 0; attempt <= d.retryLimit; attempt++ {
		result.Attempts = attempt + 1
		if attempt > 0 {
			if m := observability.GetMetrics(); m != nil {
				m.TaskRetries.Inc()
			}
			d.logger.Info("Retrying task",
				"task", task.ID, "attempt", attempt+1, "last_error", lastErr.Message)
		}

		runResult, runErr := d.attempt(ctx, task, spec, opts, nil)
		if runErr == nil {
			if runResult.LoopLimitReached {
				failures++
				lastErr = &Error{
					Kind:    KindLoopLimit,
					TaskID:  task.ID,
					Message: fmt.Sprintf("loop limit %d reached", spec.LoopLimit),
				}
				result.Output = runResult.Text
				result.ToolCalls = runResult.ToolCalls
				result.Partial = runResult.Text != ""
				// Rerunning a loop-limited task tends to loop again.
				break
			}
			result.Status = StatusOK
			result.Output = runResult.Text
			result.ToolCalls = runResult.ToolCalls
			return result
		}

		failures++
		lastErr = classify(task.ID, runErr)
		if lastErr.Kind == KindCancelled || !lastErr.Retryable() {
			break
		}
	}

	// Local attempts exhausted; see whether escalation applies.
	if d.fallback != nil && lastErr.Kind != KindCancelled &&
		d.escalation.ShouldEscalate(task, failures) {
		if m := observability.GetMetrics(); m != nil {
			m.TaskEscalations.Inc()
		}
		d.logger.Info("Escalating task to fallback provider", "task", task.ID)

		runResult, runErr := d.attempt(ctx, task, spec, opts, d.fallback)
		result.Escalated = true
		result.Attempts++
		if runErr == nil && !runResult.LoopLimitReached {
			result.Status = StatusOK
			result.Output = runResult.Text
			result.ToolCalls = runResult.ToolCalls
			return result
		}
		if runErr != nil {
			lastErr = classify(task.ID, runErr)
		}
	}

	result.Status = StatusFailed
	result.Error = lastErr.Error()
	span.RecordError(lastErr)
	return result
}

// attempt runs one invocation under the task wall budget. The task
// description is the agent's user message verbatim; expected_output is
// dispatcher-side metadata the agent never sees.
func (d *Dispatcher) attempt(ctx context.Context, task *Task, spec agent.Spec, opts agent.RunOptions, fallback Fallback) (*agent.Result, error) {
	taskCtx, cancel := context.WithTimeout(ctx, d.taskTimeout)
	defer cancel()

	// Delegated tasks never inherit conversation history.
	opts.History = nil

	if fallback != nil {
		return fallback.RunTask(taskCtx, task, spec, opts)
	}
	return d.executor.Run(taskCtx, spec, task.Description, opts)
}

func (d *Dispatcher) countTask(result *TaskResult) {
	if m := observability.GetMetrics(); m != nil {
		m.TasksTotal.WithLabelValues(string(result.Status), result.AgentType).Inc()
	}
}

func (d *Dispatcher) ordered(plan *Plan, results map[string]*TaskResult, mu *sync.Mutex) []*TaskResult {
	mu.Lock()
	defer mu.Unlock()

	ordered := make([]*TaskResult, 0, len(results))
	for _, task := range plan.Tasks {
		if res, ok := results[task.ID]; ok {
			ordered = append(ordered, res)
		}
	}
	return ordered
}
