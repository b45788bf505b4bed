package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for the runtime.
type Metrics struct {
	TasksTotal      *prometheus.CounterVec
	TaskRetries     prometheus.Counter
	TaskEscalations prometheus.Counter
	TaskDuration    prometheus.Histogram
	ToolCallsTotal  *prometheus.CounterVec
	LLMRequests     *prometheus.CounterVec
	LLMTokens       *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics registers the runtime instruments against the given registerer
// (the default registerer when nil) and installs them globally.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	globalMetrics = &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tasks_total",
			Help: "Terminal task outcomes by status.",
		}, []string{"status", "agent_type"}),
		TaskRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_task_retries_total",
			Help: "Task attempts beyond the first.",
		}),
		TaskEscalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_task_escalations_total",
			Help: "Tasks re-dispatched to the fallback provider.",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_task_duration_seconds",
			Help:    "Wall-clock task duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Tool invocations by server and outcome.",
		}, []string{"server", "outcome"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Model calls by model and outcome.",
		}, []string{"model", "outcome"}),
		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Token usage by model and direction.",
		}, []string{"model", "direction"}),
	}
	return globalMetrics
}

// GetMetrics returns the globally installed metrics, or nil when metrics are
// disabled. Callers must nil-check.
func GetMetrics() *Metrics {
	return globalMetrics
}
