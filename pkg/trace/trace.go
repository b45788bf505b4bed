// Package trace implements the opt-in execution trace sink: one JSON
// document per delegation run, written to a session-scoped directory.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level controls how much a trace captures.
type Level string

const (
	LevelOff     Level = "off"
	LevelSummary Level = "summary"
	LevelBasic   Level = "basic"
	LevelFull    Level = "full"
	LevelDebug   Level = "debug"
)

// DefaultTruncateBytes is the string cap applied at the basic level.
const DefaultTruncateBytes = 2048

// ParseLevel maps a config string to a Level, defaulting to basic.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelOff, LevelSummary, LevelBasic, LevelFull, LevelDebug:
		return Level(s)
	default:
		return LevelBasic
	}
}

// Config configures a sink.
type Config struct {
	Enabled       bool
	Level         Level
	Dir           string
	TruncateBytes int
}

// Sink creates runs. A disabled sink hands out no-op runs.
type Sink struct {
	cfg Config
}

// NewSink creates a sink.
func NewSink(cfg Config) *Sink {
	if cfg.Level == "" {
		cfg.Level = LevelBasic
	}
	if cfg.TruncateBytes <= 0 {
		cfg.TruncateBytes = DefaultTruncateBytes
	}
	if cfg.Level == LevelOff {
		cfg.Enabled = false
	}
	return &Sink{cfg: cfg}
}

// Enabled reports whether runs will be written.
func (s *Sink) Enabled() bool {
	return s.cfg.Enabled
}

// Event is one appended entry in a task's event list.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// TaskTrace collects one task's events. Implements the executor's
// EventRecorder contract.
type TaskTrace struct {
	TaskID    string    `json:"task_id"`
	AgentType string    `json:"agent_type"`
	StartedAt time.Time `json:"started_at"`
	Events    []Event   `json:"events,omitempty"`

	run *Run
	mu  sync.Mutex
}

// Event appends one event. Payload strings are truncated at the basic
// level; at the summary level only lifecycle events are kept.
func (t *TaskTrace) Event(kind string, payload map[string]any) {
	if t == nil || t.run == nil {
		return
	}
	level := t.run.sink.cfg.Level
	if level == LevelSummary && kind != "invocation_start" && kind != "invocation_end" {
		return
	}
	if kind == "stream_chunk" && level != LevelDebug {
		return
	}
	if level == LevelBasic || level == LevelSummary {
		payload = truncatePayload(payload, t.run.sink.cfg.TruncateBytes)
	}

	t.mu.Lock()
	t.Events = append(t.Events, Event{Timestamp: time.Now(), Kind: kind, Payload: payload})
	t.mu.Unlock()
}

// runDocument is the serialized shape of one run.
type runDocument struct {
	SessionID       string       `json:"session_id"`
	Query           string       `json:"query"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	Level           Level        `json:"level"`
	PlannerPrompt   string       `json:"planner_prompt,omitempty"`
	PlannerResponse string       `json:"planner_response,omitempty"`
	Plan            any          `json:"plan,omitempty"`
	Tasks           []*TaskTrace `json:"tasks,omitempty"`
	Results         any          `json:"results,omitempty"`
	FinalReply      string       `json:"final_reply,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// Run accumulates one delegation run. A nil Run is a valid no-op.
type Run struct {
	sink *Sink
	mu   sync.Mutex
	doc  runDocument
}

// StartRun opens a run document. Returns nil when the sink is disabled;
// all Run methods tolerate a nil receiver.
func (s *Sink) StartRun(sessionID, query string) *Run {
	if !s.cfg.Enabled {
		return nil
	}
	return &Run{
		sink: s,
		doc: runDocument{
			SessionID: sessionID,
			Query:     query,
			StartedAt: time.Now(),
			Level:     s.cfg.Level,
		},
	}
}

// SetPlanner records the planner exchange.
func (r *Run) SetPlanner(prompt, response string) {
	if r == nil {
		return
	}
	if r.sink.cfg.Level == LevelBasic || r.sink.cfg.Level == LevelSummary {
		prompt = truncateString(prompt, r.sink.cfg.TruncateBytes)
		response = truncateString(response, r.sink.cfg.TruncateBytes)
	}
	r.mu.Lock()
	r.doc.PlannerPrompt = prompt
	r.doc.PlannerResponse = response
	r.mu.Unlock()
}

// SetPlan records the validated plan.
func (r *Run) SetPlan(plan any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.doc.Plan = plan
	r.mu.Unlock()
}

// SetResults records the terminal task results.
func (r *Run) SetResults(results any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.doc.Results = results
	r.mu.Unlock()
}

// SetError records a run-level failure.
func (r *Run) SetError(err error) {
	if r == nil || err == nil {
		return
	}
	r.mu.Lock()
	r.doc.Error = err.Error()
	r.mu.Unlock()
}

// Task opens a task trace appended to the run.
func (r *Run) Task(taskID, agentType string) *TaskTrace {
	if r == nil {
		return nil
	}
	t := &TaskTrace{
		TaskID:    taskID,
		AgentType: agentType,
		StartedAt: time.Now(),
		run:       r,
	}
	r.mu.Lock()
	r.doc.Tasks = append(r.doc.Tasks, t)
	r.mu.Unlock()
	return t
}

// Finish writes the run document. The filename carries the start
// timestamp; the directory is scoped per session.
func (r *Run) Finish(finalReply string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.doc.FinalReply = finalReply
	r.doc.FinishedAt = time.Now()
	doc := r.doc
	r.mu.Unlock()

	dir := filepath.Join(r.sink.cfg.Dir, doc.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	filename := fmt.Sprintf("run_%s.json", doc.StartedAt.Format("20060102_150405.000"))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	return nil
}

func truncateString(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	return s[:cap] + fmt.Sprintf("... [truncated %d bytes]", len(s)-cap)
}

func truncatePayload(payload map[string]any, cap int) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = truncateString(s, cap)
			continue
		}
		out[k] = v
	}
	return out
}
