package trace

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelOff, ParseLevel("off"))
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelBasic, ParseLevel(""))
	assert.Equal(t, LevelBasic, ParseLevel("verbose"))
}

func TestSinkOffLevelDisables(t *testing.T) {
	sink := NewSink(Config{Enabled: true, Level: LevelOff})
	assert.False(t, sink.Enabled())
	assert.Nil(t, sink.StartRun("s", "q"))
}

func TestNilRunIsSafe(t *testing.T) {
	var run *Run
	run.SetPlanner("p", "r")
	run.SetPlan(nil)
	run.SetResults(nil)
	run.SetError(errors.New("x"))
	assert.Nil(t, run.Task("t", "shell"))
	assert.NoError(t, run.Finish("reply"))

	var task *TaskTrace
	task.Event("model_turn", nil)
}

func TestRunWritesDocument(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(Config{Enabled: true, Level: LevelFull, Dir: dir})

	run := sink.StartRun("sess-1", "what time is it")
	require.NotNil(t, run)

	run.SetPlanner("plan this", "```json\n{\"tasks\": []}\n```")
	run.SetPlan(map[string]any{"tasks": []any{}})

	task := run.Task("task_1", "shell")
	task.Event("invocation_start", map[string]any{"model": "m"})
	task.Event("model_turn", map[string]any{"loop": 0})
	task.Event("invocation_end", nil)

	run.SetResults([]map[string]any{{"task_id": "task_1", "status": "ok"}})
	require.NoError(t, run.Finish("it is noon"))

	entries, err := os.ReadDir(filepath.Join(dir, "sess-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "run_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".json"))

	data, err := os.ReadFile(filepath.Join(dir, "sess-1", entries[0].Name()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "sess-1", doc["session_id"])
	assert.Equal(t, "what time is it", doc["query"])
	assert.Equal(t, "it is noon", doc["final_reply"])
	assert.Equal(t, "full", doc["level"])

	tasks := doc["tasks"].([]any)
	require.Len(t, tasks, 1)
	events := tasks[0].(map[string]any)["events"].([]any)
	assert.Len(t, events, 3)
}

func TestBasicLevelTruncatesPayloadStrings(t *testing.T) {
	sink := NewSink(Config{Enabled: true, Level: LevelBasic, TruncateBytes: 10})
	run := sink.StartRun("s", "q")
	task := run.Task("t", "shell")

	long := strings.Repeat("x", 50)
	task.Event("tool_call", map[string]any{"output": long, "count": 3})

	require.Len(t, task.Events, 1)
	got := task.Events[0].Payload["output"].(string)
	assert.Contains(t, got, "... [truncated 40 bytes]")
	assert.Less(t, len(got), len(long))
	// Non-string values pass through untouched.
	assert.Equal(t, 3, task.Events[0].Payload["count"])
}

func TestFullLevelKeepsPayloadIntact(t *testing.T) {
	sink := NewSink(Config{Enabled: true, Level: LevelFull, TruncateBytes: 10})
	run := sink.StartRun("s", "q")
	task := run.Task("t", "shell")

	long := strings.Repeat("x", 50)
	task.Event("tool_call", map[string]any{"output": long})
	assert.Equal(t, long, task.Events[0].Payload["output"])
}

func TestSummaryLevelKeepsLifecycleOnly(t *testing.T) {
	sink := NewSink(Config{Enabled: true, Level: LevelSummary})
	run := sink.StartRun("s", "q")
	task := run.Task("t", "shell")

	task.Event("invocation_start", nil)
	task.Event("model_turn", nil)
	task.Event("tool_call", nil)
	task.Event("invocation_end", nil)

	require.Len(t, task.Events, 2)
	assert.Equal(t, "invocation_start", task.Events[0].Kind)
	assert.Equal(t, "invocation_end", task.Events[1].Kind)
}

func TestStreamChunksOnlyAtDebug(t *testing.T) {
	sink := NewSink(Config{Enabled: true, Level: LevelFull})
	run := sink.StartRun("s", "q")
	task := run.Task("t", "shell")
	task.Event("stream_chunk", map[string]any{"text": "a"})
	assert.Empty(t, task.Events)

	sink = NewSink(Config{Enabled: true, Level: LevelDebug})
	run = sink.StartRun("s", "q")
	task = run.Task("t", "shell")
	task.Event("stream_chunk", map[string]any{"text": "a"})
	assert.Len(t, task.Events, 1)
}

func TestSetPlannerTruncatesAtBasic(t *testing.T) {
	sink := NewSink(Config{Enabled: true, Level: LevelBasic, TruncateBytes: 8})
	run := sink.StartRun("s", "q")

	run.SetPlanner(strings.Repeat("p", 20), strings.Repeat("r", 20))
	assert.Contains(t, run.doc.PlannerPrompt, "truncated")
	assert.Contains(t, run.doc.PlannerResponse, "truncated")
}

func TestRunRecordsError(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(Config{Enabled: true, Level: LevelBasic, Dir: dir})
	run := sink.StartRun("s", "q")
	run.SetError(errors.New("plan rejected"))
	require.NoError(t, run.Finish(""))

	entries, err := os.ReadDir(filepath.Join(dir, "s"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "s", entries[0].Name()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "plan rejected", doc["error"])
}
