package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/config"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/tools"
)

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func toolNames(infos []tools.ToolInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func TestNewSessionDefaults(t *testing.T) {
	s := newTestSession(t, Options{})

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "qwen3:8b", s.Model())
	assert.Equal(t, tools.ModeAct, s.Mode())

	names := toolNames(s.ActiveTools())
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "write_file")
	assert.Contains(t, names, "list_files")
	// No memory path means no memory tools.
	assert.NotContains(t, names, "get_memory_state")
}

func TestSessionModelOverride(t *testing.T) {
	s := newTestSession(t, Options{Model: "mistral:7b"})
	assert.Equal(t, "mistral:7b", s.Model())
}

func TestToggleModeFiltersWriteTools(t *testing.T) {
	s := newTestSession(t, Options{})

	assert.Equal(t, tools.ModePlan, s.ToggleMode())
	names := toolNames(s.ActiveTools())
	assert.Contains(t, names, "read_file")
	assert.NotContains(t, names, "write_file")

	assert.Equal(t, tools.ModeAct, s.ToggleMode())
	assert.Contains(t, toolNames(s.ActiveTools()), "write_file")
}

func TestSetModelPersists(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	s := newTestSession(t, Options{ConfigPath: configPath, WorkDir: dir})

	require.Error(t, s.SetModel(""))

	require.NoError(t, s.SetModel("phi4:14b"))
	assert.Equal(t, "phi4:14b", s.Model())

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "phi4:14b", cfg.Model)
}

func TestSetToolEnabledPersists(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	s := newTestSession(t, Options{ConfigPath: configPath, WorkDir: dir})

	require.NoError(t, s.SetToolEnabled("write_file", false))
	assert.NotContains(t, toolNames(s.ActiveTools()), "write_file")

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Contains(t, cfg.DisabledTools, "write_file")

	require.NoError(t, s.SetToolEnabled("write_file", true))
	assert.Contains(t, toolNames(s.ActiveTools()), "write_file")
}

func TestDisabledToolsFromConfigApplyOnStartup(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"disabledTools": ["delete_file"]}`), 0644))

	s := newTestSession(t, Options{ConfigPath: configPath, WorkDir: dir})
	assert.NotContains(t, toolNames(s.ActiveTools()), "delete_file")
}

func TestEnabledToolsMapOverridesDisabledList(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"disabledTools": ["delete_file"],
		"enabledTools": {"delete_file": true, "write_file": false}
	}`), 0644))

	s := newTestSession(t, Options{ConfigPath: configPath, WorkDir: dir})
	names := toolNames(s.ActiveTools())
	// The per-tool map applies after the disabled list.
	assert.Contains(t, names, "delete_file")
	assert.NotContains(t, names, "write_file")
}

func TestMemoryPathEnablesMemoryTools(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, Options{
		WorkDir:    dir,
		MemoryPath: filepath.Join(dir, "memory.json"),
	})

	names := toolNames(s.ActiveTools())
	assert.Contains(t, names, "get_memory_state")
	assert.Contains(t, names, "update_feature_status")
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t, Options{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.ProcessQuery(context.Background(), "hi", nil)
	assert.ErrorContains(t, err, "session is closed")
}
