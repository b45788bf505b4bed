package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(path, nil)
	require.NoError(t, err)
	return s, path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "qwen3:8b", cfg.Model)
	assert.True(t, cfg.ContextSettings.RetainContext)
	assert.Equal(t, 5, cfg.AgentSettings.LoopLimit)
	assert.True(t, cfg.Delegation.Enabled)
	assert.Equal(t, 3, cfg.Delegation.MaxParallel)
	assert.Equal(t, "basic", cfg.Trace.Level)
}

func TestNewStoreMissingFileUsesDefaults(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, "qwen3:8b", s.Get().Model)
}

func TestLoadJSONOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"model": "llama3.2:3b",
		"agentSettings": {"loopLimit": 9},
		"mcpServers": {
			"fs": {"command": "python3", "args": ["server.py"], "enabled": false}
		}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:3b", cfg.Model)
	assert.Equal(t, 9, cfg.AgentSettings.LoopLimit)
	// Untouched settings keep their defaults.
	assert.True(t, cfg.Delegation.Enabled)

	entry, ok := cfg.MCPServers["fs"]
	require.True(t, ok)
	assert.True(t, entry.IsDisabled())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: mistral:7b\ndelegation:\n  enabled: false\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", cfg.Model)
	assert.False(t, cfg.Delegation.Enabled)
}

func TestMCPServerEntryDisabledSpellings(t *testing.T) {
	disabled := true
	enabled := true

	assert.False(t, MCPServerEntry{}.IsDisabled())
	assert.True(t, MCPServerEntry{Disabled: &disabled}.IsDisabled())
	assert.False(t, MCPServerEntry{Enabled: &enabled}.IsDisabled())
	// "disabled" wins when both are present.
	assert.True(t, MCPServerEntry{Disabled: &disabled, Enabled: &enabled}.IsDisabled())
}

func TestUpdatePersists(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Update(func(c *Config) { c.Model = "phi4:14b" }))

	reloaded, err := NewStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "phi4:14b", reloaded.Get().Model)
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	s, path := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	changed := make(chan *Config, 1)
	require.NoError(t, s.Watch(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte(`{"model": "watched:1b"}`), 0644))

	select {
	case c := <-changed:
		assert.Equal(t, "watched:1b", c.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
	assert.Equal(t, "watched:1b", s.Get().Model)
}

func TestSectionRendersJSON(t *testing.T) {
	s, _ := newTestStore(t)

	out, err := s.Section("delegation")
	require.NoError(t, err)
	assert.Contains(t, out, `"enabled": true`)
	assert.Contains(t, out, `"maxParallel": 3`)

	whole, err := s.Section("")
	require.NoError(t, err)
	assert.Contains(t, whole, `"model": "qwen3:8b"`)
	assert.Contains(t, whole, `"delegation"`)
}

func TestSectionUnknownListsAvailable(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Section("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config section "nope"`)
	assert.Contains(t, err.Error(), "delegation")
}

func TestUpdateSectionMergesObject(t *testing.T) {
	s, path := newTestStore(t)

	require.NoError(t, s.UpdateSection("delegation", map[string]any{"maxParallel": 5}))
	cfg := s.Get()
	assert.Equal(t, 5, cfg.Delegation.MaxParallel)
	// Sibling keys survive the merge.
	assert.True(t, cfg.Delegation.Enabled)
	assert.Equal(t, 2, cfg.Delegation.RetryLimit)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"maxParallel": 5`)
}

func TestUpdateSectionScalarNeedsValueKey(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateSection("model", map[string]any{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `not an object`)

	require.NoError(t, s.UpdateSection("model", map[string]any{"value": "gemma3:4b"}))
	assert.Equal(t, "gemma3:4b", s.Get().Model)
}

func TestUpdateSectionUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateSection("nope", map[string]any{"a": 1})
	assert.ErrorContains(t, err, `unknown config section "nope"`)
}

func TestUpdateSectionRejectsBadTypes(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateSection("delegation", map[string]any{"maxParallel": "lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid value for section "delegation"`)
	// The bad write must not stick.
	assert.Equal(t, 3, s.Get().Delegation.MaxParallel)
}
