package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name         string
	server       string
	writeCapable bool
	result       ToolResult
}

func (t *fakeTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:         t.name,
		Description:  "fake",
		Server:       t.server,
		WriteCapable: t.writeCapable,
		Schema:       map[string]any{"type": "object"},
	}
}

func (t *fakeTool) GetName() string        { return t.name }
func (t *fakeTool) GetDescription() string { return "fake" }

func (t *fakeTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	return t.result, nil
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.RegisterServer("fs", []Tool{
		&fakeTool{name: "fs.read", server: "fs"},
		&fakeTool{name: "fs.write", server: "fs", writeCapable: true},
	})
	r.RegisterServer("web", []Tool{
		&fakeTool{name: "web.fetch", server: "web"},
	})
	return r
}

func TestActiveToolsSorted(t *testing.T) {
	r := newTestRegistry()

	infos := r.ActiveTools(ModeAct)
	require.Len(t, infos, 3)
	assert.Equal(t, "fs.read", infos[0].Name)
	assert.Equal(t, "fs.write", infos[1].Name)
	assert.Equal(t, "web.fetch", infos[2].Name)
}

func TestPlanModeHidesWriteCapable(t *testing.T) {
	r := newTestRegistry()

	infos := r.ActiveTools(ModePlan)
	names := toolNames(infos)
	assert.NotContains(t, names, "fs.write")
	assert.Contains(t, names, "fs.read")
	assert.Contains(t, names, "web.fetch")
}

func TestPlanModeHidesExcludedNames(t *testing.T) {
	r := NewRegistry()
	// Not flagged write-capable, but in the closed exclusion set.
	r.RegisterServer(BuiltinServer, []Tool{
		&fakeTool{name: "execute_bash_command", server: BuiltinServer},
		&fakeTool{name: "read_file", server: BuiltinServer},
	})

	names := toolNames(r.ActiveTools(ModePlan))
	assert.NotContains(t, names, "execute_bash_command")
	assert.Contains(t, names, "read_file")
}

func TestDisableTool(t *testing.T) {
	r := newTestRegistry()

	r.SetToolEnabled("fs.read", false)
	assert.NotContains(t, toolNames(r.ActiveTools(ModeAct)), "fs.read")

	_, err := r.Lookup("fs.read")
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, KindDisabled, toolErr.Kind)

	r.SetToolEnabled("fs.read", true)
	_, err = r.Lookup("fs.read")
	assert.NoError(t, err)
}

func TestDisableServer(t *testing.T) {
	r := newTestRegistry()

	r.SetServerEnabled("fs", false)
	names := toolNames(r.ActiveTools(ModeAct))
	assert.NotContains(t, names, "fs.read")
	assert.NotContains(t, names, "fs.write")
	assert.Contains(t, names, "web.fetch")

	_, err := r.Lookup("fs.read")
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, KindDisabled, toolErr.Kind)
}

func TestLookupUnknown(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Lookup("nope")
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, KindNotFound, toolErr.Kind)
	assert.Contains(t, err.Error(), `tool "nope" not found`)
}

func TestRegisterServerReplacePreservesDisablement(t *testing.T) {
	r := newTestRegistry()
	r.SetToolEnabled("fs.read", false)

	// Reconnect: same server, fresh tool list.
	r.RegisterServer("fs", []Tool{
		&fakeTool{name: "fs.read", server: "fs"},
		&fakeTool{name: "fs.stat", server: "fs"},
	})

	names := toolNames(r.ActiveTools(ModeAct))
	assert.NotContains(t, names, "fs.read")
	assert.Contains(t, names, "fs.stat")
	assert.NotContains(t, names, "fs.write")
}

func TestUnregisterServer(t *testing.T) {
	r := newTestRegistry()
	r.UnregisterServer("fs")

	names := toolNames(r.ActiveTools(ModeAct))
	assert.Equal(t, []string{"web.fetch"}, names)

	_, err := r.Lookup("fs.read")
	assert.Error(t, err)
}

func TestApplyDisabledAndPersistence(t *testing.T) {
	r := newTestRegistry()
	r.ApplyDisabled([]string{"web.fetch", "fs.read"}, []string{"fs"})

	assert.Equal(t, []string{"fs.read", "web.fetch"}, r.DisabledTools())
	assert.Equal(t, []string{"fs"}, r.DisabledServers())
	assert.Empty(t, toolNames(r.ActiveTools(ModeAct)))
}

func TestExecuteFillsToolName(t *testing.T) {
	r := NewRegistry()
	r.RegisterServer("s", []Tool{
		&fakeTool{name: "s.op", server: "s", result: ToolResult{Success: true, Content: "done"}},
	})

	result, err := r.Execute(context.Background(), "s.op", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "s.op", result.ToolName)
	assert.Equal(t, "done", result.Content)
}

func TestSnapshotIncludesDisabled(t *testing.T) {
	r := newTestRegistry()
	r.SetToolEnabled("fs.read", false)
	r.SetServerEnabled("web", false)

	infos := r.Snapshot()
	assert.Len(t, infos, 3)
}

func TestErrorsUnwrapAsPackageError(t *testing.T) {
	err := NewNotFoundError("x")
	var toolErr *Error
	assert.True(t, errors.As(err, &toolErr))
}

func toolNames(infos []ToolInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}
