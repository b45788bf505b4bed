package tools

import (
	"context"
	"sort"
	"sync"
	"time"
)

// planModeExcluded is the closed set of write-capable built-ins hidden from
// the model in plan mode. Remote tools are never in this set; their write
// behavior is unknowable from the descriptor.
var planModeExcluded = map[string]bool{
	"write_file":            true,
	"patch_file":            true,
	"delete_file":           true,
	"create_directory":      true,
	"execute_bash_command":  true,
	"execute_python_code":   true,
	"set_system_prompt":     true,
	"update_config_section": true,
	"update_feature_status": true,
	"log_progress":          true,
	"add_test_result":       true,
}

// PlanModeExcluded reports whether a tool name is hidden in plan mode.
func PlanModeExcluded(name string) bool {
	return planModeExcluded[name]
}

// Registry maps qualified tool names to tools and tracks enablement at both
// tool and server granularity. Enable/disable changes apply on next lookup.
type Registry struct {
	mu              sync.RWMutex
	tools           map[string]Tool
	serverTools     map[string][]string
	disabledTools   map[string]bool
	disabledServers map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:           make(map[string]Tool),
		serverTools:     make(map[string][]string),
		disabledTools:   make(map[string]bool),
		disabledServers: make(map[string]bool),
	}
}

// RegisterServer registers (or replaces) a server and its tools. Tool names
// must already be qualified; disablement state for surviving names is kept.
func (r *Registry) RegisterServer(server string, serverTools []Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.serverTools[server] {
		delete(r.tools, name)
	}

	names := make([]string, 0, len(serverTools))
	for _, t := range serverTools {
		name := t.GetName()
		r.tools[name] = t
		names = append(names, name)
	}
	r.serverTools[server] = names
}

// UnregisterServer removes a server and all its tools. Unknown servers are a
// no-op.
func (r *Registry) UnregisterServer(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.serverTools[server] {
		delete(r.tools, name)
	}
	delete(r.serverTools, server)
}

// SetToolEnabled flips a single tool's enablement.
func (r *Registry) SetToolEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		delete(r.disabledTools, name)
	} else {
		r.disabledTools[name] = true
	}
}

// SetServerEnabled flips a whole server's enablement.
func (r *Registry) SetServerEnabled(server string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		delete(r.disabledServers, server)
	} else {
		r.disabledServers[server] = true
	}
}

// ApplyDisabled seeds disablement state from persisted config.
func (r *Registry) ApplyDisabled(tools, servers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range tools {
		r.disabledTools[name] = true
	}
	for _, name := range servers {
		r.disabledServers[name] = true
	}
}

// DisabledTools returns the sorted disabled-tool set for persistence.
func (r *Registry) DisabledTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.disabledTools)
}

// DisabledServers returns the sorted disabled-server set for persistence.
func (r *Registry) DisabledServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.disabledServers)
}

// ActiveTools returns the descriptors visible to the model in the given
// mode, sorted by name. Plan mode hides write-capable built-ins.
func (r *Registry) ActiveTools(mode Mode) []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for name, t := range r.tools {
		if r.disabledTools[name] {
			continue
		}
		info := t.GetInfo()
		if info.Server != "" && r.disabledServers[info.Server] {
			continue
		}
		if mode == ModePlan && (info.WriteCapable || planModeExcluded[name]) {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Snapshot returns every registered descriptor regardless of enablement,
// annotated for trace dumps.
func (r *Registry) Snapshot() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.GetInfo())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Lookup returns the named tool. Disabled tools and tools on disabled
// servers fail with a disabled error; unknown names with not-found.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, NewNotFoundError(name)
	}
	if r.disabledTools[name] {
		return nil, NewDisabledError(name)
	}
	if server := t.GetInfo().Server; server != "" && r.disabledServers[server] {
		return nil, NewDisabledError(name)
	}
	return t, nil
}

// Execute resolves and runs a tool, timing the call.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return ToolResult{}, err
	}

	start := time.Now()
	result, err := t.Execute(ctx, args)
	result.ExecutionTime = time.Since(start)
	if result.ToolName == "" {
		result.ToolName = name
	}
	return result, err
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
