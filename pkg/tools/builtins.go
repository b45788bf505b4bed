package tools

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/memory"
)

// BuiltinServer is the server name the built-in tools register under.
const BuiltinServer = "builtin"

// ServerStatus is one entry in the list_mcp_servers report.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
}

// ConfigAccessor exposes the session config file to the config built-ins.
type ConfigAccessor interface {
	// Path returns the canonical config file path. Absolute writes to this
	// path are always permitted.
	Path() string
	// Section renders one named section, or the whole config when empty.
	Section(name string) (string, error)
	// UpdateSection merges values into the named section and persists.
	UpdateSection(name string, values map[string]any) error
}

// BuiltinsOptions configures the built-in toolset.
type BuiltinsOptions struct {
	// WorkDir anchors relative paths. Defaults to the process working dir.
	WorkDir string
	// AllowAbsolute lifts the relative-only path policy. Internal flag, not
	// reachable from tool arguments.
	AllowAbsolute bool
	// Memory backs the feature-tracking operations. Optional.
	Memory *memory.Store
	// Config backs get_config / update_config_section. Optional.
	Config ConfigAccessor
	// ListServers reports catalog state for list_mcp_servers. Optional.
	ListServers func() []ServerStatus
	// GetSystemPrompt / SetSystemPrompt bridge to the owning session's
	// direct-chat prompt. Optional.
	GetSystemPrompt func() string
	SetSystemPrompt func(string)

	Logger *slog.Logger
}

// Builtins is the built-in toolset. One value per process, owned by the
// session layer; no package-level state.
type Builtins struct {
	workDir       string
	allowAbsolute bool
	memory        *memory.Store
	config        ConfigAccessor
	listServers   func() []ServerStatus
	getPrompt     func() string
	setPrompt     func(string)
	logger        *slog.Logger

	// lockedPaths records absolute paths validated via validate_file_path;
	// they stay usable in later calls even under the relative-only policy.
	lockedMu    sync.Mutex
	lockedPaths map[string]bool

	// pathLocks serializes writes per target path.
	pathMu    sync.Mutex
	pathLocks map[string]*sync.Mutex
}

// NewBuiltins creates the toolset.
func NewBuiltins(opts BuiltinsOptions) *Builtins {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builtins{
		workDir:       opts.WorkDir,
		allowAbsolute: opts.AllowAbsolute,
		memory:        opts.Memory,
		config:        opts.Config,
		listServers:   opts.ListServers,
		getPrompt:     opts.GetSystemPrompt,
		setPrompt:     opts.SetSystemPrompt,
		logger:        logger,
		lockedPaths:   make(map[string]bool),
		pathLocks:     make(map[string]*sync.Mutex),
	}
}

// Tools returns every built-in, ready for registry registration under
// BuiltinServer.
func (b *Builtins) Tools() []Tool {
	tools := []Tool{
		b.readFileTool(),
		b.writeFileTool(),
		b.patchFileTool(),
		b.createDirectoryTool(),
		b.deleteFileTool(),
		b.listFilesTool(),
		b.listDirectoriesTool(),
		b.fileExistsTool(),
		b.getFileInfoTool(),
		b.executeBashTool(),
		b.executePythonTool(),
		b.runPytestTool(),
		b.validateFilePathTool(),
		b.getConfigTool(),
		b.updateConfigSectionTool(),
		b.getSystemPromptTool(),
		b.setSystemPromptTool(),
		b.listMCPServersTool(),
	}
	if b.memory != nil {
		tools = append(tools,
			b.getMemoryStateTool(),
			b.getFeatureDetailsTool(),
			b.getGoalDetailsTool(),
			b.updateFeatureStatusTool(),
			b.logProgressTool(),
			b.addTestResultTool(),
		)
	}
	return tools
}

// lockForPath returns the per-path write mutex, creating it on first use.
func (b *Builtins) lockForPath(path string) *sync.Mutex {
	b.pathMu.Lock()
	defer b.pathMu.Unlock()
	mu, ok := b.pathLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		b.pathLocks[path] = mu
	}
	return mu
}

// builtinTool adapts a run function to the Tool interface.
type builtinTool struct {
	name         string
	description  string
	writeCapable bool
	schema       map[string]any
	run          func(ctx context.Context, args map[string]any) ToolResult
}

func (t *builtinTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:         t.name,
		Description:  t.description,
		Schema:       t.schema,
		Server:       BuiltinServer,
		WriteCapable: t.writeCapable,
	}
}

func (t *builtinTool) GetName() string        { return t.name }
func (t *builtinTool) GetDescription() string { return t.description }

func (t *builtinTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	start := time.Now()
	result := t.run(ctx, args)
	result.ToolName = t.name
	result.ExecutionTime = time.Since(start)
	return result, nil
}

var _ Tool = (*builtinTool)(nil)
