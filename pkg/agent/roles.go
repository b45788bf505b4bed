package agent

import "fmt"

// Role names form a closed set; plans referencing anything else are invalid.
const (
	RoleFileOps    = "file_ops"
	RoleTestRunner = "test_runner"
	RoleConfig     = "config"
	RoleMemory     = "memory"
	RoleShell      = "shell"
	RoleCodeWriter = "code_writer"
	RoleCodeReader = "code_reader"
	RoleDebugger   = "debugger"
	RoleResearcher = "researcher"
	RoleAggregator = "aggregator"
	RolePlanner    = "planner"
)

// Spec is one agent role: prompt, tool whitelist and loop budget. A nil
// AllowedTools means every active tool is visible; an empty list means none.
type Spec struct {
	Type         string
	SystemPrompt string
	AllowedTools []string
	LoopLimit    int
	Temperature  float64
	// AcceptsPartial lets tasks of this role run on a dependency that
	// failed after producing partial output.
	AcceptsPartial bool
}

const stayOnTask = " Work only on the task you were given; do not expand its scope or " +
	"start work the task does not ask for."

var specs = map[string]Spec{
	RoleFileOps: {
		Type: RoleFileOps,
		SystemPrompt: "You are a file operations specialist. You inspect files and " +
			"directories: read, list, check existence and metadata. You never modify " +
			"anything. Always validate a path with validate_file_path before reading it, " +
			"then use the locked path it returns verbatim." + stayOnTask,
		AllowedTools: []string{
			"read_file", "list_files", "list_directories", "file_exists",
			"get_file_info", "validate_file_path",
		},
		LoopLimit:      10,
		AcceptsPartial: true,
	},
	RoleTestRunner: {
		Type: RoleTestRunner,
		SystemPrompt: "You are a test execution specialist. You run test suites and " +
			"report results precisely: which tests ran, which passed, which failed and " +
			"why. You never edit source or test files." + stayOnTask,
		AllowedTools: []string{
			"run_pytest", "read_file", "list_files", "file_exists", "validate_file_path",
		},
		LoopLimit: 8,
	},
	RoleConfig: {
		Type: RoleConfig,
		SystemPrompt: "You are a configuration specialist. You inspect and update the " +
			"session configuration and report the resulting state." + stayOnTask,
		AllowedTools: []string{
			"get_config", "update_config_section", "get_system_prompt",
			"set_system_prompt", "list_mcp_servers",
		},
		LoopLimit: 8,
	},
	RoleMemory: {
		Type: RoleMemory,
		SystemPrompt: "You are a feature-tracking specialist. You maintain the project " +
			"memory: goals, feature statuses, progress notes and test results." + stayOnTask,
		AllowedTools: []string{
			"get_memory_state", "get_feature_details", "get_goal_details",
			"update_feature_status", "log_progress", "add_test_result",
		},
		LoopLimit:      10,
		AcceptsPartial: true,
	},
	RoleShell: {
		Type: RoleShell,
		SystemPrompt: "You are a shell and scripting specialist. You run bash commands " +
			"and Python snippets, and you may call external tools when they fit the task " +
			"better. Report command output faithfully, including failures." + stayOnTask,
		LoopLimit: 12,
	},
	RoleCodeWriter: {
		Type: RoleCodeWriter,
		SystemPrompt: "You are a code writing specialist, the only role permitted to " +
			"modify source files. Validate every path before writing, use the locked " +
			"path verbatim, and prefer patch_file for targeted edits. Read before you " +
			"write." + stayOnTask,
		AllowedTools: []string{
			"read_file", "write_file", "patch_file", "create_directory", "delete_file",
			"list_files", "file_exists", "get_file_info", "validate_file_path",
		},
		LoopLimit: 15,
	},
	RoleCodeReader: {
		Type: RoleCodeReader,
		SystemPrompt: "You are a code analysis specialist. You read and explain code " +
			"without modifying it: structure, behavior, interfaces, defects you can see " +
			"in the text." + stayOnTask,
		AllowedTools: []string{
			"read_file", "list_files", "list_directories", "file_exists",
			"get_file_info", "validate_file_path",
		},
		LoopLimit:      12,
		AcceptsPartial: true,
	},
	RoleDebugger: {
		Type: RoleDebugger,
		SystemPrompt: "You are a debugging specialist. You reproduce failures, narrow " +
			"them down with targeted commands and reads, and report the root cause with " +
			"evidence. You do not fix code; that is the code writer's job." + stayOnTask,
		AllowedTools: []string{
			"read_file", "list_files", "file_exists", "get_file_info",
			"validate_file_path", "execute_bash_command", "execute_python_code",
			"run_pytest",
		},
		LoopLimit: 15,
	},
	RoleResearcher: {
		Type: RoleResearcher,
		SystemPrompt: "You are a research specialist. You gather information with the " +
			"tools available to you and report findings with their sources. Say plainly " +
			"when you could not find something." + stayOnTask,
		LoopLimit:      12,
		AcceptsPartial: true,
	},
	RoleAggregator: {
		Type: RoleAggregator,
		SystemPrompt: "You combine task results into one reply to the user. Use only " +
			"facts present in the task outputs; never invent information. If any task " +
			"failed or was skipped, say so explicitly and summarize what is missing. " +
			"Answer the user's original question directly.",
		AllowedTools: []string{},
		LoopLimit:    1,
	},
	RolePlanner: {
		Type: RolePlanner,
		SystemPrompt: "You are a planning agent. Decompose the user's request into " +
			"tasks for specialist agents and reply with exactly one fenced json block:\n" +
			"```json\n" +
			`{"tasks": [{"id": "task_1", "agent_type": "<specialist>", "description": "...", "depends_on": [], "expected_output": "..."}]}` + "\n" +
			"```\n" +
			"Rules: agent_type must be one of file_ops, test_runner, config, memory, " +
			"shell, code_writer, code_reader, debugger, researcher. Each description " +
			"must be self-contained: repeat any file path from the user's request " +
			"verbatim, and never refer to another task or its output. depends_on may " +
			"only name earlier tasks. Use the fewest tasks that cover the request.",
		AllowedTools: []string{},
		LoopLimit:    1,
	},
}

// SpecFor returns the role spec for a type name.
func SpecFor(agentType string) (Spec, error) {
	spec, ok := specs[agentType]
	if !ok {
		return Spec{}, fmt.Errorf("unknown agent type %q", agentType)
	}
	return spec, nil
}

// IsSpecialist reports whether a type name is valid in a plan's agent_type
// field. The planner and aggregator are not plannable.
func IsSpecialist(agentType string) bool {
	if agentType == RolePlanner || agentType == RoleAggregator {
		return false
	}
	_, ok := specs[agentType]
	return ok
}

// SpecialistTypes returns the plannable role names.
func SpecialistTypes() []string {
	return []string{
		RoleFileOps, RoleTestRunner, RoleConfig, RoleMemory, RoleShell,
		RoleCodeWriter, RoleCodeReader, RoleDebugger, RoleResearcher,
	}
}
