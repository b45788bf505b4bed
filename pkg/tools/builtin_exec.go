package tools

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// runCommand executes argv in the working directory and folds stdout, stderr
// and the exit status into a single tool result. Nonzero exit is a tool-level
// failure the model can read, not a Go error.
func (b *Builtins) runCommand(ctx context.Context, toolName string, argv ...string) ToolResult {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var sb strings.Builder
	if out := strings.TrimSpace(stdout.String()); out != "" {
		sb.WriteString(out)
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(errOut)
	}

	if err != nil {
		if ctx.Err() != nil {
			return Failure(toolName, "command cancelled: %v", ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Failure(toolName, "exit code %d\n%s", exitErr.ExitCode(), sb.String())
		}
		return Failure(toolName, "command failed to start: %v", err)
	}

	if sb.Len() == 0 {
		return Success(toolName, "(no output)")
	}
	return Success(toolName, sb.String())
}

type bashArgs struct {
	Command string `json:"command" jsonschema:"description=Shell command to run,required"`
}

func (b *Builtins) executeBashTool() Tool {
	return &builtinTool{
		name:         "execute_bash_command",
		description:  "Run a bash command in the working directory. Returns stdout, stderr and the exit status.",
		writeCapable: true,
		schema:       SchemaFor(&bashArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args bashArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("execute_bash_command", "%v", err)
			}
			if strings.TrimSpace(args.Command) == "" {
				return Failure("execute_bash_command", "command is required")
			}
			return b.runCommand(ctx, "execute_bash_command", "bash", "-c", args.Command)
		},
	}
}

type pythonArgs struct {
	Code string `json:"code" jsonschema:"description=Python source to execute,required"`
}

func (b *Builtins) executePythonTool() Tool {
	return &builtinTool{
		name:         "execute_python_code",
		description:  "Execute a Python snippet with python3 and return its output.",
		writeCapable: true,
		schema:       SchemaFor(&pythonArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pythonArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("execute_python_code", "%v", err)
			}
			if strings.TrimSpace(args.Code) == "" {
				return Failure("execute_python_code", "code is required")
			}
			return b.runCommand(ctx, "execute_python_code", "python3", "-c", args.Code)
		},
	}
}

type pytestArgs struct {
	Path    string `json:"path,omitempty" jsonschema:"description=Test file or directory (defaults to the working directory)"`
	Markers string `json:"markers,omitempty" jsonschema:"description=Pytest -m marker expression"`
	Verbose bool   `json:"verbose,omitempty" jsonschema:"description=Pass -v"`
}

func (b *Builtins) runPytestTool() Tool {
	return &builtinTool{
		name:        "run_pytest",
		description: "Run pytest, optionally scoped to a path and filtered by markers.",
		schema:      SchemaFor(&pytestArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args pytestArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("run_pytest", "%v", err)
			}

			argv := []string{"python3", "-m", "pytest"}
			if args.Path != "" {
				resolved, err := b.resolvePath(args.Path)
				if err != nil {
					return Failure("run_pytest", "%v", err)
				}
				argv = append(argv, resolved)
			}
			if args.Markers != "" {
				argv = append(argv, "-m", args.Markers)
			}
			if args.Verbose {
				argv = append(argv, "-v")
			}

			result := b.runCommand(ctx, "run_pytest", argv...)
			// Pytest exit code 5 means no tests collected; surface that plainly.
			if !result.Success && strings.Contains(result.Error, "exit code 5") {
				return Failure("run_pytest", "no tests collected%s", detail(result.Error))
			}
			return result
		},
	}
}

func detail(errText string) string {
	if i := strings.Index(errText, "\n"); i >= 0 {
		return "\n" + errText[i+1:]
	}
	return ""
}
