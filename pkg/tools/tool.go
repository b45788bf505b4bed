// Package tools defines the tool model shared by built-in and remote tools,
// the registry that decides which tools the model may see and call, and the
// built-in toolset.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// Mode selects which tools are visible to the model.
type Mode string

const (
	// ModeAct exposes every enabled tool.
	ModeAct Mode = "act"
	// ModePlan additionally hides write-capable built-ins.
	ModePlan Mode = "plan"
)

// ToolInfo is the descriptor advertised to models and callers.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
	Server      string         `json:"server,omitempty"`
	// WriteCapable marks built-ins hidden in plan mode.
	WriteCapable bool `json:"write_capable,omitempty"`
}

// ToolResult is the outcome of a single execution. Failures that the model
// should see (bad arguments, missing files, nonzero exit) set Success=false
// with a descriptive Error; the Go error return is reserved for faults the
// caller handles (transport loss, cancellation).
type ToolResult struct {
	Success       bool          `json:"success"`
	Content       string        `json:"content,omitempty"`
	Error         string        `json:"error,omitempty"`
	ToolName      string        `json:"tool_name"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
}

// Tool is one callable tool.
type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]any) (ToolResult, error)

	GetName() string

	GetDescription() string
}

// SchemaFor reflects a JSON schema from an args struct. Field descriptions
// come from `jsonschema:"description=..."` tags.
func SchemaFor(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)

	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	// The envelope keys are schema metadata, not part of the input contract.
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DecodeArgs decodes a raw argument map into a typed args struct, coercing
// the loose types models produce (float64 counts, stringified booleans).
func DecodeArgs(args map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Failure builds a failed result the model can read and act on.
func Failure(toolName, format string, args ...any) ToolResult {
	return ToolResult{
		Success:  false,
		Error:    fmt.Sprintf(format, args...),
		ToolName: toolName,
	}
}

// Success builds a successful result.
func Success(toolName, content string) ToolResult {
	return ToolResult{
		Success:  true,
		Content:  content,
		ToolName: toolName,
	}
}
