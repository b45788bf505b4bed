package tools

import (
	"context"
	"fmt"
	"strings"
)

type getConfigArgs struct {
	Section string `json:"section,omitempty" jsonschema:"description=Config section to show; omit for the full config"`
}

func (b *Builtins) getConfigTool() Tool {
	return &builtinTool{
		name:        "get_config",
		description: "Show the session configuration, or one named section of it.",
		schema:      SchemaFor(&getConfigArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args getConfigArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("get_config", "%v", err)
			}
			if b.config == nil {
				return Failure("get_config", "no configuration file is attached to this session")
			}
			rendered, err := b.config.Section(args.Section)
			if err != nil {
				return Failure("get_config", "%v", err)
			}
			return Success("get_config", rendered)
		},
	}
}

type updateConfigArgs struct {
	Section string         `json:"section" jsonschema:"description=Config section to update,required"`
	Values  map[string]any `json:"values" jsonschema:"description=Key/value pairs merged into the section,required"`
}

func (b *Builtins) updateConfigSectionTool() Tool {
	return &builtinTool{
		name:         "update_config_section",
		description:  "Merge values into one section of the session configuration and persist it.",
		writeCapable: true,
		schema:       SchemaFor(&updateConfigArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args updateConfigArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("update_config_section", "%v", err)
			}
			if b.config == nil {
				return Failure("update_config_section", "no configuration file is attached to this session")
			}
			if args.Section == "" {
				return Failure("update_config_section", "section is required")
			}
			if len(args.Values) == 0 {
				return Failure("update_config_section", "values is required and must not be empty")
			}
			if err := b.config.UpdateSection(args.Section, args.Values); err != nil {
				return Failure("update_config_section", "%v", err)
			}
			return Success("update_config_section",
				fmt.Sprintf("Updated section %q (%d key(s))", args.Section, len(args.Values)))
		},
	}
}

type emptyArgs struct{}

func (b *Builtins) getSystemPromptTool() Tool {
	return &builtinTool{
		name:        "get_system_prompt",
		description: "Show the current direct-chat system prompt.",
		schema:      SchemaFor(&emptyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			if b.getPrompt == nil {
				return Failure("get_system_prompt", "system prompt is not configurable in this session")
			}
			prompt := b.getPrompt()
			if prompt == "" {
				return Success("get_system_prompt", "(no system prompt set)")
			}
			return Success("get_system_prompt", prompt)
		},
	}
}

type setSystemPromptArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=New system prompt text,required"`
}

func (b *Builtins) setSystemPromptTool() Tool {
	return &builtinTool{
		name:         "set_system_prompt",
		description:  "Replace the direct-chat system prompt.",
		writeCapable: true,
		schema:       SchemaFor(&setSystemPromptArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args setSystemPromptArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("set_system_prompt", "%v", err)
			}
			if b.setPrompt == nil {
				return Failure("set_system_prompt", "system prompt is not configurable in this session")
			}
			b.setPrompt(args.Prompt)
			return Success("set_system_prompt", "System prompt updated.")
		},
	}
}

func (b *Builtins) listMCPServersTool() Tool {
	return &builtinTool{
		name:        "list_mcp_servers",
		description: "List configured MCP servers with transport, enablement and connection state.",
		schema:      SchemaFor(&emptyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			if b.listServers == nil {
				return Success("list_mcp_servers", "No MCP servers configured.")
			}
			servers := b.listServers()
			if len(servers) == 0 {
				return Success("list_mcp_servers", "No MCP servers configured.")
			}

			var sb strings.Builder
			for _, s := range servers {
				state := "disconnected"
				if s.Connected {
					state = "connected"
				}
				enabled := "enabled"
				if !s.Enabled {
					enabled = "disabled"
				}
				fmt.Fprintf(&sb, "%s [%s] %s, %s, %d tool(s)\n",
					s.Name, s.Transport, enabled, state, s.ToolCount)
			}
			return Success("list_mcp_servers", sb.String())
		},
	}
}
