// Package config loads, persists and watches the session configuration
// file. JSON and YAML are both accepted on load; persistence is JSON.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ContextSettings controls conversation history behavior.
type ContextSettings struct {
	// RetainContext keeps direct-chat history across queries. Delegated
	// tasks always run with fresh history regardless.
	RetainContext bool `json:"retainContext" koanf:"retainContext"`
	// TokenBudget caps the prompt size; zero disables trimming.
	TokenBudget int `json:"tokenBudget,omitempty" koanf:"tokenBudget"`
}

// ModelSettings carries sampling parameters.
type ModelSettings struct {
	Temperature float64 `json:"temperature,omitempty" koanf:"temperature"`
	TopP        float64 `json:"topP,omitempty" koanf:"topP"`
	MaxTokens   int     `json:"maxTokens,omitempty" koanf:"maxTokens"`
	Think       bool    `json:"think,omitempty" koanf:"think"`
}

// AgentSettings tunes direct-chat agent execution.
type AgentSettings struct {
	// LoopLimit bounds the direct-chat tool loop. Role loop limits apply
	// to delegated tasks instead.
	LoopLimit int `json:"loopLimit,omitempty" koanf:"loopLimit"`
}

// DisplaySettings controls terminal rendering.
type DisplaySettings struct {
	ShowThinking  bool `json:"showThinking" koanf:"showThinking"`
	ShowToolCalls bool `json:"showToolCalls" koanf:"showToolCalls"`
	Quiet         bool `json:"quiet,omitempty" koanf:"quiet"`
}

// DelegationSettings tunes the planner/dispatcher/aggregator pipeline.
type DelegationSettings struct {
	Enabled               bool   `json:"enabled" koanf:"enabled"`
	MaxParallel           int    `json:"maxParallel,omitempty" koanf:"maxParallel"`
	RetryLimit            int    `json:"retryLimit,omitempty" koanf:"retryLimit"`
	TaskTimeoutSeconds    int    `json:"taskTimeoutSeconds,omitempty" koanf:"taskTimeoutSeconds"`
	EscalateAfterFailures int    `json:"escalateAfterFailures,omitempty" koanf:"escalateAfterFailures"`
	FallbackModel         string `json:"fallbackModel,omitempty" koanf:"fallbackModel"`
}

// TraceSettings configures the execution trace sink.
type TraceSettings struct {
	Enabled       bool   `json:"enabled" koanf:"enabled"`
	Level         string `json:"level,omitempty" koanf:"level"`
	Dir           string `json:"dir,omitempty" koanf:"dir"`
	TruncateBytes int    `json:"truncateBytes,omitempty" koanf:"truncateBytes"`
}

// MCPServerEntry is one server definition inside the config file. Either
// "disabled" or "enabled" may be used; they normalize to one flag.
type MCPServerEntry struct {
	Transport string            `json:"transport,omitempty" koanf:"transport"`
	Command   string            `json:"command,omitempty" koanf:"command"`
	Args      []string          `json:"args,omitempty" koanf:"args"`
	Env       map[string]string `json:"env,omitempty" koanf:"env"`
	URL       string            `json:"url,omitempty" koanf:"url"`
	Headers   map[string]string `json:"headers,omitempty" koanf:"headers"`
	Disabled  *bool             `json:"disabled,omitempty" koanf:"disabled"`
	Enabled   *bool             `json:"enabled,omitempty" koanf:"enabled"`
}

// IsDisabled folds the two spellings; "disabled" wins when both are set.
func (e MCPServerEntry) IsDisabled() bool {
	if e.Disabled != nil {
		return *e.Disabled
	}
	if e.Enabled != nil {
		return !*e.Enabled
	}
	return false
}

// Config is the persisted session configuration.
type Config struct {
	Model string `json:"model,omitempty" koanf:"model"`
	Host  string `json:"host,omitempty" koanf:"host"`

	SystemPrompt string `json:"systemPrompt,omitempty" koanf:"systemPrompt"`

	// EnabledTools overrides individual tools by name after the disabled
	// lists apply.
	EnabledTools    map[string]bool `json:"enabledTools,omitempty" koanf:"enabledTools"`
	DisabledTools   []string        `json:"disabledTools,omitempty" koanf:"disabledTools"`
	DisabledServers []string        `json:"disabledServers,omitempty" koanf:"disabledServers"`

	ContextSettings ContextSettings    `json:"contextSettings" koanf:"contextSettings"`
	ModelSettings   ModelSettings      `json:"modelSettings" koanf:"modelSettings"`
	AgentSettings   AgentSettings      `json:"agentSettings" koanf:"agentSettings"`
	DisplaySettings DisplaySettings    `json:"displaySettings" koanf:"displaySettings"`
	Delegation      DelegationSettings `json:"delegation" koanf:"delegation"`
	Trace           TraceSettings      `json:"trace" koanf:"trace"`

	MCPServers map[string]MCPServerEntry `json:"mcpServers,omitempty" koanf:"mcpServers"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Model: "qwen3:8b",
		ContextSettings: ContextSettings{
			RetainContext: true,
		},
		AgentSettings: AgentSettings{
			LoopLimit: 5,
		},
		DisplaySettings: DisplaySettings{
			ShowThinking:  true,
			ShowToolCalls: true,
		},
		Delegation: DelegationSettings{
			Enabled:     true,
			MaxParallel: 3,
			RetryLimit:  2,
		},
		Trace: TraceSettings{
			Level: "basic",
		},
	}
}

// Load reads a config file into a Config over the defaults. Format follows
// the file extension; anything but .yaml/.yml parses as JSON.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	parser := parserFor(path)
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return json.Parser()
	}
}
