package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// serversFile is the on-disk shape: a "mcpServers" object keyed by server
// name. Entries may carry either "disabled": true or "enabled": false; both
// normalize to the single Disabled bool at load.
type serversFile struct {
	MCPServers map[string]serverEntry `json:"mcpServers"`
}

type serverEntry struct {
	Transport string            `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Disabled  *bool             `json:"disabled,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

// LoadServersFile parses a server definition file into descriptors.
func LoadServersFile(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers file %s: %w", path, err)
	}

	var file serversFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse servers file %s: %w", path, err)
	}

	configs := make([]ServerConfig, 0, len(file.MCPServers))
	for name, entry := range file.MCPServers {
		cfg := ServerConfig{
			Name:      name,
			Transport: entry.Transport,
			Command:   entry.Command,
			Args:      entry.Args,
			Env:       entry.Env,
			URL:       entry.URL,
			Headers:   entry.Headers,
			Disabled:  normalizeDisabled(entry.Disabled, entry.Enabled),
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// normalizeDisabled folds the two accepted spellings into one bool.
// "disabled" wins when both are present.
func normalizeDisabled(disabled, enabled *bool) bool {
	if disabled != nil {
		return *disabled
	}
	if enabled != nil {
		return !*enabled
	}
	return false
}

// DiscoveryPaths lists the default config locations probed by
// auto-discovery, in priority order.
func DiscoveryPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".config", "ollmcp", "servers.json"),
		filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"),
		filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"),
	}
}

// AutoDiscover loads descriptors from the first discovery path that exists.
func AutoDiscover() ([]ServerConfig, string, error) {
	for _, path := range DiscoveryPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		configs, err := LoadServersFile(path)
		if err != nil {
			return nil, path, err
		}
		return configs, path, nil
	}
	return nil, "", nil
}
