package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/tools"
)

// Catalog owns the configured server descriptors and their open sessions,
// and keeps the tool registry in sync with what the servers advertise.
type Catalog struct {
	registry *tools.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	servers  map[string]ServerConfig
	sessions map[string]Session
	counts   map[string]int
}

// NewCatalog creates a catalog bound to a registry.
func NewCatalog(registry *tools.Registry, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		registry: registry,
		logger:   logger,
		servers:  make(map[string]ServerConfig),
		sessions: make(map[string]Session),
		counts:   make(map[string]int),
	}
}

// AddServer records a descriptor without connecting. Replaces any existing
// descriptor with the same name.
func (c *Catalog) AddServer(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[cfg.Name] = cfg
	return nil
}

// Connect opens sessions for every enabled descriptor that is not already
// connected and registers the advertised tools. Individual server failures
// are logged and skipped; the catalog stays usable.
func (c *Catalog) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Catalog) connectLocked(ctx context.Context) error {
	var firstErr error
	for name, cfg := range c.servers {
		if cfg.Disabled {
			continue
		}
		if _, open := c.sessions[name]; open {
			continue
		}

		session, err := NewSession(ctx, cfg)
		if err != nil {
			c.logger.Warn("MCP server connection failed", "server", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		descriptors, err := session.ListTools(ctx)
		if err != nil {
			c.logger.Warn("MCP tool discovery failed", "server", name, "error", err)
			session.Close()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		remote := make([]tools.Tool, 0, len(descriptors))
		for _, d := range descriptors {
			remote = append(remote, newRemoteTool(name, d, session))
		}
		c.registry.RegisterServer(name, remote)
		c.sessions[name] = session
		c.counts[name] = len(remote)

		c.logger.Info("MCP server ready", "server", name, "tools", len(remote))
	}
	return firstErr
}

// Reload closes every session and reconnects from the current descriptors.
// Disabled-tool state lives in the registry and survives for tools that
// still exist after the reload.
func (c *Catalog) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, session := range c.sessions {
		if err := session.Close(); err != nil {
			c.logger.Warn("MCP session close failed", "server", name, "error", err)
		}
		c.registry.UnregisterServer(name)
		delete(c.sessions, name)
		delete(c.counts, name)
	}
	return c.connectLocked(ctx)
}

// Status reports every configured server for list_mcp_servers.
func (c *Catalog) Status() []tools.ServerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]tools.ServerStatus, 0, len(c.servers))
	for name, cfg := range c.servers {
		_, connected := c.sessions[name]
		statuses = append(statuses, tools.ServerStatus{
			Name:      name,
			Transport: cfg.Transport,
			Enabled:   !cfg.Disabled,
			Connected: connected,
			ToolCount: c.counts[name],
		})
	}
	return statuses
}

// SetServerEnabled flips a descriptor's enablement. Takes effect on the
// next Connect or Reload; the registry-level disable applies immediately.
func (c *Catalog) SetServerEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, ok := c.servers[name]
	if !ok {
		return fmt.Errorf("unknown MCP server %q", name)
	}
	cfg.Disabled = !enabled
	c.servers[name] = cfg
	c.registry.SetServerEnabled(name, enabled)
	return nil
}

// Close tears down every session.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.registry.UnregisterServer(name)
		delete(c.sessions, name)
		delete(c.counts, name)
	}
	return firstErr
}
