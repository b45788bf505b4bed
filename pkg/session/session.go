// Package session implements the session boundary every UI calls: direct
// chat, the delegation pipeline, and the mutation operations (model, tools,
// mode, server reloads). Operations on one session are serialized; distinct
// sessions are independent.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/agent"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/config"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/llms"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/mcp"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/memory"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/orchestrator"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/tools"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/trace"
)

// Options configures a new session.
type Options struct {
	// ConfigPath is the session config file. Empty uses defaults without
	// persistence-backed config built-ins.
	ConfigPath string
	// WorkDir anchors the built-in file tools.
	WorkDir string
	// MemoryPath backs the feature-tracking built-ins. Empty disables them.
	MemoryPath string
	// ExtraServers are descriptors added on top of the config file's
	// mcpServers section (CLI flags, servers-json, auto-discovery).
	ExtraServers []mcp.ServerConfig
	// Model and Host override the config when non-empty.
	Model string
	Host  string
	// Trace overrides the config's trace section when non-nil.
	Trace *trace.Config

	Logger *slog.Logger
}

// Session is one user-facing conversation with its tool plane.
type Session struct {
	id     string
	logger *slog.Logger

	mu sync.Mutex

	store    *config.Store
	provider llms.Provider
	registry *tools.Registry
	catalog  *mcp.Catalog
	builtins *tools.Builtins
	executor *agent.Executor
	sink     *trace.Sink

	planner    *orchestrator.Planner
	dispatcher *orchestrator.Dispatcher
	aggregator *orchestrator.Aggregator

	model        string
	mode         tools.Mode
	systemPrompt string
	history      []*protocol.Message

	closed bool
}

// New creates and connects a session.
func New(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var store *config.Store
	var err error
	if opts.ConfigPath != "" {
		store, err = config.NewStore(opts.ConfigPath, logger)
		if err != nil {
			return nil, err
		}
	}

	cfg := config.Default()
	if store != nil {
		c := store.Get()
		cfg = &c
	}

	model := cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	host := cfg.Host
	if opts.Host != "" {
		host = opts.Host
	}

	s := &Session{
		id:           uuid.NewString(),
		logger:       logger,
		store:        store,
		provider:     llms.NewOllamaProvider(host),
		registry:     tools.NewRegistry(),
		model:        model,
		mode:         tools.ModeAct,
		systemPrompt: cfg.SystemPrompt,
	}
	s.catalog = mcp.NewCatalog(s.registry, logger)

	var memStore *memory.Store
	if opts.MemoryPath != "" {
		memStore, err = memory.NewStore(opts.MemoryPath)
		if err != nil {
			return nil, err
		}
	}

	builtinOpts := tools.BuiltinsOptions{
		WorkDir:         opts.WorkDir,
		Memory:          memStore,
		ListServers:     s.catalog.Status,
		GetSystemPrompt: s.getSystemPrompt,
		SetSystemPrompt: s.setSystemPrompt,
		Logger:          logger,
	}
	if store != nil {
		builtinOpts.Config = store
	}
	s.builtins = tools.NewBuiltins(builtinOpts)
	s.registry.RegisterServer(tools.BuiltinServer, s.builtins.Tools())

	for name, entry := range cfg.MCPServers {
		serverCfg := mcp.ServerConfig{
			Name:      name,
			Transport: entry.Transport,
			Command:   entry.Command,
			Args:      entry.Args,
			Env:       entry.Env,
			URL:       entry.URL,
			Headers:   entry.Headers,
			Disabled:  entry.IsDisabled(),
		}
		if err := s.catalog.AddServer(serverCfg); err != nil {
			return nil, err
		}
	}
	for _, serverCfg := range opts.ExtraServers {
		if err := s.catalog.AddServer(serverCfg); err != nil {
			return nil, err
		}
	}
	if err := s.catalog.Connect(ctx); err != nil {
		// Partial connectivity is usable; the failure is already logged.
		logger.Warn("Some MCP servers failed to connect", "error", err)
	}
	s.registry.ApplyDisabled(cfg.DisabledTools, cfg.DisabledServers)
	for name, enabled := range cfg.EnabledTools {
		s.registry.SetToolEnabled(name, enabled)
	}

	s.executor = agent.NewExecutor(s.provider, s.registry, logger)

	traceCfg := trace.Config{
		Enabled:       cfg.Trace.Enabled,
		Level:         trace.ParseLevel(cfg.Trace.Level),
		Dir:           cfg.Trace.Dir,
		TruncateBytes: cfg.Trace.TruncateBytes,
	}
	if opts.Trace != nil {
		traceCfg = *opts.Trace
	}
	s.sink = trace.NewSink(traceCfg)

	s.planner = orchestrator.NewPlanner(s.executor)
	dispatcherCfg := orchestrator.DispatcherConfig{
		MaxParallel: cfg.Delegation.MaxParallel,
		RetryLimit:  cfg.Delegation.RetryLimit,
		TaskTimeout: time.Duration(cfg.Delegation.TaskTimeoutSeconds) * time.Second,
		Escalation:  orchestrator.EscalateAfter{Failures: cfg.Delegation.EscalateAfterFailures},
		Logger:      logger,
	}
	if cfg.Delegation.FallbackModel != "" {
		dispatcherCfg.Fallback = orchestrator.NewModelFallback(s.executor, cfg.Delegation.FallbackModel)
	}
	s.dispatcher = orchestrator.NewDispatcher(s.executor, dispatcherCfg)
	s.aggregator = orchestrator.NewAggregator(s.executor)

	if store != nil {
		// Edits to the config file from outside the session reconnect the
		// tool plane and re-apply the enablement maps.
		err := store.Watch(func(updated *config.Config) {
			if reloadErr := s.catalog.Reload(context.Background()); reloadErr != nil {
				logger.Warn("Server reload after config change failed", "error", reloadErr)
			}
			s.registry.ApplyDisabled(updated.DisabledTools, updated.DisabledServers)
			for name, enabled := range updated.EnabledTools {
				s.registry.SetToolEnabled(name, enabled)
			}
		})
		if err != nil {
			logger.Warn("Config watch unavailable", "error", err)
		}
	}

	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// ProcessQuery answers one user query: through the delegation pipeline when
// enabled, otherwise as a direct chat turn. Streaming output goes to the
// callback; the final reply is returned.
func (s *Session) ProcessQuery(ctx context.Context, text string, callback llms.UICallback) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("session is closed")
	}

	cfg := s.config()
	if cfg.Delegation.Enabled {
		return s.delegate(ctx, text, cfg, callback)
	}
	return s.directChat(ctx, text, cfg, callback)
}

// directChat runs a single executor invocation, retaining history when
// configured.
func (s *Session) directChat(ctx context.Context, text string, cfg config.Config, callback llms.UICallback) (string, error) {
	loopLimit := cfg.AgentSettings.LoopLimit
	if loopLimit <= 0 {
		loopLimit = 5
	}
	spec := agent.Spec{
		Type:         "chat",
		SystemPrompt: s.systemPrompt,
		LoopLimit:    loopLimit,
		Temperature:  cfg.ModelSettings.Temperature,
	}

	var history []*protocol.Message
	if cfg.ContextSettings.RetainContext {
		history = s.history
	}

	result, err := s.executor.Run(ctx, spec, text, agent.RunOptions{
		Model:       s.model,
		Mode:        s.mode,
		Think:       cfg.ModelSettings.Think,
		TokenBudget: cfg.ContextSettings.TokenBudget,
		History:     history,
		Callback:    callback,
	})
	if err != nil {
		return "", err
	}

	if cfg.ContextSettings.RetainContext {
		// Keep the post-run history minus the system message.
		s.history = stripSystem(result.Messages)
	}

	reply := result.Text
	if result.LoopLimitReached {
		reply += "\n\n[tool loop limit reached; answer may be incomplete]"
	}
	return reply, nil
}

// delegate runs the planner, dispatcher and aggregator pipeline. Delegated
// tasks never see the direct-chat history.
func (s *Session) delegate(ctx context.Context, text string, cfg config.Config, callback llms.UICallback) (string, error) {
	run := s.sink.StartRun(s.id, text)

	opts := agent.RunOptions{
		Model:       s.model,
		Mode:        s.mode,
		Think:       cfg.ModelSettings.Think,
		TokenBudget: cfg.ContextSettings.TokenBudget,
	}

	plannerOpts := opts
	if taskTrace := run.Task("planner", agent.RolePlanner); taskTrace != nil {
		plannerOpts.Recorder = taskTrace
	}
	plan, plannerReply, err := s.planner.Plan(ctx, text, plannerOpts)
	run.SetPlanner(text, plannerReply)
	if err != nil {
		run.SetError(err)
		if traceErr := run.Finish(""); traceErr != nil {
			s.logger.Warn("Trace write failed", "error", traceErr)
		}
		return "", err
	}
	run.SetPlan(plan)

	results, err := s.dispatcher.Run(ctx, plan, opts, run)
	run.SetResults(results)
	if err != nil {
		run.SetError(err)
		if traceErr := run.Finish(""); traceErr != nil {
			s.logger.Warn("Trace write failed", "error", traceErr)
		}
		return "", err
	}

	aggOpts := opts
	aggOpts.Callback = callback
	if taskTrace := run.Task("aggregator", agent.RoleAggregator); taskTrace != nil {
		aggOpts.Recorder = taskTrace
	}
	reply, err := s.aggregator.Aggregate(ctx, text, results, aggOpts)
	if err != nil {
		run.SetError(err)
		reply = ""
	}
	if traceErr := run.Finish(reply); traceErr != nil {
		s.logger.Warn("Trace write failed", "error", traceErr)
	}
	return reply, err
}

// SetModel switches the active model and persists the choice.
func (s *Session) SetModel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		return fmt.Errorf("model name is required")
	}
	s.model = name
	return s.persist(func(c *config.Config) { c.Model = name })
}

// Model returns the active model name.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetToolEnabled flips one tool and persists the disabled-tool set.
func (s *Session) SetToolEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.SetToolEnabled(name, enabled)
	return s.persist(func(c *config.Config) {
		c.DisabledTools = s.registry.DisabledTools()
	})
}

// SetServerEnabled flips a whole server and persists the set.
func (s *Session) SetServerEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.catalog.SetServerEnabled(name, enabled); err != nil {
		return err
	}
	return s.persist(func(c *config.Config) {
		c.DisabledServers = s.registry.DisabledServers()
	})
}

// ToggleMode flips between plan and act mode and returns the new mode.
func (s *Session) ToggleMode() tools.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == tools.ModeAct {
		s.mode = tools.ModePlan
	} else {
		s.mode = tools.ModeAct
	}
	return s.mode
}

// Mode returns the current mode.
func (s *Session) Mode() tools.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ReloadServers reconnects every MCP server from the current descriptors.
// Enabled-tool state is preserved for tools that still exist.
func (s *Session) ReloadServers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Reload(ctx)
}

// ActiveTools returns the tool view for the current mode.
func (s *Session) ActiveTools() []tools.ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ActiveTools(s.mode)
}

// Close tears the session down: MCP sessions, provider, config watcher.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.catalog.Close(); err != nil {
		firstErr = err
	}
	if err := s.provider.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) config() config.Config {
	if s.store != nil {
		return s.store.Get()
	}
	return *config.Default()
}

func (s *Session) persist(mutate func(*config.Config)) error {
	if s.store == nil {
		return nil
	}
	return s.store.Update(mutate)
}

func (s *Session) getSystemPrompt() string {
	// Callers already hold no session lock: the built-ins run inside
	// ProcessQuery, which holds it. Read without re-locking.
	return s.systemPrompt
}

func (s *Session) setSystemPrompt(prompt string) {
	s.systemPrompt = prompt
	if s.store != nil {
		if err := s.store.Update(func(c *config.Config) { c.SystemPrompt = prompt }); err != nil {
			s.logger.Warn("Failed to persist system prompt", "error", err)
		}
	}
}

func stripSystem(messages []*protocol.Message) []*protocol.Message {
	if len(messages) > 0 && messages[0].Role == protocol.RoleSystem {
		return messages[1:]
	}
	return messages
}
