// Command ollmcp is the multi-agent MCP client for Ollama.
//
// Usage:
//
//	ollmcp --model qwen3:8b --mcp-server ./server.py --query "..."
//	ollmcp --servers-json servers.json
//	ollmcp serve --port 8080
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/llms"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/logger"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/mcp"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/observability"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/orchestrator"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/server"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/session"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/trace"
)

// Exit codes by failure class, for scripting around one-shot mode.
const (
	exitOK        = 0
	exitUsage     = 1
	exitPlan      = 2
	exitTransport = 3
	exitModel     = 4
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" default:"withargs" help:"Run a query or an interactive session."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP session server."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to the session config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or json)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ollmcp version %s\n", version)
	return nil
}

// sessionFlags are shared between run and serve.
type sessionFlags struct {
	MCPServer     []string `name:"mcp-server" help:"Stdio MCP server command (repeatable)." placeholder:"CMD"`
	MCPServerURL  []string `name:"mcp-server-url" help:"HTTP MCP server URL (repeatable)." placeholder:"URL"`
	ServersJSON   string   `name:"servers-json" help:"Server definition file." type:"path"`
	AutoDiscovery bool     `name:"auto-discovery" help:"Probe default config locations for server definitions."`

	Model string `help:"Model name." placeholder:"NAME"`
	Host  string `help:"Ollama host URL." placeholder:"URL"`

	WorkDir    string `name:"workdir" help:"Working directory for file tools (default: cwd)." type:"path"`
	MemoryFile string `name:"memory-file" help:"Feature-tracking state file." type:"path"`

	TraceEnabled bool   `name:"trace-enabled" help:"Write execution traces."`
	TraceLevel   string `name:"trace-level" help:"Trace detail (off, summary, basic, full, debug)." default:"basic"`
	TraceDir     string `name:"trace-dir" help:"Trace output directory." default:".ollmcp/traces" type:"path"`
}

func (f *sessionFlags) sessionOptions(cli *CLI, logger *slog.Logger) (session.Options, error) {
	opts := session.Options{
		ConfigPath: cli.Config,
		WorkDir:    f.WorkDir,
		MemoryPath: f.MemoryFile,
		Model:      f.Model,
		Host:       f.Host,
		Logger:     logger,
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return opts, err
		}
		opts.WorkDir = wd
	}

	if f.TraceEnabled {
		opts.Trace = &trace.Config{
			Enabled: true,
			Level:   trace.ParseLevel(f.TraceLevel),
			Dir:     f.TraceDir,
		}
	}

	servers, err := f.collectServers(logger)
	if err != nil {
		return opts, err
	}
	opts.ExtraServers = servers
	return opts, nil
}

func (f *sessionFlags) collectServers(logger *slog.Logger) ([]mcp.ServerConfig, error) {
	var servers []mcp.ServerConfig

	for _, command := range f.MCPServer {
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return nil, fmt.Errorf("--mcp-server must not be empty")
		}
		servers = append(servers, mcp.ServerConfig{
			Name:      serverNameFromCommand(parts[0], len(servers)),
			Transport: mcp.TransportStdio,
			Command:   parts[0],
			Args:      parts[1:],
		})
	}

	for _, rawURL := range f.MCPServerURL {
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("invalid --mcp-server-url %q", rawURL)
		}
		transport := mcp.TransportStreamableHTTP
		if strings.Contains(parsed.Path, "/sse") {
			transport = mcp.TransportSSE
		}
		servers = append(servers, mcp.ServerConfig{
			Name:      strings.ReplaceAll(parsed.Hostname(), ".", "-"),
			Transport: transport,
			URL:       rawURL,
		})
	}

	if f.ServersJSON != "" {
		fromFile, err := mcp.LoadServersFile(f.ServersJSON)
		if err != nil {
			return nil, err
		}
		servers = append(servers, fromFile...)
	}

	if f.AutoDiscovery {
		discovered, path, err := mcp.AutoDiscover()
		if err != nil {
			return nil, err
		}
		if path != "" {
			logger.Info("Auto-discovered MCP servers", "path", path, "count", len(discovered))
			servers = append(servers, discovered...)
		}
	}
	return servers, nil
}

func serverNameFromCommand(command string, index int) string {
	base := filepath.Base(command)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return fmt.Sprintf("stdio-%d", index+1)
	}
	return base
}

// RunCmd answers one query or runs an interactive loop.
type RunCmd struct {
	sessionFlags

	Query string `short:"q" help:"One-shot query (non-interactive)."`
	Quiet bool   `help:"Suppress streaming output; print only the final reply."`
}

func (c *RunCmd) Run(cli *CLI) error {
	log := cli.initLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := c.sessionOptions(cli, log)
	if err != nil {
		return err
	}

	sess, err := session.New(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	var callback llms.UICallback
	if !c.Quiet {
		callback = printChunk
	}

	if c.Query != "" {
		reply, err := sess.ProcessQuery(ctx, c.Query, callback)
		if err != nil {
			return err
		}
		if c.Quiet {
			fmt.Println(reply)
		} else {
			fmt.Println()
		}
		return nil
	}
	return c.interactive(ctx, sess, callback)
}

func (c *RunCmd) interactive(ctx context.Context, sess *session.Session, callback llms.UICallback) error {
	fmt.Printf("ollmcp interactive (model %s). /help for commands.\n", sess.Model())
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Printf("[%s] > ", sess.Mode())
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := c.handleCommand(ctx, sess, line); done {
				return nil
			}
			continue
		}

		reply, err := sess.ProcessQuery(ctx, line, callback)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if callback == nil {
			fmt.Println(reply)
		} else {
			fmt.Println()
		}
	}
}

func (c *RunCmd) handleCommand(ctx context.Context, sess *session.Session, line string) bool {
	parts := strings.Fields(line)
	switch parts[0] {
	case "/quit", "/exit":
		return true
	case "/mode":
		fmt.Printf("mode: %s\n", sess.ToggleMode())
	case "/model":
		if len(parts) < 2 {
			fmt.Printf("model: %s\n", sess.Model())
			break
		}
		if err := sess.SetModel(parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	case "/tools":
		for _, info := range sess.ActiveTools() {
			fmt.Printf("  %s\n", info.Name)
		}
	case "/reload":
		if err := sess.ReloadServers(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	case "/help":
		fmt.Println("commands: /model [name], /mode, /tools, /reload, /quit")
	default:
		fmt.Printf("unknown command %s\n", parts[0])
	}
	return false
}

// ServeCmd starts the HTTP session server.
type ServeCmd struct {
	sessionFlags

	Port int `help:"Port to listen on." default:"8080"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	log := cli.initLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	observability.InitMetrics(registry)

	opts, err := c.sessionOptions(cli, log)
	if err != nil {
		return err
	}
	manager := session.NewManager(opts)
	defer manager.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Port),
		Handler: server.New(manager, registry, log).Router(),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.Info("HTTP server listening", "port", c.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (cli *CLI) initLogging() *slog.Logger {
	output := os.Stderr
	if cli.LogFile != "" {
		if file, _, err := logger.OpenLogFile(cli.LogFile); err == nil {
			output = file
		}
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)
	return logger.GetLogger()
}

func printChunk(kind llms.ChunkKind, text string) {
	switch kind {
	case llms.ChunkThinking:
		fmt.Fprint(os.Stderr, text)
	case llms.ChunkText:
		fmt.Print(text)
	}
}

// exitCodeFor maps failure classes to exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var orchErr *orchestrator.Error
	if errors.As(err, &orchErr) {
		switch orchErr.Kind {
		case orchestrator.KindPlanInvalid, orchestrator.KindUnknownAgent:
			return exitPlan
		case orchestrator.KindToolTransport, orchestrator.KindTaskTimeout:
			return exitTransport
		default:
			return exitModel
		}
	}
	var mcpErr *mcp.Error
	if errors.As(err, &mcpErr) {
		return exitTransport
	}
	return exitUsage
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ollmcp"),
		kong.Description("Multi-agent MCP client for Ollama."),
		kong.UsageOnError(),
	)

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "ollmcp: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}
