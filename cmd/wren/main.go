// Wren is an LLM tool-calling assistant.
//
// The server turns chat turns into provider calls and answers with the
// assistant's text plus the tool calls it asked for. The terminal client
// runs those tools, routes each result card to its pane, and pops up
// messages the server pushes outside of any turn. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	wren serve              Start the API server
//	wren chat               Start the terminal client
//	wren ask <question>     Run one turn against the server
//	wren push <text>        Push an agent message to connected clients
//	wren init [dir]         Write a starter config.yaml
//	wren version            Print version and build information
//	wren -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/wren/internal/agent"
	"github.com/nugget/wren/internal/api"
	"github.com/nugget/wren/internal/buildinfo"
	"github.com/nugget/wren/internal/chatclient"
	"github.com/nugget/wren/internal/config"
	"github.com/nugget/wren/internal/connwatch"
	"github.com/nugget/wren/internal/events"
	"github.com/nugget/wren/internal/llm"
	"github.com/nugget/wren/internal/mqtt"
	"github.com/nugget/wren/internal/notify"
	"github.com/nugget/wren/internal/prompts"
	"github.com/nugget/wren/internal/reports"
	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/tools"
	"github.com/nugget/wren/internal/tui"
	"github.com/nugget/wren/internal/turn"
)

// shutdownTimeout bounds how long serve waits for in-flight requests
// and the broker disconnect.
const shutdownTimeout = 10 * time.Second

// main builds the OS-level environment and hands off to [run] so the
// whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the wren command. ctx bounds the
// process lifetime, stdout and stderr receive all output, and args is
// os.Args[1:].
//
// Arguments are parsed by hand rather than with the flag package, whose
// package-level state gets in the way of calling run from parallel
// tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command == "" {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return errors.New("usage: wren ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, strings.Join(cmdArgs, " "))
	case "push":
		if len(cmdArgs) == 0 {
			return errors.New("usage: wren push <text>")
		}
		return runPush(ctx, stdout, stderr, configPath, outputFmt, strings.Join(cmdArgs, " "))
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Wren - LLM tool-calling assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: wren [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  chat           Start the terminal client")
	fmt.Fprintln(w, "  ask <question> Run one turn against the server")
	fmt.Fprintln(w, "  push <text>    Push an agent message to connected clients")
	fmt.Fprintln(w, "  init [dir]     Write a starter config.yaml (default: .)")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/wren/config.yaml, /etc/wren/config.yaml")
	return nil
}

// runServe handles "wren serve". It wires the provider, the agent loop,
// the report processor, the event bus and the optional MQTT bridge
// behind the API server, then blocks until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. The signal cancels the context
//  2. The MQTT bridge disconnects from the broker
//  3. The HTTP server drains in-flight requests and closes push streams
//  4. The health watchers, report timers and database close via defers
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := cfg.Logger(stdout)
	logger.Info("starting Wren", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.Provider.Name,
		"model", cfg.Model(),
		"assistant", cfg.Assistant.Name,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	client, err := llm.New(cfg, logger)
	if err != nil {
		return err
	}
	system, err := prompts.LoadSystemTemplate(cfg.Assistant.SystemPrompt, cfg.Assistant.PromptsDir)
	if err != nil {
		return err
	}
	loop := agent.NewLoop(logger, client, system, cfg.Assistant.Name, tools.Catalog())

	bus := events.New()

	store, err := reports.NewStore(filepath.Join(cfg.DataDir, "wren.db"))
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	defer store.Close()

	processor := reports.NewProcessor(store, bus, logger)
	defer processor.Close()
	if err := processor.Resume(); err != nil {
		return fmt.Errorf("resume reports: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watch := connwatch.NewManager(logger)
	defer watch.Stop()
	watch.Watch(ctx, cfg.Provider.Name, client.Ping, connwatch.DefaultSchedule(), nil)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, cfg.Provider.Name, loop, logger)
	server.SetReports(processor)
	server.SetEventBus(bus)
	server.SetHealthSource(watch)

	g, gctx := errgroup.WithContext(ctx)

	var bridge *mqtt.Bridge
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		bridge = mqtt.NewBridge(cfg.MQTT, instanceID, bus, logger)
		g.Go(func() error {
			return bridge.Start(gctx)
		})
		watch.Watch(gctx, "mqtt", func(pCtx context.Context) error {
			awaitCtx, cancel := context.WithTimeout(pCtx, 2*time.Second)
			defer cancel()
			return bridge.AwaitConnection(awaitCtx)
		}, connwatch.DefaultSchedule(), nil)
		logger.Info("mqtt bridge enabled", "broker", cfg.MQTT.Broker, "topics", cfg.MQTT.Topics)
	}

	g.Go(func() error {
		err := server.Start(gctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if bridge != nil {
			if err := bridge.Stop(shutdownCtx); err != nil {
				logger.Warn("mqtt disconnect failed", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Wren stopped")
	return nil
}

// runChat handles "wren chat". Logs go to wren.log in the data
// directory so they never draw over the terminal UI.
func runChat(ctx context.Context, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logPath := filepath.Join(cfg.DataDir, "wren.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := cfg.Logger(logFile)
	logger.Info("starting chat client", "version", buildinfo.Version, "server", cfg.Client.ServerURL)

	client, reg, sess, err := newClientSession(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return tui.Run(ctx, tui.Options{
		Client:        client,
		Session:       sess,
		Tools:         reg,
		ServerURL:     cfg.Client.ServerURL,
		AssistantName: cfg.Assistant.Name,
		Timings:       notifyTimings(cfg.Client),
		PollInterval:  cfg.Client.PollInterval(),
		Logger:        logger,
	})
}

// askOutput is the JSON shape of "wren -o json ask".
type askOutput struct {
	Text     string               `json:"text"`
	Results  []session.ToolResult `json:"toolResults"`
	Failures []string             `json:"failures,omitempty"`
}

// runAsk handles "wren ask <question>": one turn against the server,
// with the requested tools executed locally the way the terminal
// client runs them.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, question string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(stderr)

	client, reg, sess, err := newClientSession(cfg, logger)
	if err != nil {
		return err
	}
	turns := turn.New(sess, client, reg, logger)

	outcome, err := turns.SendMessage(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	out := askOutput{Text: outcome.Reply, Results: outcome.Results}
	if out.Results == nil {
		out.Results = []session.ToolResult{}
	}
	for _, f := range outcome.Failures {
		out.Failures = append(out.Failures, f.Notice)
	}

	if outputFmt == "json" {
		return writeJSON(stdout, out)
	}

	if out.Text != "" {
		fmt.Fprintln(stdout, out.Text)
	}
	for _, r := range out.Results {
		data, err := json.MarshalIndent(r.Data, "  ", "  ")
		if err != nil {
			return fmt.Errorf("encode %s result: %w", r.ToolName, err)
		}
		fmt.Fprintf(stdout, "\n[%s → %s]\n  %s\n", r.ToolName, reg.RenderLocation(r.ToolName), data)
	}
	for _, notice := range out.Failures {
		fmt.Fprintf(stdout, "\n! %s\n", notice)
	}
	return nil
}

// runPush handles "wren push <text>".
func runPush(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, text string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client := chatclient.New(cfg.Client.ServerURL, nil, cfg.Logger(stderr))

	resp, err := client.Push(ctx, text, "")
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if outputFmt == "json" {
		return writeJSON(stdout, resp)
	}
	fmt.Fprintf(stdout, "pushed %s to %d client(s)\n", resp.ID, resp.Subscribers)
	return nil
}

// newClientSession builds the server client, the tool registry and an
// empty session, as used by chat and ask.
func newClientSession(cfg *config.Config, logger *slog.Logger) (*chatclient.Client, *tools.Registry, *session.Engine, error) {
	client := chatclient.New(cfg.Client.ServerURL, nil, logger)
	reg, err := tools.NewDefaultRegistry(cfg.Client.ServerURL, nil, cfg.Client.RenderLocations, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tool registry: %w", err)
	}
	return client, reg, session.New(reg), nil
}

func notifyTimings(c config.ClientConfig) notify.Timings {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return notify.Timings{
		Enter:   ms(c.NotifyEnterMS),
		Display: ms(c.NotifyDisplayMS),
		Exit:    ms(c.NotifyExitMS),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
