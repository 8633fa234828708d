// Zonebot is a Slack bot for DNS operations teams.
//
// It answers DNS questions in channels it is invited to and runs zone
// analysis and health checks against the UltraDNS API, feeding the
// results through hosted assistants. Each Slack channel keeps one
// persistent assistant conversation, so follow-up questions have
// context. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	zonebot serve            Connect to Slack and serve until signalled
//	zonebot init             Provision assistants and write the id file
//	zonebot ask <question>   Ask a single DNS question (for testing)
//	zonebot threads          List known channel threads
//	zonebot version          Print version and build information
//	zonebot -o json version  Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/dnsops/zonebot/internal/assistant"
	"github.com/dnsops/zonebot/internal/buildinfo"
	"github.com/dnsops/zonebot/internal/config"
	"github.com/dnsops/zonebot/internal/gateway"
	"github.com/dnsops/zonebot/internal/health"
	"github.com/dnsops/zonebot/internal/slack"
	"github.com/dnsops/zonebot/internal/store"
	"github.com/dnsops/zonebot/internal/ultradns"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the zonebot command. All OS-level
// dependencies are injected as parameters: ctx controls the process
// lifetime, stdout and stderr receive all output, and args is
// os.Args[1:]. Arguments are parsed by hand — the flag package relies
// on package-level globals, which gets in the way of calling run()
// concurrently from tests, and the argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Credentials commonly live in a .env file during development.
	// A missing file is the normal production case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

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
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
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
	case "init":
		return runInit(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: zonebot ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "threads":
		return runThreads(stdout, configPath)
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
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Zonebot - DNS operations Slack bot")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: zonebot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Connect to Slack and serve until signalled")
	fmt.Fprintln(w, "  init         Provision assistants and write the id file")
	fmt.Fprintln(w, "  ask          Ask a single DNS question (for testing)")
	fmt.Fprintln(w, "  threads      List known channel threads")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./zonebot.yaml, ~/.config/zonebot/zonebot.yaml, /etc/zonebot/zonebot.yaml")
	return nil
}

// runThreads handles the "zonebot threads" subcommand. It lists the
// persisted channel→thread mappings, most recently used first, so an
// operator can see which channels the bot holds conversations in.
func runThreads(w io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.DataDir, "zonebot.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open thread database %s: %w", dbPath, err)
	}
	defer db.Close()
	st, err := store.NewStore(db)
	if err != nil {
		return fmt.Errorf("migrate thread database: %w", err)
	}

	threads, err := st.List()
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Fprintf(w, "No channel threads recorded in %s (config %s).\n", dbPath, cfgPath)
		return nil
	}
	for _, th := range threads {
		fmt.Fprintf(w, "%s\t%s\t%s\n", th.Channel, th.ThreadID, th.LastSeen.Format(time.RFC3339))
	}
	return nil
}

// runAsk handles the "zonebot ask <question>" subcommand. It runs one
// question through the dns-helper assistant on a throwaway thread and
// prints the answer. Useful for smoke tests without a Slack workspace.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	registry, err := assistant.LoadRegistry(cfg.AssistantsPath())
	if err != nil {
		return err
	}
	if !registry.Complete() {
		return fmt.Errorf("assistants not provisioned; run `zonebot init` first")
	}

	// Nothing to persist for a one-shot question, so the thread store
	// lives in memory.
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return fmt.Errorf("open memory database: %w", err)
	}
	defer db.Close()
	st, err := store.NewStore(db)
	if err != nil {
		return err
	}

	sessions := assistant.NewManager(assistant.ManagerConfig{
		API:              assistant.NewClient(cfg.OpenAI.APIKey, logger),
		Store:            st,
		DefaultAssistant: registry.DNSHelper,
		PollInterval:     cfg.OpenAI.PollInterval,
		RunTimeout:       cfg.OpenAI.RunTimeout,
		BusyWaitTimeout:  cfg.OpenAI.BusyWaitTimeout,
		Logger:           logger,
	})

	answer, err := sessions.Converse(ctx, "cli-"+uuid.NewString(), question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, answer)
	return nil
}

// runServe handles the "zonebot serve" subcommand. It is the primary
// operating mode: loads config, opens the thread database, builds the
// provider and assistant clients, connects to Slack over Socket Mode,
// and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting zonebot",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("config %s: %w", cfgPath, err)
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded", "path", cfgPath, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Thread store ---
	// Channel→thread mappings persist across restarts so conversations
	// keep their context.
	dbPath := filepath.Join(cfg.DataDir, "zonebot.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open thread database %s: %w", dbPath, err)
	}
	defer db.Close()
	st, err := store.NewStore(db)
	if err != nil {
		return fmt.Errorf("migrate thread database: %w", err)
	}
	logger.Info("thread database opened", "path", dbPath)

	// --- Assistants ---
	registry, err := assistant.LoadRegistry(cfg.AssistantsPath())
	if err != nil {
		return err
	}
	if !registry.Complete() {
		return fmt.Errorf("assistants not provisioned; run `zonebot init` first")
	}

	sessions := assistant.NewManager(assistant.ManagerConfig{
		API:              assistant.NewClient(cfg.OpenAI.APIKey, logger),
		Store:            st,
		DefaultAssistant: registry.DNSHelper,
		PollInterval:     cfg.OpenAI.PollInterval,
		RunTimeout:       cfg.OpenAI.RunTimeout,
		BusyWaitTimeout:  cfg.OpenAI.BusyWaitTimeout,
		Logger:           logger,
	})

	// --- DNS provider ---
	dns := ultradns.NewClient(ultradns.Config{
		BaseURL:          cfg.UltraDNS.BaseURL,
		Username:         cfg.UltraDNS.Username,
		Password:         cfg.UltraDNS.Password,
		TaskPollInterval: cfg.UltraDNS.TaskPollInterval,
		TaskTimeout:      cfg.UltraDNS.TaskTimeout,
		StatusURL:        cfg.UltraDNS.StatusURL,
		Logger:           logger,
	})

	// --- Slack ---
	web := slack.NewWebClient(cfg.Slack.BotToken, logger)
	socket := slack.NewSocketClient(cfg.Slack.AppToken, logger)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Dependency monitoring ---
	// Advisory: the provider token refreshes on demand and Socket Mode
	// re-dials with backoff, so a dependency that is down right now
	// does not prevent serving. The snapshot feeds the
	// /udns-system-status reply.
	monitor := health.NewMonitor(health.Config{Logger: logger})
	monitor.Register("ultradns", dns.Ping)
	monitor.Register("slack", func(pCtx context.Context) error {
		_, err := web.AuthTest(pCtx)
		return err
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	gw := gateway.New(gateway.Config{
		Sessions: sessions,
		DNS:      dns,
		Registry: registry,
		Health:   monitor,
		Logger:   logger,
	})

	probeCtx, probeCancel := context.WithTimeout(ctx, 15*time.Second)
	botUserID, err := web.AuthTest(probeCtx)
	if err != nil {
		logger.Warn("auth.test failed, self-message filtering disabled", "error", err)
	}
	probeCancel()

	bridge := slack.NewBridge(slack.BridgeConfig{
		Source:    socket,
		Poster:    web,
		Router:    gw,
		BotUserID: botUserID,
		Logger:    logger,
	})

	socketErr := make(chan error, 1)
	go func() {
		socketErr <- socket.Run(ctx)
	}()

	// Start blocks until ctx is cancelled or the socket client closes
	// its message channel, then drains in-flight handlers.
	bridge.Start(ctx)

	if err := <-socketErr; err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode: %w", err)
	}

	logger.Info("zonebot stopped")
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog; this helper standardizes
// the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig resolves and loads the configuration file.
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
