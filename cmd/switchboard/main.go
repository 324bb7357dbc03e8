package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/switchboard/internal/api"
	"github.com/mattjoyce/switchboard/internal/catalog"
	"github.com/mattjoyce/switchboard/internal/config"
	"github.com/mattjoyce/switchboard/internal/engine"
	"github.com/mattjoyce/switchboard/internal/events"
	"github.com/mattjoyce/switchboard/internal/exechandler"
	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/journal"
	"github.com/mattjoyce/switchboard/internal/log"
	"github.com/mattjoyce/switchboard/internal/manifest"
	"github.com/mattjoyce/switchboard/internal/observe"
	"github.com/mattjoyce/switchboard/internal/storage"
	"github.com/mattjoyce/switchboard/internal/tui/picker"
	"github.com/mattjoyce/switchboard/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "dispatch":
		if hasHelpFlag(args) {
			printDispatchHelp()
			return 0
		}
		return runDispatch(args)
	case "handlers":
		return runHandlersNoun(args)
	case "config":
		return runConfigNoun(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// --- NOUN DISPATCHERS ---

func runHandlersNoun(args []string) int {
	if len(args) < 1 {
		printHandlersNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHandlersNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printHandlersListHelp()
			return 0
		}
		return runHandlersList(actionArgs)
	case "help":
		printHandlersNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown handlers action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "hash":
		if hasHelpFlag(actionArgs) {
			printConfigHashHelp()
			return 0
		}
		return runConfigHash(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

// --- ACTION IMPLEMENTATIONS ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfigWithDiscovery(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("switchboard starting", "version", version, "config", resolvedPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Journal.Path)
	if err != nil {
		logger.Error("failed to open journal database", "path", cfg.Journal.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("journal opened", "path", cfg.Journal.Path)

	cat, err := buildCatalog(cfg, logger)
	if err != nil {
		logger.Error("handler discovery failed", "error", err)
		return 1
	}
	logger.Info("catalog built", "capabilities", len(cat.Capabilities()), "handlers", cat.Size())
	for _, capability := range cat.Capabilities() {
		for _, h := range cat.Lookup(capability) {
			meta := h.Metadata()
			logger.Info("handler registered",
				"capability", capability,
				"handler", meta.Name,
				"version", meta.Version.String(),
				"priority", meta.Priority,
				"deprecated", meta.Deprecated,
			)
		}
	}

	hub := events.NewHub(256)
	observer := observe.Multi{
		observe.NewLogger(log.WithComponent("dispatch")),
		observe.NewHubObserver(hub),
	}
	coordinator := engine.New(cat, observer)

	store := journal.NewStore(db)
	dispatcher := journal.NewRecordingDispatcher(coordinator, store)

	// Periodically prune journal rows past the retention window.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruned, err := store.Prune(ctx, cfg.Service.JournalRetention)
				if err != nil {
					logger.Warn("journal prune failed", "error", err)
					continue
				}
				if pruned > 0 {
					logger.Info("journal pruned", "rows", pruned)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}
		apiServer := api.New(apiConfig, dispatcher, cat, store, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("switchboard running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("switchboard stopped")
	return 0
}

// paramFlags collects repeated -p key=value flags.
type paramFlags map[string]any

func (p paramFlags) String() string { return "" }

func (p paramFlags) Set(value string) error {
	key, val, found := strings.Cut(value, "=")
	if !found || key == "" {
		return fmt.Errorf("parameter must be key=value, got %q", value)
	}
	p[key] = val
	return nil
}

func runDispatch(args []string) int {
	params := paramFlags{}

	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output dispatch result as JSON")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall dispatch deadline")
	fs.Var(params, "p", "Request parameter as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigWithDiscovery(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Keep human-facing output clean; handler faults are reported below.
	log.Setup("error", cfg.Service.LogFormat)

	cat, err := buildCatalog(cfg, log.WithComponent("discovery"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Handler discovery failed: %v\n", err)
		return 1
	}

	capability := ""
	if fs.NArg() > 0 {
		capability = fs.Arg(0)
	} else {
		// No capability given: pick one interactively. The selection lives
		// in the final model the program returns, not in the model passed in.
		final, err := tea.NewProgram(picker.New(cat)).Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			return 1
		}
		if m, ok := final.(picker.Model); ok {
			capability = m.Choice()
		}
		if capability == "" {
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	coordinator := engine.New(cat, observe.NewLogger(log.WithComponent("dispatch")))
	result, err := coordinator.Execute(handler.NewRequest(ctx, capability, params))
	if err != nil {
		var exhausted *engine.ExhaustedError
		if errors.As(err, &exhausted) && exhausted.LastErr != nil {
			fmt.Fprintf(os.Stderr, "Dispatch failed: %v\n  last fault: %v\n", err, exhausted.LastErr)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Dispatch failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("Handled by %s (attempt %d of chain, %s)\n",
		result.Handler, result.Attempts, result.Elapsed.Round(time.Millisecond))
	return 0
}

func runHandlersList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output handler table as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigWithDiscovery(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup("error", cfg.Service.LogFormat)

	cat, err := buildCatalog(cfg, log.WithComponent("discovery"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Handler discovery failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		out := make(map[string][]api.HandlerInfo)
		for _, capability := range cat.Capabilities() {
			for _, h := range cat.Lookup(capability) {
				meta := h.Metadata()
				out[capability] = append(out[capability], api.HandlerInfo{
					Name:       meta.Name,
					Version:    meta.Version.String(),
					Capability: meta.Capability,
					Priority:   meta.Priority,
					Deprecated: meta.Deprecated,
				})
			}
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if cat.Size() == 0 {
		fmt.Println("No handlers discovered.")
		return 0
	}

	for _, capability := range cat.Capabilities() {
		fmt.Printf("%s:\n", capability)
		for i, h := range cat.Lookup(capability) {
			meta := h.Metadata()
			deprecated := ""
			if meta.Deprecated {
				deprecated = "  [deprecated]"
			}
			fmt.Printf("  %d. %s v%s (priority %d)%s\n",
				i+1, meta.Name, meta.Version.String(), meta.Priority, deprecated)
		}
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfigWithDiscovery(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration check PASSED: %s\n", resolvedPath)
	fmt.Printf("  service: %s (log %s/%s)\n", cfg.Service.Name, cfg.Service.LogLevel, cfg.Service.LogFormat)
	fmt.Printf("  handler roots: %s\n", strings.Join(cfg.HandlerRoots, ", "))
	fmt.Printf("  journal: %s (retention %s)\n", cfg.Journal.Path, cfg.Service.JournalRetention)
	if cfg.API.Enabled {
		fmt.Printf("  api: enabled on %s\n", cfg.API.Listen)
	} else {
		fmt.Println("  api: disabled")
	}
	return 0
}

func runConfigHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := *configPath
	if target == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		target = discovered
	}

	info, err := os.Stat(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config not found: %v\n", err)
		return 1
	}

	configDir := target
	configFile := "config.yaml"
	if !info.IsDir() {
		configDir = filepath.Dir(target)
		configFile = filepath.Base(target)
	}

	if err := config.GenerateChecksums(configDir, []string{configFile}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write checksums: %v\n", err)
		return 1
	}

	fmt.Printf("Integrity hashes updated: %s\n", filepath.Join(configDir, ".checksums"))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8710", "Switchboard API URL")
	apiKey := fs.String("api-key", os.Getenv("SWITCHBOARD_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or SWITCHBOARD_API_KEY env var.")
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- SHARED HELPERS ---

func loadConfigWithDiscovery(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

// buildCatalog discovers handler manifests under the configured roots and
// freezes them into a dispatch catalog.
func buildCatalog(cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	defs, err := manifest.DiscoverMany(cfg.HandlerRoots, func(level, msg string, args ...any) {
		switch level {
		case "debug":
			logger.Debug(msg, args...)
		case "info":
			logger.Info(msg, args...)
		case "warn":
			logger.Warn(msg, args...)
		case "error":
			logger.Error(msg, args...)
		}
	})
	if err != nil {
		return nil, err
	}

	return catalog.Build(exechandler.FromDefinitions(defs))
}

// --- VERSION ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: switchboard version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("switchboard %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- HELP TEXT ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`switchboard - Capability-based handler dispatch service

Usage:
  switchboard <command> [flags]

Commands:
  serve             Run the dispatch service in the foreground
  dispatch          Dispatch a capability request from the command line
  handlers list     Show discovered handlers per capability
  config check      Validate configuration syntax and integrity
  config hash       Authorize current config (update integrity hashes)
  watch             Real-time dispatch monitoring TUI
  version           Show version information

General:
  --version         Show version information
  help              Show this help message

Use 'switchboard <command> --help' for command-specific flags.
`)
}

func printServeHelp() {
	fmt.Println("Usage: switchboard serve [--config PATH]")
	fmt.Println("Run the dispatch service in the foreground.")
}

func printDispatchHelp() {
	fmt.Println("Usage: switchboard dispatch [capability] [-p key=value ...] [--config PATH] [--json] [--timeout D]")
	fmt.Println()
	fmt.Println("Dispatch a capability request against locally discovered handlers.")
	fmt.Println("Without a capability argument an interactive picker is shown.")
}

func printHandlersNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: switchboard handlers <action>")
	fmt.Fprintln(w, "Actions: list")
}

func printHandlersListHelp() {
	fmt.Println("Usage: switchboard handlers list [--config PATH] [--json]")
	fmt.Println("Show discovered handlers grouped by capability, in dispatch order.")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: switchboard config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, hash")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: switchboard config check [--config PATH]")
	fmt.Println("Validate configuration syntax, defaults, and integrity.")
}

func printConfigHashHelp() {
	fmt.Println("Usage: switchboard config hash [--config PATH]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printWatchHelp() {
	fmt.Println("Usage: switchboard watch [flags]")
	fmt.Println()
	fmt.Println("Real-time dispatch monitoring TUI.")
	fmt.Println("Shows service health, per-capability activity, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Switchboard API URL (default: http://localhost:8710)")
	fmt.Println("  --api-key KEY    API Bearer Token (or SWITCHBOARD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate capabilities")
}
