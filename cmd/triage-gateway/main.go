// ABOUTME: Entry point for the triage-gateway server
// ABOUTME: Routes user requests to specialized agents and manages the ticket store

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/triage-gateway/internal/agent"
	"github.com/2389/triage-gateway/internal/classify"
	"github.com/2389/triage-gateway/internal/config"
	"github.com/2389/triage-gateway/internal/coordinator"
	"github.com/2389/triage-gateway/internal/dedupe"
	"github.com/2389/triage-gateway/internal/inference"
	"github.com/2389/triage-gateway/internal/server"
	"github.com/2389/triage-gateway/internal/session"
	"github.com/2389/triage-gateway/internal/ticket"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _        _                                     _
| |_ _ __(_) __ _  __ _  ___        __ _  __ _| |_ _____      ____ _ _   _
| __| '__| |/ _' |/ _' |/ _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| |_| |  | | (_| | (_| |  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__|_|  |_|\__,_|\__, |\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                  |___/            |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: TRIAGE_CONFIG env var > XDG_CONFIG_HOME/triage/gateway.yaml > ~/.config/triage/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TRIAGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "triage", "gateway.yaml")
}

// getDataPath returns the path to the triage data directory.
// Priority: XDG_DATA_HOME/triage > ~/.local/share/triage
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "triage")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: triage-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	rulesSource := "builtin"
	if cfg.Routing.RulesPath != "" {
		rulesSource = cfg.Routing.RulesPath
	}

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Inference: %s\n", cfg.Inference.Endpoint)
	green.Print("    ▶ ")
	fmt.Printf("Rules:     %s\n", rulesSource)

	fmt.Println()

	logger.Info("starting triage-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"inference_endpoint", cfg.Inference.Endpoint,
	)

	// Ticket store
	store, err := ticket.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening ticket store: %w", err)
	}
	defer store.Close()

	// Upstream completion client and the agent set
	client := inference.NewClient(cfg.Inference.Endpoint, cfg.Inference.APIKey, logger)

	// Resubmitting the same failure within the window does not file a
	// second ticket.
	recent := dedupe.New(10*time.Minute, 1024)
	defer recent.Close()

	agents := []agent.Agent{
		agent.NewIssueIdentifier(logger),
		agent.NewTicketer(store, recent, logger),
		agent.NewCodingAgent(client, modelOptions(cfg, cfg.Inference.Coding), logger),
		agent.NewResearchAgent(client, modelOptions(cfg, cfg.Inference.Research), logger),
	}

	// Classification rules
	rules := classify.DefaultRules()
	if cfg.Routing.RulesPath != "" {
		rules, err = classify.LoadRules(cfg.Routing.RulesPath)
		if err != nil {
			return fmt.Errorf("loading routing rules: %w", err)
		}
	}

	classifier, err := classify.NewClassifier(rules, cfg.Routing.MinConfidence, logger)
	if err != nil {
		return fmt.Errorf("creating classifier: %w", err)
	}

	broadcaster := session.NewBroadcaster(logger)
	defer broadcaster.Close()

	coord, err := coordinator.New(classifier, agents, classify.CategoryResearch, broadcaster, logger)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	srv := server.New(cfg.Server.HTTPAddr, coord, store, broadcaster, logger)
	return srv.Run(ctx)
}

func modelOptions(cfg *config.Config, m config.ModelConfig) inference.Options {
	return inference.Options{
		Model:       m.Model,
		MaxTokens:   m.MaxTokens,
		Temperature: *m.Temperature,
		Timeout:     cfg.Inference.Timeout,
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("triage-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "tickets.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Inference
	fmt.Println("\n--- Inference Configuration ---")
	endpoint := prompt(reader, "Completion endpoint", "https://openrouter.ai/api/v1/chat/completions")
	codingModel := prompt(reader, "Coding agent model", "anthropic/claude-sonnet-4")
	researchModel := prompt(reader, "Research agent model", "openai/gpt-4o")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# triage-gateway configuration\n")
	cfg.WriteString("# Generated by triage-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("inference:\n")
	cfg.WriteString(fmt.Sprintf("  endpoint: \"%s\"\n", endpoint))
	cfg.WriteString("  api_key: \"${TRIAGE_API_KEY}\"\n")
	cfg.WriteString("  timeout: \"30s\"\n")
	cfg.WriteString("  coding:\n")
	cfg.WriteString(fmt.Sprintf("    model: \"%s\"\n", codingModel))
	cfg.WriteString("  research:\n")
	cfg.WriteString(fmt.Sprintf("    model: \"%s\"\n", researchModel))
	cfg.WriteString("\n")

	cfg.WriteString("routing:\n")
	cfg.WriteString("  min_confidence: 0.5\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  TRIAGE_API_KEY=... triage-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
