package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/travel-reimburse/internal/claim"
	"github.com/zombor/travel-reimburse/internal/filestore"
	"github.com/zombor/travel-reimburse/internal/handoff"
	"github.com/zombor/travel-reimburse/internal/reimbursement"
	"github.com/zombor/travel-reimburse/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("travel-reimburse")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "travel-reimburse.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./invoices", "Directory for uploaded invoice files")
		handoffPath   = fs.StringLong("handoff-dir", "./handoff", "Directory for batch and per-invoice hand-off files")
		rulesPath     = fs.StringLong("rules", "", "YAML file overriding the built-in normalization and classification rules")
		scannerType   = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'openai'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		openaiKey     = fs.StringLong("openai-key", "", "API key for the OpenAI-compatible endpoint (or set DASHSCOPE_API_KEY env var)")
		openaiBaseURL = fs.StringLong("openai-base-url", scanning.DashScopeBaseURL, "OpenAI-compatible API base URL (e.g. http://localhost:11434/v1 for Ollama)")
		openaiModel   = fs.StringLong("openai-model", scanning.DefaultVisionModel, "Vision model name")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		debug         = fs.BoolLong("debug", "Enable debug logging")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TRAVEL_REIMBURSE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var override []byte
	if *rulesPath != "" {
		data, err := os.ReadFile(*rulesPath)
		if err != nil {
			slog.Error("Failed to read rules file", "path", *rulesPath, "error", err)
			os.Exit(1)
		}
		override = data
	}
	rules, err := claim.LoadRules(override)
	if err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}
	engine := claim.NewEngine(rules)

	slog.Info("Initializing database...")
	db, err := reimbursement.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "openai":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("DASHSCOPE_API_KEY")
		}
		slog.Info("Initializing OpenAI-compatible scanner...", "url", *openaiBaseURL, "model", *openaiModel)
		scanner, err = scanning.NewOpenAI(apiKey, *openaiBaseURL, *openaiModel)
		if err != nil {
			slog.Error("Failed to initialize OpenAI-compatible scanner", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or openai")
		os.Exit(1)
	}
	defer scanner.Close()

	slog.Info("Initializing storage...")
	store, err := filestore.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	handoffStore, err := filestore.NewLocalStorage(*handoffPath)
	if err != nil {
		slog.Error("Failed to initialize hand-off storage", "error", err)
		os.Exit(1)
	}
	writer := handoff.NewWriter(handoffStore, handoff.NewConverter(engine))

	service := reimbursement.NewService(db, scanner, store, engine, writer)
	server := reimbursement.NewServer(service, reimbursement.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
