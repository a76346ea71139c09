package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-analyzer/internal/logging"
	"github.com/zombor/receipt-analyzer/internal/parsing"
	"github.com/zombor/receipt-analyzer/internal/receipt"
	"github.com/zombor/receipt-analyzer/internal/scanning"
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

	// A .env file in the working directory may hold RECEIPT_ANALYZER_* settings
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	flags := ff.NewFlagSet("receipt-analyzer")
	var (
		port        = flags.IntLong("port", 8080, "HTTP server port")
		dbPath      = flags.StringLong("db", "receipts.db", "SQLite database file path")
		archivePath = flags.StringLong("archive", "receipts-text.db", "OCR text archive file path")
		storagePath = flags.StringLong("storage", "./receipts", "Upload storage directory path")
		tmpDir      = flags.StringLong("tmp-dir", "", "Directory for temporary OCR images (default: system temp dir)")
		ocrEngine   = flags.StringLong("ocr", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		ocrLang     = flags.StringLong("ocr-lang", "eng", "Tesseract languages, '+' separated (e.g. eng+hin)")
		pdfDPI      = flags.Float64Long("pdf-dpi", scanning.DefaultDPI, "Resolution PDF pages are rendered at")
		geminiKey   = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = flags.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = flags.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, minicpm-v, qwen2-vl)")
		vendorsFile = flags.StringLong("vendors-file", "", "JSON file of extra {name, category} vendors, matched before the built-in ones")
		strictDates = flags.BoolLong("strict-dates", "Reject receipts without a readable date instead of using today")
		authUser    = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = flags.StringLong("log-level", "INFO", "Log level: DEBUG, INFO, WARN or ERROR")
		logFormat   = flags.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_ANALYZER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logCfg, err := logging.ParseConfig(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logCfg)

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewSQLiteDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing text archive...", "path", *archivePath)
	archive, err := receipt.NewBoltArchive(*archivePath)
	if err != nil {
		slog.Error("Failed to initialize text archive", "error", err)
		os.Exit(1)
	}
	defer archive.Close()

	// Initialize OCR engine based on type
	var engine scanning.Engine
	switch *ocrEngine {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "languages", *ocrLang)
		engine = scanning.NewTesseract(strings.Split(*ocrLang, "+")...)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		engine, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama engine...", "url", *ollamaURL, "model", *ollamaModel)
		engine, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid OCR engine", "type", *ocrEngine, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer engine.Close()

	extractor := scanning.NewExtractor(engine, scanning.NewFitzRasterizer(*pdfDPI), *tmpDir)

	parserOpts := []parsing.Option{}
	if *vendorsFile != "" {
		vendors, err := parsing.LoadVendors(*vendorsFile)
		if err != nil {
			slog.Error("Failed to load vendors", "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded vendor table", "path", *vendorsFile, "vendors", len(vendors))
		parserOpts = append(parserOpts, parsing.WithVendors(vendors))
	}
	if *strictDates {
		parserOpts = append(parserOpts, parsing.WithStrictDates())
	}
	parser := parsing.NewParser(parserOpts...)

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	receiptService := receipt.NewService(db, archive, store, extractor, parser)

	if files := flags.GetArgs(); len(files) > 0 {
		if failed := ingestFiles(receiptService, files); failed > 0 {
			slog.Error("Some files could not be ingested", "failed", failed, "total", len(files))
			os.Exit(1)
		}
		return
	}

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// ingestFiles stores every file and prints each record as a JSON line.
// It returns the number of files that failed.
func ingestFiles(service *receipt.Service, files []string) int {
	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, path := range files {
		ingested, err := service.IngestFile(path)
		if err != nil {
			slog.Error("Failed to ingest receipt", "path", path, "error", err)
			failed++
			continue
		}
		if err := enc.Encode(ingested.Receipt); err != nil {
			slog.Error("Failed to write record", "path", path, "error", err)
			failed++
		}
	}
	return failed
}
