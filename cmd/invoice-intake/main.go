package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/invoice-intake/internal/einvoice"
	"github.com/zombor/invoice-intake/internal/ledger"
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

	fs := ff.NewFlagSet("invoice-intake")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "invoice-intake.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./invoices", "Storage directory path")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		maxBytes     = fs.IntLong("max-invoice-bytes", einvoice.DefaultMaxBytes, "Largest accepted invoice document in bytes")
		maxNodes     = fs.IntLong("max-invoice-nodes", einvoice.DefaultMaxNodes, "Largest accepted invoice document in XML elements")
		batchWorkers = fs.IntLong("batch-workers", ledger.DefaultBatchWorkers, "Documents parsed concurrently by a batch import")
		parseFile    = fs.StringLong("parse", "", "Parse one invoice file, print it as JSON and exit")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_INTAKE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	parser := einvoice.NewParser(
		einvoice.WithMaxBytes(*maxBytes),
		einvoice.WithMaxNodes(*maxNodes),
		einvoice.WithLogger(slog.Default()),
	)

	if *parseFile != "" {
		if err := printInvoice(parser, *parseFile); err != nil {
			slog.Error("Failed to parse invoice", "file", *parseFile, "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := ledger.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := ledger.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ledger.NewMetrics(reg)

	// Initialize service
	service := ledger.NewService(db, parser, store).
		WithMetrics(metrics).
		WithBatchWorkers(*batchWorkers)

	// Initialize server
	basicAuth := ledger.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := ledger.NewServer(service, basicAuth, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
}

// printInvoice parses one file and writes the document to stdout
func printInvoice(parser *einvoice.Parser, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := parser.Parse(data)
	if err != nil {
		var perr *einvoice.ParseError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "%s (envelope depth %d)\n", perr.Kind, perr.Depth)
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
