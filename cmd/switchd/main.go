// Switchd is the project-switching daemon for per-codebase AI
// assistants.
//
// It keeps a bounded working set of projects hot across three resource
// caches (fine-tuned adapter, vector index, conversation context) and
// exposes atomic project activation over HTTP.
//
// Usage:
//
//	# Start the daemon with defaults
//	switchd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9180 DATA_DIR=/var/lib/switchd switchd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchd/internal/adapter"
	"github.com/fyrsmithlabs/switchd/internal/cache"
	"github.com/fyrsmithlabs/switchd/internal/config"
	"github.com/fyrsmithlabs/switchd/internal/conversation"
	"github.com/fyrsmithlabs/switchd/internal/coordinator"
	"github.com/fyrsmithlabs/switchd/internal/logging"
	"github.com/fyrsmithlabs/switchd/internal/registry"
	"github.com/fyrsmithlabs/switchd/internal/server"
	"github.com/fyrsmithlabs/switchd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/switchd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  switchd           Start the switchd daemon\n")
			fmt.Fprintf(os.Stderr, "  switchd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("switchd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the switchd daemon and blocks until ctx is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Build logger
//  3. Open the project registry
//  4. Build the three resource factories and their caches
//  5. Wire the switch coordinator
//  6. Start the HTTP server
//  7. On shutdown, release every cached resource (persisting contexts)
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting switchd",
		zap.Int("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Data.Dir))

	reg, err := registry.New(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("opening project registry: %w", err)
	}

	adapterLoader := adapter.NewLoader(reg.AdaptersBase(), cfg.Adapter.BaseModel, nil, logger.Named("adapter"))
	storeOpener := vectorstore.NewOpener(reg.VectorStoreBase(), cfg.Data.CompressVectorStore, logger.Named("vectorstore"))
	ctxStore := conversation.NewStore(reg.ContextsBase(), logger.Named("conversation"))

	adapterCache, err := cache.New(cache.Config[*adapter.Adapter]{
		Name:        "adapter",
		MaxEntries:  cfg.Caches.Adapters.MaxEntries,
		MaxBytes:    cfg.Caches.Adapters.MaxBytes,
		LoadTimeout: cfg.Caches.Adapters.LoadTimeout,
		Factory:     adapterLoader,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating adapter cache: %w", err)
	}

	storeCache, err := cache.New(cache.Config[*vectorstore.Store]{
		Name:        "vectorstore",
		MaxEntries:  cfg.Caches.VectorStores.MaxEntries,
		MaxBytes:    cfg.Caches.VectorStores.MaxBytes,
		LoadTimeout: cfg.Caches.VectorStores.LoadTimeout,
		Factory:     storeOpener,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating vector store cache: %w", err)
	}

	contextCache, err := cache.New(cache.Config[*conversation.Context]{
		Name:        "context",
		MaxEntries:  cfg.Caches.Contexts.MaxEntries,
		MaxBytes:    cfg.Caches.Contexts.MaxBytes,
		LoadTimeout: cfg.Caches.Contexts.LoadTimeout,
		Factory:     ctxStore,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating context cache: %w", err)
	}

	coord, err := coordinator.New(coordinator.Caches{
		Adapters:     adapterCache,
		VectorStores: storeCache,
		Contexts:     contextCache,
	}, ctxStore, logger.Named("coordinator"))
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer coord.Close()

	logger.Info("Coordinator ready",
		zap.Int("registered_projects", len(reg.List())))

	srv := server.New(cfg.Server, coord, reg, logger.Named("server"))
	return srv.Start(ctx)
}
