// Command ssebridge runs the SSE bridge and recurring/one-shot timer
// engines as a standalone HTTP service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/ssebridge/internal/bridge"
	"github.com/codeready-toolchain/ssebridge/pkg/calendar"
	"github.com/codeready-toolchain/ssebridge/pkg/chunk"
	"github.com/codeready-toolchain/ssebridge/pkg/config"
	"github.com/codeready-toolchain/ssebridge/pkg/correlation"
	"github.com/codeready-toolchain/ssebridge/pkg/dispatch"
	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc/fake"
	"github.com/codeready-toolchain/ssebridge/pkg/jobstore"
	"github.com/codeready-toolchain/ssebridge/pkg/oneshot"
	"github.com/codeready-toolchain/ssebridge/pkg/recurring"
	"github.com/codeready-toolchain/ssebridge/pkg/registry"
	"github.com/codeready-toolchain/ssebridge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_FILE", "./config/bridge.yaml"), "Path to the bridge configuration YAML file")
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to a .env file of secret overrides")
	flag.Parse()

	log := slog.Default().With("component", "main")

	if err := godotenv.Load(*envPath); err != nil {
		log.Warn("no .env file loaded, continuing with existing environment", "path", *envPath, "error", err)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Info("starting ssebridge", "version", version.Full())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := jobstore.NewStoreFromDSN(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("error closing database pool", "error", err)
		}
	}()
	log.Info("connected to database and applied migrations")

	// The LLM/agent execution core, chat-message persistence, and
	// platform-adapter ingest pipeline that would normally back these
	// collaborators are out of scope for this module (see DESIGN.md); the
	// standalone binary wires the recording fakes so the bridge and timer
	// engines are fully operational end-to-end, with the understanding
	// that a host application replaces them with real implementations by
	// constructing its own *bridge.App instead of calling this main().
	msgSvc := &fake.MessageService{}
	collector := &fake.MessageCollector{}
	oracle := calendar.New(cfg.Calendar.CacheDir, cfg.FetchTimeout())

	reg := registry.New()
	corr := correlation.New(reg)
	emitter := chunk.NewEmitter()
	disp := dispatch.New(reg, corr, emitter)
	assembler := chunk.NewAssembler(bridge.FileReadyHandler(collector))
	recurringEngine := recurring.New(store, msgSvc, oracle)
	oneShotSvc := oneshot.New(msgSvc, cfg.Timers.OneShotPersistPath)

	app := bridge.New(cfg, reg, corr, disp, emitter, assembler, recurringEngine, oneShotSvc, store, collector, msgSvc, oracle)

	if err := app.Start(ctx); err != nil {
		log.Error("failed to start background services", "error", err)
		os.Exit(1)
	}
	defer app.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	app.Routes(router)

	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during HTTP shutdown", "error", err)
		}
	}()

	log.Info("HTTP server listening", "addr", cfg.HTTP.ListenAddr, "mount_path", cfg.HTTP.MountPath)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
