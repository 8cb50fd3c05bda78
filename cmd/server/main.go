package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docrecon/internal/api"
	"github.com/dgallion1/docrecon/internal/config"
	"github.com/dgallion1/docrecon/internal/diff"
	"github.com/dgallion1/docrecon/internal/pipeline"
	"github.com/dgallion1/docrecon/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Chunk set persistence.
	var chunkStore diff.Store
	var closeStore func() error
	switch cfg.StoreBackend {
	case "sqlite":
		s, err := store.NewSQLite(cfg.DataDir)
		if err != nil {
			log.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		chunkStore = s
		closeStore = s.Close
	default:
		chunkStore = store.NewMemory()
		closeStore = func() error { return nil }
	}

	engine := diff.NewEngine(chunkStore)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, engine, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		closeStore()
	}()

	log.Info("starting docrecon", "port", cfg.Port, "store", cfg.StoreBackend)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
