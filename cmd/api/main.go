package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mkitdev/mkit-input-voucher/internal/ai"
	"github.com/mkitdev/mkit-input-voucher/internal/commit"
	"github.com/mkitdev/mkit-input-voucher/internal/config"
	"github.com/mkitdev/mkit-input-voucher/internal/database"
	"github.com/mkitdev/mkit-input-voucher/internal/handlers"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/otomax"
	"github.com/mkitdev/mkit-input-voucher/internal/otoplus"
	"github.com/mkitdev/mkit-input-voucher/internal/photos"
	"github.com/mkitdev/mkit-input-voucher/internal/pipeline"
	"github.com/mkitdev/mkit-input-voucher/internal/review"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
	"github.com/mkitdev/mkit-input-voucher/internal/stockmon"
	"github.com/mkitdev/mkit-input-voucher/internal/validate"
	ws "github.com/mkitdev/mkit-input-voucher/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetFormatter(&log.JSONFormatter{})
	if cfg.Env == "development" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		log.SetLevel(log.DebugLevel)
	}

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Synchronize schema
	log.Info("Synchronizing database schema")
	if err := db.AutoMigrate(
		&models.VoucherRecord{},
		&models.Batch{},
	); err != nil {
		log.Warnf("Migration warning: %v", err)
	}

	// 4. External collaborators
	core := otomax.NewClient(cfg.Otomax)
	{
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Otomax.Timeout)
		if _, err := core.Authenticate(ctx); err != nil {
			// commits will fail until the core comes back; staging still works
			log.Warnf("Otomax authentication failed, commits unavailable: %v", err)
		} else {
			log.Info("Authenticated against Otomax core")
		}
		cancel()
	}

	var verifier validate.Verifier
	if cfg.Otoplus.Enabled {
		verifier = otoplus.NewClient(cfg.Otoplus)
		log.Info("Otoplus serial verification enabled")
	}

	var parser ai.PhotoParser
	if cfg.Gemini.APIKey != "" {
		gemini, err := ai.NewGeminiParser(context.Background(), cfg.Gemini)
		if err != nil {
			log.Warnf("AI channel disabled: %v", err)
		} else {
			defer gemini.Close()
			parser = gemini
			log.Info("AI photo parsing enabled")
		}
	}

	photoSearch := photos.NewClient(cfg.Photos)

	// 5. Pipeline services
	store := staging.NewGormStore(db.DB)
	validator := validate.New(store, verifier)
	pipe := pipeline.New(store, validator)
	reviewer := review.NewService(store)

	committer := commit.New(store, core)
	committer.Concurrency = cfg.Pipeline.CommitConcurrency
	committer.Timeout = cfg.Otomax.Timeout

	// 6. Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())

	hub := ws.NewHub()
	go hub.Run()

	monitor := stockmon.New(core, hub, cfg.Pipeline.StockPollInterval, cfg.Pipeline.LowStockThreshold)
	go monitor.Run(workerCtx)

	// Retention janitor: purge terminal records past the retention window
	go func() {
		ticker := time.NewTicker(cfg.Pipeline.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-cfg.Pipeline.Retention)
				n, err := store.PurgeExpired(workerCtx, cutoff)
				if err != nil {
					log.Warnf("Retention purge failed: %v", err)
				} else if n > 0 {
					log.Infof("Purged %d terminal records past retention", n)
				}
			}
		}
	}()

	// 7. HTTP server with graceful shutdown
	router := handlers.NewRouter(store, pipe, reviewer, committer, parser, photoSearch, monitor, hub)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Infof("Voucher input service starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Infof("Received signal %v, shutting down gracefully", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	stopWorkers()

	log.Info("Closing database connection")
	if err := db.Close(); err != nil {
		log.Warnf("Database close error: %v", err)
	}

	log.Info("Shutdown complete")
}
