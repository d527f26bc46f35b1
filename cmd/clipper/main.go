package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cwygoda/clipper/internal/adapter/extractor"
	httpAdapter "github.com/cwygoda/clipper/internal/adapter/http"
	"github.com/cwygoda/clipper/internal/adapter/mediatool"
	"github.com/cwygoda/clipper/internal/adapter/memory"
	"github.com/cwygoda/clipper/internal/adapter/sqlite"
	"github.com/cwygoda/clipper/internal/cleanup"
	"github.com/cwygoda/clipper/internal/config"
	"github.com/cwygoda/clipper/internal/domain"
	"github.com/cwygoda/clipper/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env: %v", err)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	log.Printf("starting clipper on port %d", cfg.Port)
	log.Printf("archive: %s", cfg.DBPath)
	log.Printf("work dir: %s", cfg.WorkDir)

	// Initialize SQLite archive
	archive, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer archive.Close()

	// Initialize job registry and drop leftovers from a previous run
	registry, err := memory.New(cfg.WorkDir)
	if err != nil {
		log.Fatalf("failed to initialize work dir: %v", err)
	}
	if purged, err := registry.PurgeOrphans(); err != nil {
		log.Printf("warning: failed to purge orphaned job dirs: %v", err)
	} else if purged > 0 {
		log.Printf("purged %d orphaned job dirs", purged)
	}

	// Detect ffmpeg
	tool := mediatool.Detect(context.Background(), cfg.FFmpegPath)
	if tool.Available() {
		log.Printf("ffmpeg: %s (%s)", tool.Path, tool.Version)
	} else {
		log.Println("ffmpeg not found, merging and audio conversion disabled")
	}

	// Graceful shutdown setup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Initialize worker pool and domain service
	ytdlp := extractor.NewYtDlp(cfg.CookiesFile)
	w := worker.New(ytdlp, tool.Path, cfg.Prefix, cfg.Retries)
	pool := worker.NewPool(ctx, w, cfg.MaxConcurrent)
	svc := domain.NewJobService(registry, pool, ytdlp, tool.Available(), cfg.Prefix)

	// Start sweeper
	sweeper := cleanup.New(registry, archive, cleanup.Policy{
		JobTTL:        cfg.JobTTL,
		DownloadGrace: cfg.DownloadGrace,
	}, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// Start HTTP server
	srv := httpAdapter.NewServer(svc, archive, httpAdapter.Config{
		Addr:          cfg.Addr(),
		MediaToolPath: tool.Path,
		StartRate:     cfg.StartRate,
		StartBurst:    cfg.StartBurst,
	})
	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			select {
			case sigCh <- syscall.SIGTERM:
			default:
			}
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop extractions and wait for workers
	cancel()
	pool.Wait()

	if n := sweeper.Sweep(shutdownCtx); n > 0 {
		log.Printf("archived %d expired jobs", n)
	}

	log.Println("shutdown complete")
}
