package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"loandocs/api/internal/app"
	"loandocs/api/internal/config"
	"loandocs/api/internal/generate"
	"loandocs/api/internal/legacy"
	"loandocs/api/internal/remote"
	"loandocs/api/internal/search"
	"loandocs/api/internal/split"
	"loandocs/api/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("WARNING: .env not loaded: %v", err)
	}
	cfg := config.Load()
	ctx := context.Background()

	if dir := filepath.Dir(cfg.LocalDBPath); cfg.LocalDBPath != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create data dir: %v", err)
		}
	}
	db, err := store.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		log.Fatalf("local store open failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	local := store.NewLocal(db, cfg.LocalQuotaBytes)

	var legacyStore *legacy.Store
	if strings.TrimSpace(cfg.LegacyDBPath) != "" {
		legacyStore, err = legacy.Open(cfg.LegacyDBPath)
		if err != nil {
			log.Printf("WARNING: legacy store unavailable, migration disabled: %v", err)
			legacyStore = nil
		} else {
			defer legacyStore.Close()
		}
	}

	backend, mode := remote.Select(ctx, cfg)
	defer backend.Close()

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, local, local)

	var renderer generate.Renderer
	if strings.EqualFold(cfg.PDFRender, "chromedp") {
		renderer = generate.NewChromePDF()
	}
	var splitter split.Splitter
	if strings.TrimSpace(cfg.SplitServiceURL) != "" {
		splitter = split.NewClient(cfg.SplitServiceURL, nil)
	}

	service := app.New(cfg, app.Deps{
		Local:     local,
		Remote:    backend,
		Mode:      mode,
		Search:    searchService,
		Legacy:    legacyStore,
		Generator: generate.NewTemplateGenerator(app.NewLoanLookup(local), renderer),
		Splitter:  splitter,
	})

	if legacyStore != nil {
		result, err := service.MigrateFromLegacyStore(ctx)
		if err != nil {
			log.Printf("WARNING: legacy migration error (will retry on next restart): %v", err)
		} else if !result.AlreadyDone {
			log.Printf("legacy migration: migrated=%d skipped=%d errors=%d", result.Migrated, result.Skipped, len(result.Errors))
		}
	}

	reconciler := app.NewReconciler(service, cfg.ReconcileInterval)
	reconciler.Start(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Loan documents API listening on %s (storage mode %s)", cfg.Addr, mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	reconciler.Stop()
	service.Wait()
	searchService.Wait()
}
