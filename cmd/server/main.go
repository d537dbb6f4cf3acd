package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/termdeposit/casebook"
	"github.com/liamcoop/termdeposit/explain"
	"github.com/liamcoop/termdeposit/internal/config"
	"github.com/liamcoop/termdeposit/internal/logger"
	"github.com/liamcoop/termdeposit/pipeline"
	"github.com/liamcoop/termdeposit/variants"
)

func explainConfig(c config.ExplainConfig) explain.Config {
	return explain.Config{
		Samples:     c.Samples,
		Seed:        c.Seed,
		TopN:        c.TopN,
		MaxDisplay:  c.MaxDisplay,
		Interactive: c.Interactive,
		Static:      c.Static,
		Fallback:    explain.ReferenceKind(c.Fallback),
	}
}

// openDB connects to the training-sample database. Failure is not fatal:
// explanations fall back to a degraded reference.
func openDB(databaseURL string) *sql.DB {
	if databaseURL == "" {
		return nil
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Warn("failed to open database, continuing without stored background", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Warn("database unreachable, continuing without stored background", "error", err)
		db.Close()
		return nil
	}
	return db
}

// backgroundSource picks each variant's background: a file when one is
// configured, otherwise the variant's stored training samples.
func backgroundSource(cfg *config.Config, db *sql.DB) variants.BackgroundFunc {
	return func(spec config.VariantSpec, p *pipeline.Pipeline) explain.Background {
		path := spec.BackgroundPath
		if path == "" {
			path = cfg.BackgroundPath
		}

		if path != "" {
			bg, err := explain.LoadFileBackground(path)
			if err != nil {
				logger.Warn("background file unavailable, explanations will use a fallback reference",
					"variant", spec.ID, "path", path, "error", err)
				return nil
			}
			logger.Info("background loaded", "variant", spec.ID, "rows", len(bg))
			return bg
		}

		if db != nil {
			store := explain.NewPostgresSampleStore(db, spec.ID)
			return explain.NewStoreBackground(store, p.Transform, cfg.BackgroundLimit, explain.CacheConfig{TTL: cfg.BackgroundTTL})
		}

		logger.Warn("no background configured, explanations will use a fallback reference", "variant", spec.ID)
		return nil
	}
}

func run(cfg *config.Config) error {
	vf := cfg.DefaultVariants()
	if cfg.VariantsFile != "" {
		var err error
		if vf, err = config.LoadVariants(cfg.VariantsFile); err != nil {
			return err
		}
	}

	db := openDB(cfg.DatabaseURL)
	if db != nil {
		defer db.Close()
	}

	registry, err := variants.Load(vf, cfg.DecisionThreshold, cfg.DecisionPolicy, explainConfig(cfg.Explain), backgroundSource(cfg, db))
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}

	server := NewServer(registry, casebook.Default(cfg.CaseImageDir),
		WithDB(db),
		WithCORSOrigins(cfg.CORSOrigins),
		WithRequestTimeout(cfg.RequestTimeout),
	)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	if err := run(cfg); err != nil {
		logger.Fatal("Server exited", "error", err)
	}
}
