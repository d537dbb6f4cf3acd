package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/liamcoop/termdeposit/explain"
	"github.com/liamcoop/termdeposit/internal/config"
	"github.com/liamcoop/termdeposit/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string
	var samplesPath string
	var variant string
	var variantsFile string

	flag.StringVar(&databaseURL, "database", "", "Database URL (required)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force, seed")
	flag.StringVar(&samplesPath, "samples", "models/training_sample.json", "Sample file loaded by the seed command")
	flag.StringVar(&variant, "variant", "", "Form variant the seeded samples belong to (defaults to the variants file's default)")
	flag.StringVar(&variantsFile, "variants", os.Getenv("VARIANTS_FILE"), "Variants file used to pick the seed variant when -variant is empty")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("Database URL is required. Use -database flag or DATABASE_URL environment variable")
	}

	if command == "seed" {
		variant, err := seedVariant(variant, variantsFile)
		if err != nil {
			logger.Fatal("Failed to resolve seed variant", "error", err)
		}
		n, err := seed(context.Background(), databaseURL, samplesPath, variant)
		if err != nil {
			logger.Fatal("Failed to seed samples", "error", err)
		}
		logger.Info("Seeded training samples", "variant", variant, "count", n)
		return
	}

	logger.Info("Connecting to database", "migrations", migrationsPath)

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		logger.Fatal("Failed to create migration instance", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return
		}
		if err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
		logger.Info("Migrations completed")

	case "down":
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("Failed to rollback migrations", "error", err)
		}
		logger.Info("Rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("Failed to get version", "error", err)
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(flag.Args()) < 1 {
			logger.Fatal("Force command requires a version number: -command force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &version); err != nil {
			logger.Fatal("Invalid version number", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("Failed to force version", "error", err)
		}
		logger.Info("Forced version", "version", version)

	default:
		logger.Fatal("Unknown command (use: up, down, version, force, seed)", "command", command)
	}
}

// seedVariant picks the variant to seed: the explicit flag, else the default
// of the variants file, else the single "default" variant the server builds
// from MODEL_PATH.
func seedVariant(variant, variantsFile string) (string, error) {
	if variant != "" {
		return variant, nil
	}
	if variantsFile == "" {
		return "default", nil
	}
	vf, err := config.LoadVariants(variantsFile)
	if err != nil {
		return "", err
	}
	return vf.Default, nil
}

// seed loads labeled samples into training_samples for one variant.
func seed(ctx context.Context, databaseURL, path, variant string) (int, error) {
	samples, err := explain.ReadSampleFile(path)
	if err != nil {
		return 0, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := explain.NewPostgresSampleStore(db, variant)
	for i, s := range samples {
		if err := store.Add(ctx, s.Record, s.Subscribed); err != nil {
			return i, err
		}
	}
	return len(samples), nil
}
