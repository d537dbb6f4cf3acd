//go:build integration

package explain_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/termdeposit/customer"
	"github.com/liamcoop/termdeposit/explain"
	"github.com/liamcoop/termdeposit/pipeline"
)

// setupTestDB creates a PostgreSQL container and returns a migrated connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "termdeposit_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=termdeposit_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_training_samples.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}
	return db, cleanup
}

func seedSamples(t *testing.T, store *explain.PostgresSampleStore) int {
	t.Helper()
	samples, err := explain.ReadSampleFile(filepath.Join("..", "models", "training_sample.json"))
	if err != nil {
		t.Fatalf("ReadSampleFile() failed: %v", err)
	}
	for _, s := range samples {
		if err := store.Add(context.Background(), s.Record, s.Subscribed); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}
	return len(samples)
}

func TestPostgresSampleStore_AddAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := explain.NewPostgresSampleStore(db, "rf")
	n := seedSamples(t, store)

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != n {
		t.Errorf("Count() = %d, want %d", count, n)
	}

	samples, err := store.Samples(ctx, 5)
	if err != nil {
		t.Fatalf("Samples() failed: %v", err)
	}
	if len(samples) != 5 {
		t.Fatalf("Samples(5) returned %d rows", len(samples))
	}
	if _, ok := samples[0]["job"].(string); !ok {
		t.Errorf("job should round-trip as a string, got %T", samples[0]["job"])
	}
	if _, err := samples[0].Float("age"); err != nil {
		t.Errorf("age should round-trip as a number: %v", err)
	}
}

func TestPostgresSampleStore_VariantIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedSamples(t, explain.NewPostgresSampleStore(db, "rf"))

	other := explain.NewPostgresSampleStore(db, "lr-duration")
	if err := other.Add(ctx, customer.Record{"age": 30.0}, false); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	count, err := other.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("lr-duration sees %d samples, want 1", count)
	}
}

func TestStoreBackground_ExplainsAgainstStoredSamples(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p, err := pipeline.Load(filepath.Join("..", "models", "rf_pipeline.json"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	store := explain.NewPostgresSampleStore(db, "rf")
	n := seedSamples(t, store)

	bg := explain.NewStoreBackground(store, p.Transform, 100, explain.DefaultCacheConfig())
	rows, err := bg.Reference(ctx)
	if err != nil {
		t.Fatalf("Reference() failed: %v", err)
	}
	if len(rows) != n {
		t.Errorf("Reference() returned %d rows, want %d", len(rows), n)
	}

	pred, err := p.Predict(p.Schema().Defaults())
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}

	ex := explain.New(p.Classifier().PredictProba, p.FeatureNames(), bg, explain.DefaultConfig())
	res := ex.Explain(ctx, pred.Features)
	if res.Unavailable {
		t.Fatalf("explanation unavailable: %s", res.Reason)
	}
	if res.Reference != explain.ReferenceSample {
		t.Errorf("Reference = %s, want %s", res.Reference, explain.ReferenceSample)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}
