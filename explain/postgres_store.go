package explain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/liamcoop/termdeposit/customer"
)

// SampleStore returns raw training-time customer records.
type SampleStore interface {
	Samples(ctx context.Context, limit int) ([]customer.Record, error)
}

// PostgresSampleStore reads training samples for one form variant from the
// training_samples table.
type PostgresSampleStore struct {
	db      *sql.DB
	variant string
}

// NewPostgresSampleStore creates a store scoped to a variant.
func NewPostgresSampleStore(db *sql.DB, variant string) *PostgresSampleStore {
	return &PostgresSampleStore{
		db:      db,
		variant: variant,
	}
}

// Add inserts one training sample.
func (s *PostgresSampleStore) Add(ctx context.Context, rec customer.Record, subscribed bool) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_samples (variant, record, subscribed, created_at)
		VALUES ($1, $2, $3, NOW())
	`, s.variant, payload, subscribed)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}

	return nil
}

// Samples returns up to limit samples, oldest first.
func (s *PostgresSampleStore) Samples(ctx context.Context, limit int) ([]customer.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record
		FROM training_samples
		WHERE variant = $1
		ORDER BY id ASC
		LIMIT $2
	`, s.variant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []customer.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		var rec customer.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("invalid sample record: %w", err)
		}
		samples = append(samples, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	return samples, nil
}

// Count returns how many samples the variant has.
func (s *PostgresSampleStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM training_samples WHERE variant = $1
	`, s.variant).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

// LabeledSample is one training row as stored in a seed file.
type LabeledSample struct {
	Record     customer.Record `json:"record"`
	Subscribed bool            `json:"subscribed"`
}

// ReadSampleFile reads a JSON array of labeled samples.
func ReadSampleFile(path string) ([]LabeledSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	var samples []LabeledSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("invalid sample file %s: %w", path, err)
	}
	return samples, nil
}

// TransformFunc maps a raw record into feature space.
type TransformFunc func(customer.Record) ([]float64, error)

// StoreBackground turns stored training samples into reference rows, caching
// the transformed rows.
type StoreBackground struct {
	store     SampleStore
	transform TransformFunc
	limit     int
	cache     ReferenceCache
}

// NewStoreBackground wires a store through the pipeline's preprocessing stage.
func NewStoreBackground(store SampleStore, transform TransformFunc, limit int, config CacheConfig) *StoreBackground {
	if limit <= 0 {
		limit = 100
	}
	return &StoreBackground{
		store:     store,
		transform: transform,
		limit:     limit,
		cache:     NewInMemoryReferenceCache(config),
	}
}

// Reference returns cached rows, refreshing from the store on a miss.
// Samples the pipeline rejects are skipped.
func (b *StoreBackground) Reference(ctx context.Context) ([][]float64, error) {
	if rows := b.cache.Get(); rows != nil {
		return rows, nil
	}

	samples, err := b.store.Samples(ctx, b.limit)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, 0, len(samples))
	for _, rec := range samples {
		x, err := b.transform(rec)
		if err != nil {
			continue
		}
		rows = append(rows, x)
	}

	b.cache.Set(rows)
	return rows, nil
}
