// Package history records one row per docalign invocation — corpus sizes,
// the flags it ran with, how many pairs it emitted, and its wall time —
// into PostgreSQL via pkg/postgres. This persists run *provenance*, never
// the index itself, so it does not conflict with spec.md §1's "no
// persistent storage of the index" non-goal. Opt-in via --history-dsn;
// unset means history recording is simply skipped.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bitextor/docalign/pkg/postgres"
	"github.com/bitextor/docalign/pkg/resilience"
)

// postgresOpTimeout bounds a single Record transaction, matching the
// dfcache package's use of resilience.WithTimeout around its own optional
// backend calls.
const postgresOpTimeout = 3 * time.Second

const createTableSQL = `
CREATE TABLE IF NOT EXISTS docalign_runs (
	id               BIGSERIAL PRIMARY KEY,
	translated_path  TEXT NOT NULL,
	target_path      TEXT NOT NULL,
	ngram_size       INT NOT NULL,
	min_count        INT NOT NULL,
	max_count        INT NOT NULL,
	threshold        DOUBLE PRECISION NOT NULL,
	translated_count INT NOT NULL,
	target_count     INT NOT NULL,
	pairs_emitted    INT NOT NULL,
	one_to_one       BOOLEAN NOT NULL,
	duration_ms      BIGINT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL
)`

// Run describes one completed docalign invocation.
type Run struct {
	TranslatedPath  string
	TargetPath      string
	NgramSize       int
	MinCount        int
	MaxCount        int
	Threshold       float64
	TranslatedCount int
	TargetCount     int
	PairsEmitted    int
	OneToOne        bool
	Duration        time.Duration
	StartedAt       time.Time
}

// Recorder persists Run rows to Postgres.
type Recorder struct {
	client *postgres.Client
	logger *slog.Logger
}

// New opens a Postgres connection at dsn and ensures the run-history table
// exists.
func New(dsn string) (*Recorder, error) {
	client, err := postgres.New(dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.DB.ExecContext(ctx, createTableSQL); err != nil {
		client.Close()
		return nil, fmt.Errorf("creating docalign_runs table: %w", err)
	}
	return &Recorder{client: client, logger: slog.Default().With("component", "history")}, nil
}

// Close releases the underlying Postgres connection.
func (r *Recorder) Close() error {
	return r.client.Close()
}

// Record inserts one Run row. A Postgres error here is logged and
// swallowed by the caller's policy (SPEC_FULL.md §7: history recording
// failures never turn a pipeline run into a failure), so Record itself
// still returns the error and lets the caller decide.
func (r *Recorder) Record(ctx context.Context, run Run) error {
	return resilience.Retry(ctx, "history.record", resilience.RetryConfig{MaxAttempts: 2}, func() error {
		return resilience.WithTimeout(ctx, postgresOpTimeout, "history.record", func(opCtx context.Context) error {
			return r.client.InTx(opCtx, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(opCtx, `
					INSERT INTO docalign_runs
						(translated_path, target_path, ngram_size, min_count, max_count,
						 threshold, translated_count, target_count, pairs_emitted,
						 one_to_one, duration_ms, started_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
					run.TranslatedPath, run.TargetPath, run.NgramSize, run.MinCount, run.MaxCount,
					run.Threshold, run.TranslatedCount, run.TargetCount, run.PairsEmitted,
					run.OneToOne, run.Duration.Milliseconds(), run.StartedAt,
				)
				return err
			})
		})
	})
}
