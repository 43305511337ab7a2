package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store keeps run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Run is one stored run header.
type Run struct {
	ID       string
	Target   string
	Started  time.Time
	Duration time.Duration
	Passed   int
	Failed   int
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS gatecheck_runs (
        id          UUID PRIMARY KEY,
        target      TEXT NOT NULL,
        started_at  TIMESTAMPTZ NOT NULL,
        duration_ms BIGINT NOT NULL,
        passed      INTEGER NOT NULL,
        failed      INTEGER NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS gatecheck_results (
        run_id      UUID NOT NULL REFERENCES gatecheck_runs(id) ON DELETE CASCADE,
        position    INTEGER NOT NULL,
        scenario    TEXT NOT NULL,
        expect      TEXT NOT NULL,
        outcome     TEXT NOT NULL,
        attempts    INTEGER NOT NULL,
        passed      BOOLEAN NOT NULL,
        reason      TEXT NOT NULL,
        error_text  TEXT NOT NULL,
        url         TEXT NOT NULL,
        duration_ms BIGINT NOT NULL,
        artifacts   TEXT[] NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS gatecheck_runs_started_idx ON gatecheck_runs (started_at DESC);`,
}

var resultColumns = []string{"run_id", "position", "scenario", "expect", "outcome", "attempts", "passed", "reason", "error_text", "url", "duration_ms", "artifacts"}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the history tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run header and every scenario result in one transaction.
func (s *Store) SaveRun(ctx context.Context, target string, sum scenario.Summary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed; that is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO gatecheck_runs (id, target, started_at, duration_ms, passed, failed) VALUES ($1, $2, $3, $4, $5, $6)`,
		sum.RunID, target, sum.Started.UTC(), sum.Duration.Milliseconds(), sum.Passed, sum.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(sum.Results) > 0 {
		rows := make([][]interface{}, len(sum.Results))
		for i, r := range sum.Results {
			artifacts := r.Artifacts
			if artifacts == nil {
				artifacts = []string{}
			}
			rows[i] = []interface{}{
				sum.RunID, i, r.Scenario, string(r.Expect), r.Outcome, r.Attempts, r.Passed,
				r.Reason, r.ErrorText, r.URL, r.Duration.Milliseconds(), artifacts,
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"gatecheck_results"}, resultColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy results: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(rows), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run saved.", zap.String("run_id", sum.RunID), zap.Int("results", len(sum.Results)))
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, target, started_at, duration_ms, passed, failed
        FROM gatecheck_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.ID, &r.Target, &r.Started, &ms, &r.Passed, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// RunResults returns the stored results of one run in insertion order.
func (s *Store) RunResults(ctx context.Context, runID string) ([]scenario.Result, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT scenario, expect, outcome, attempts, passed, reason, error_text, url, duration_ms, artifacts
        FROM gatecheck_results
        WHERE run_id = $1
        ORDER BY position ASC;
    `, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []scenario.Result
	for rows.Next() {
		var r scenario.Result
		var expect string
		var ms int64
		err := rows.Scan(&r.Scenario, &expect, &r.Outcome, &r.Attempts, &r.Passed,
			&r.Reason, &r.ErrorText, &r.URL, &ms, &r.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.RunID = runID
		r.Expect = scenario.Expectation(expect)
		r.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
