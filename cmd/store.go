package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/scenario"
	"github.com/xkilldash9x/gatecheck/internal/store"
)

// historyStore is the part of store.Store the commands use.
type historyStore interface {
	SaveRun(ctx context.Context, target string, sum scenario.Summary) error
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
	RunResults(ctx context.Context, runID string) ([]scenario.Result, error)
}

// openStore connects to the history database and applies the schema. Tests replace it.
var openStore = func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (historyStore, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// saveHistory stores the run when a database is configured. Failures are logged only.
func saveHistory(ctx context.Context, cfg config.Interface, sum scenario.Summary, logger *zap.Logger) {
	sc := cfg.Store()
	if sc.DatabaseURL == "" || sum.RunID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	hs, closeFn, err := openStore(ctx, sc, logger)
	if err != nil {
		logger.Warn("Run history unavailable.", zap.Error(err))
		return
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(ctx, sc.Timeout)
	defer cancel()
	if err := hs.SaveRun(ctx, cfg.Target().BaseURL, sum); err != nil {
		logger.Warn("Failed to save run history.", zap.String("run_id", sum.RunID), zap.Error(err))
	}
}
