package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"triscan/internal/config"
	"triscan/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	LogScan(ctx context.Context, report model.ScanReport) error
}

// PostgresRepository stores scans and their cycle results in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scans (
	id           UUID PRIMARY KEY,
	exchange     VARCHAR(50) NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	pair_count   INTEGER NOT NULL,
	cycle_count  INTEGER NOT NULL,
	unavailable  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_results (
	id              SERIAL PRIMARY KEY,
	scan_id         UUID NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	fiat            VARCHAR(20) NOT NULL,
	intermediate    VARCHAR(20) NOT NULL,
	token           VARCHAR(20) NOT NULL,
	status          VARCHAR(20) NOT NULL,
	profit_multiple DOUBLE PRECISION,
	reason          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS cycle_results_scan_idx ON cycle_results (scan_id, position);`

// Connect opens a pool for the configured database and checks it is reachable.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// LogScan writes the scan and all of its results in one transaction.
func (r *PostgresRepository) LogScan(ctx context.Context, report model.ScanReport) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO scans (id, exchange, started_at, finished_at, pair_count, cycle_count, unavailable)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID, report.Exchange, report.StartedAt, report.FinishedAt, report.PairCount, len(report.Results), report.Unavailable())

	for i, res := range report.Results {
		var profit *float64
		if res.Available() {
			p := res.ProfitMultiple
			profit = &p
		}
		batch.Queue(`INSERT INTO cycle_results (scan_id, position, fiat, intermediate, token, status, profit_multiple, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			report.ID, i, res.Cycle.Fiat, res.Cycle.Intermediate, res.Cycle.Token, string(res.Status), profit, res.Reason)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: log scan %s: %w", report.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit scan %s: %w", report.ID, err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
