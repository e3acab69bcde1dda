// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/task-priority-api/internal/logging"
	"github.com/JakeFAU/task-priority-api/internal/priority"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable receives prediction rows when no table is configured.
const DefaultTable = "predictions"

// PredictionStoreConfig controls the Postgres connection pool used for audit rows.
type PredictionStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PredictionStore writes one audit row per prediction.
type PredictionStore struct {
	pool  execCloser
	table string
}

// NewPredictionStore creates a Postgres-backed PredictionStore using the provided config.
func NewPredictionStore(ctx context.Context, cfg PredictionStoreConfig) (*PredictionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PredictionStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewPredictionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPredictionStoreWithPool(pool execCloser, table string) (*PredictionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PredictionStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *PredictionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the audit table when it does not exist.
func (s *PredictionStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("prediction store is not configured")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	priority TEXT NOT NULL,
	class_index INTEGER NOT NULL,
	days_until_due INTEGER,
	embedder TEXT NOT NULL,
	model_checksum TEXT,
	text_length INTEGER NOT NULL,
	request_id TEXT,
	predicted_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Record inserts a prediction row. The request id is taken from ctx.
func (s *PredictionStore) Record(ctx context.Context, prediction priority.Prediction) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("prediction store is not configured")
	}
	if prediction.ID == "" {
		return fmt.Errorf("prediction id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	priority,
	class_index,
	days_until_due,
	embedder,
	model_checksum,
	text_length,
	request_id,
	predicted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	var days any
	if prediction.DaysUntilDue != nil {
		days = *prediction.DaysUntilDue
	}
	args := []any{
		prediction.ID,
		prediction.Priority,
		prediction.Class,
		days,
		prediction.Embedder,
		prediction.ModelChecksum,
		prediction.TextLength,
		logging.RequestID(ctx),
		prediction.PredictedAt.UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}
