package db

import (
	"context"
	"database/sql"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_type TEXT NOT NULL,
		version INTEGER NOT NULL,
		aggregate_id TEXT NOT NULL,
		correlation_id TEXT NOT NULL DEFAULT '',
		occurred_at DATETIME NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (aggregate_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		aggregate_id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at INTEGER NULL,
		next_retry_at INTEGER NULL,
		idempotency_key TEXT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_next ON outbox (status, next_retry_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_type TEXT NOT NULL,
		version BIGINT NOT NULL,
		aggregate_id TEXT NOT NULL,
		correlation_id TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (aggregate_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		aggregate_id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at BIGINT NULL,
		next_retry_at BIGINT NULL,
		idempotency_key TEXT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_next ON outbox (status, next_retry_at)`,
}

// InitSchema crea las tablas events, snapshots y outbox si no existen.
func InitSchema(ctx context.Context, conn *sql.DB, dialect Dialect) error {
	stmts := sqliteSchema
	if dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init %s schema: %w", dialect, err)
		}
	}
	return nil
}
