package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations — идемпотентные DDL statements.
// Применяются при старте процесса в порядке объявления.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS leases (
		resource_name     TEXT PRIMARY KEY,
		holder_id         TEXT        NOT NULL,
		acquired_at       TIMESTAMPTZ NOT NULL,
		expires_at        TIMESTAMPTZ NOT NULL,
		last_heartbeat_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS executions (
		execution_id  TEXT PRIMARY KEY,
		subject_id    TEXT        NOT NULL,
		job_id        TEXT        NOT NULL,
		period        TEXT        NOT NULL,
		status        TEXT        NOT NULL,
		attempt       INT         NOT NULL DEFAULT 1,
		started_at    TIMESTAMPTZ,
		finished_at   TIMESTAMPTZ,
		error_summary TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_executions_subject_period
		ON executions (subject_id, period)`,

	`CREATE INDEX IF NOT EXISTS idx_executions_status
		ON executions (status)`,
}

// Migrate применяет схему БД.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
