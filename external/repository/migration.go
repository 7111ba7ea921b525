package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS vc_sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		left_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (left_at IS NULL OR left_at >= joined_at)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_vc_sessions_open_user ON vc_sessions (user_id) WHERE left_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_vc_sessions_user_joined ON vc_sessions (user_id, joined_at)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
