package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/config"
	"github.com/foxseedlab/genkaipoint/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.SessionStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if !cfg.UsesDatabase() {
			return newMemoryStore(cfg)
		}

		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		p, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := RunMigration(ctx, p); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
		slog.Info("session store: postgres")
		return NewPostgresStore(p), nil
	})
}

func newMemoryStore(cfg *config.Config) (repository.SessionStore, error) {
	if cfg.MemoryStorePath == "" {
		slog.Warn("session store: memory without persistence")
		return NewMemoryStore(), nil
	}
	snapshot, err := NewSnapshotFile(cfg.MemoryStorePath)
	if err != nil {
		return nil, err
	}
	store, err := NewPersistentMemoryStore(snapshot)
	if err != nil {
		snapshot.Close()
		return nil, fmt.Errorf("failed to restore memory store from %s: %w", cfg.MemoryStorePath, err)
	}
	slog.Info("session store: memory", "path", cfg.MemoryStorePath)
	return store, nil
}
