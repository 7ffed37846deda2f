// Package db selects the history repository for the configured driver.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/cowhealth/internal/config"
	"github.com/bryanwahyu/cowhealth/internal/domain/history"
	"github.com/bryanwahyu/cowhealth/internal/infra/db/inmemory"
	"github.com/bryanwahyu/cowhealth/internal/infra/db/mysql"
	"github.com/bryanwahyu/cowhealth/internal/infra/db/postgres"
	"github.com/bryanwahyu/cowhealth/internal/infra/db/sqlite"
)

// OpenHistory connects the configured driver and prepares its schema. The
// returned *sql.DB is nil for the in-memory repository; callers close it.
func OpenHistory(ctx context.Context, cfg *config.Config) (history.Repository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "":
		return inmemory.NewHistoryRepository(), nil, nil
	case "mysql":
		conn, err := mysql.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		repo := mysql.NewHistoryRepository(conn)
		if err := repo.Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("mysql migrate: %w", err)
		}
		return repo, conn, nil
	case "postgres":
		conn, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		repo := postgres.NewHistoryRepository(conn)
		if err := repo.Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return repo, conn, nil
	case "sqlite":
		conn, err := sqlite.Open(ctx, cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite open: %w", err)
		}
		return sqlite.NewHistoryRepository(conn), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
