package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"gebeta-delivery/pkg/logger"
)

// Connect opens a pgx pool against databaseURL and applies any pending file
// migrations from migrationsPath before returning.
func Connect(ctx context.Context, databaseURL, migrationsPath string, log logger.ILogger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database.Connect: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database.Connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database.Connect: ping: %w", err)
	}

	if err := runMigrations(databaseURL, migrationsPath, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres connected")
	return pool, nil
}

func runMigrations(databaseURL, migrationsPath string, log logger.ILogger) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("database.runMigrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("database.runMigrations: up: %w", err)
	}
	log.Info("migrations applied")
	return nil
}
