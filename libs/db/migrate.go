package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration found in dir of fsys.
// goose needs a *sql.DB, so one is opened on top of the pool and closed
// afterwards; the pool itself stays open.
func Migrate(ctx context.Context, pool *Pool, fsys fs.FS, dir string) (int64, error) {
	if pool == nil || pool.Pool == nil {
		return 0, errors.New("db not configured")
	}
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("open migrations dir %s: %w", dir, err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool.Pool), sub,
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _ = provider.Close() }()

	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return version, nil
}
