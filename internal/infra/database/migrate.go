package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationResult reports the schema version before and after Migrate.
type MigrationResult struct {
	From    uint
	To      uint
	Changed bool
}

// Migrate applies the embedded migrations that are not yet applied. It runs on a dedicated
// connection so the caller's pool stays open afterwards.
func Migrate(ctx context.Context, db *sql.DB) (MigrationResult, error) {
	var res MigrationResult

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return res, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return res, fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		driver.Close()
		return res, fmt.Errorf("failed to init migrator: %w", err)
	}
	defer m.Close() // Closes the dedicated connection, not the pool

	if res.From, err = currentVersion(m); err != nil {
		return res, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return res, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if res.To, err = currentVersion(m); err != nil {
		return res, err
	}
	res.Changed = res.To != res.From
	return res, nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty; fix it by hand and force the version", v)
	}
	return v, nil
}
