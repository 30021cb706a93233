package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewMigrator returns a migrate instance reading the embedded SQL files.
// databaseURL must use the postgres:// scheme.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

// RunMigrations applies a migration command: up, down or version.
// steps > 0 limits up/down to that many migrations.
func RunMigrations(m *migrate.Migrate, command string, steps int) (string, error) {
	var err error
	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return "no migrations applied", nil
		}
		if verr != nil {
			return "", verr
		}
		return fmt.Sprintf("version %d (dirty=%t)", version, dirty), nil
	default:
		return "", fmt.Errorf("unknown migration command %q (use up, down or version)", command)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return "no migration changes to apply", nil
	}
	if err != nil {
		return "", err
	}
	return "migration " + command + " applied", nil
}
