// Package migration manages the schema of the job metadata store using
// embedded SQL migrations applied through golang-migrate.
package migration

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/tigerroll/ripple/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsPath = "migrations"

// Migrator applies the metadata schema migrations to a SQLite connection.
type Migrator struct {
	db *gorm.DB
}

// NewMigrator creates a new Migrator on an established GORM connection.
func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{db: db}
}

// getMigrateInstance builds the migrate instance from the embedded source and
// the underlying sql.DB of the GORM connection.
func (m *Migrator) getMigrateInstance() (*migrate.Migrate, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", migrationsPath, err)
	}

	dbDriver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, nil
}

// Up applies all pending migrations. A database already at the latest version
// is not an error.
func (m *Migrator) Up() error {
	logger.Debugf("Applying metadata schema migrations (path: %s)", migrationsPath)

	mInstance, err := m.getMigrateInstance()
	if err != nil {
		return fmt.Errorf("failed to get migrate instance: %w", err)
	}
	// The migrate instance is not closed here: closing a WithInstance driver
	// closes the shared sql.DB that the repository keeps using.

	if err := mInstance.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("metadata schema migration failed: %w", err)
	}

	logger.Debugf("Metadata schema is up to date.")
	return nil
}
