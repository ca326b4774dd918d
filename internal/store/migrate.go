package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// EnsurePgvector creates the vector extension, or verifies that an admin
// already did when the role may not create extensions.
func EnsurePgvector(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	_, err = db.Exec("CREATE EXTENSION IF NOT EXISTS vector")
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "permission denied") {
		return fmt.Errorf("create pgvector extension: %w", err)
	}

	var exists bool
	if qErr := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists); qErr != nil {
		return fmt.Errorf("check pgvector: %w (original: %w)", qErr, err)
	}
	if !exists {
		return fmt.Errorf("pgvector extension is not installed and the database user may not create it; "+
			"run CREATE EXTENSION vector; as an admin (original: %w)", err)
	}
	return nil
}

// RunMigrations applies the SQL migrations at migrationsPath (e.g. "file://migrations").
func RunMigrations(dsn, migrationsPath string, log *zap.Logger) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("schema up to date")
			return nil
		}
		return fmt.Errorf("migrate.Up: %w", err)
	}
	if version, dirty, err := m.Version(); err == nil {
		log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
