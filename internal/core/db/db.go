package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps each document as a JSON body in a single SQLite table.
// Capture state lives in dedicated columns so pending work can be queried
// without parsing bodies.
type SQLiteStore struct {
	*emitter
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path. Call Migrate before use.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes are serialized by SQLite anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	logger = logging.OrNop(logger)
	return &SQLiteStore{
		emitter: newEmitter(logger),
		db:      db,
		logger:  logger,
	}, nil
}

// Migrate applies the embedded migrations that have not been applied yet.
func (s *SQLiteStore) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migrations = append(migrations, entry.Name())
	}

	sort.Strings(migrations)

	for _, migration := range migrations {
		version := strings.TrimSuffix(migration, ".sql")

		var exists bool
		if err := s.db.QueryRow(`
		    SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = ?)
		`, version).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check if migration has been applied: %w", err)
		}
		if exists {
			s.logger.Debug("migration already applied", zap.String("version", version))
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + migration)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}

		if err := s.applyMigration(version, string(content)); err != nil {
			return err
		}

		s.logger.Info("migration applied", zap.String("version", version))
	}

	return nil
}

func (s *SQLiteStore) applyMigration(version, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", version, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to mark migration as applied: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
