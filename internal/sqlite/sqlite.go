// Package sqlite stores an audit trail of rule executions and notification
// attempts. The trail is write-mostly and never feeds back into rule state.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultHistoryLimit is the number of rows kept per rule when Options.HistoryLimit is unset.
const DefaultHistoryLimit = 100

// DB uses separate connections for reads and writes. WAL mode allows
// concurrent readers but only one writer at a time.
type DB struct {
	readDB       *sql.DB
	writeDB      *sql.DB
	historyLimit int
	log          *slog.Logger
}

// Options holds configuration for creating a new DB instance.
type Options struct {
	Path string
	// HistoryLimit caps stored executions and notification attempts per rule.
	HistoryLimit int
	Logger       *slog.Logger
}

// New opens the database, runs migrations and returns a DB ready for use.
func New(opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "sqlite")

	if err := setupAndRunMigrations(opts.Path, log); err != nil {
		return nil, err
	}

	readDB, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(8)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxIdleTime(5 * time.Minute)
	if err := setPragmas(readDB); err != nil {
		readDB.Close()
		return nil, fmt.Errorf("error setting pragmas on read database: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so competing writers wait instead of deadlocking.
	writeDB, err := sql.Open("sqlite", opts.Path+"?_txlock=immediate")
	if err != nil {
		readDB.Close()
		return nil, fmt.Errorf("error opening write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	if err := setPragmas(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("error setting pragmas on write database: %w", err)
	}

	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	log.Debug("sqlite history store ready", "path", opts.Path, "history_limit", limit)
	return &DB{readDB: readDB, writeDB: writeDB, historyLimit: limit, log: log}, nil
}

func setupAndRunMigrations(dsn string, log *slog.Logger) error {
	migrationDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("error opening migration database: %w", err)
	}
	defer func() {
		_ = migrationDB.Close()
	}()

	if _, err := migrationDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("error setting busy_timeout on migration database: %w", err)
	}
	if err := runMigrations(migrationDB, log); err != nil {
		log.Error("migration failed", "error", err, "path", dsn)
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA journal_size_limit = 5000000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -8000",
		// memory-mapped I/O misbehaves with modernc.org/sqlite.
		"PRAGMA mmap_size = 0",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("error setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// runMigrations applies the embedded migrations with golang-migrate.
func runMigrations(db *sql.DB, log *slog.Logger) error {
	migrationFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error creating migrations filesystem: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("error creating migration source driver: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return fmt.Errorf("error creating sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("error creating migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			log.Warn("error closing migration source driver", "error", sourceErr)
		}
		if dbErr != nil {
			log.Warn("error closing migration database driver", "error", dbErr)
		}
	}()

	if version, dirty, err := m.Version(); err == nil && dirty {
		log.Warn("database is in a dirty migration state", "version", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("migrations up to date")
			return nil
		}
		return fmt.Errorf("error applying migrations: %w", err)
	}
	if version, _, err := m.Version(); err == nil {
		log.Debug("migrations applied", "version", version)
	}
	return nil
}

// Close shuts down both connection pools.
func (db *DB) Close() error {
	return errors.Join(db.writeDB.Close(), db.readDB.Close())
}
