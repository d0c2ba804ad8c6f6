// Package store persists chat sessions, messages and surface key mappings
// in SQLite or Postgres, with an in-memory variant for tests.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver registered as "pgx"
	_ "modernc.org/sqlite"             // Pure-Go SQLite driver

	"github.com/soyeahso/consultant/internal/logging"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type dialect struct {
	name            string
	sqlDriver       string
	migrations      []migration
	migrationsTable string
	dollarParams    bool
}

var (
	sqliteDialect = dialect{
		name:       DriverSQLite,
		sqlDriver:  "sqlite",
		migrations: sqliteMigrations,
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	postgresDialect = dialect{
		name:       DriverPostgres,
		sqlDriver:  "pgx",
		migrations: postgresMigrations,
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		dollarParams: true,
	}
)

// DB wraps a database connection with migration support.
type DB struct {
	sql     *sql.DB
	log     *logging.Logger
	dialect dialect
}

// Open opens (or creates) the database and runs migrations. For sqlite the
// dsn is a file path, or ":memory:" for an in-memory database (useful for
// tests); for postgres it is a connection string.
func Open(driver, dsn string, log *logging.Logger) (*DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(dsn, log)
	case DriverPostgres:
		return openPostgres(dsn, log)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

func openSQLite(path string, log *logging.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(sqliteDialect.sqlDriver, path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return finishOpen(sqlDB, sqliteDialect, log, path)
}

func openPostgres(dsn string, log *logging.Logger) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	sqlDB, err := sql.Open(postgresDialect.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return finishOpen(sqlDB, postgresDialect, log, redactDSN(dsn))
}

func finishOpen(sqlDB *sql.DB, d dialect, log *logging.Logger, where string) (*DB, error) {
	db := &DB{sql: sqlDB, log: log.Sub("store"), dialect: d}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	db.log.Info().Str("driver", d.name).Str("location", where).Msg("database opened")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// SQL returns the underlying *sql.DB for direct queries.
func (db *DB) SQL() *sql.DB {
	return db.sql
}

// Driver returns the dialect name.
func (db *DB) Driver() string {
	return db.dialect.name
}

// rebind rewrites ? placeholders for dialects that number their parameters.
func (db *DB) rebind(query string) string {
	if !db.dialect.dollarParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate runs all pending migrations.
func (db *DB) migrate() error {
	if _, err := db.sql.Exec(db.dialect.migrationsTable); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range db.dialect.migrations {
		applied, err := db.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		for _, stmt := range m.Statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
		}

		if _, err := tx.Exec(db.rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *DB) isMigrationApplied(version int) (bool, error) {
	var count int
	err := db.sql.QueryRow(db.rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}

// redactDSN hides the password of a postgres URL for logging.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "postgres"
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}
