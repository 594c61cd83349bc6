// Package database provides the SQLite-backed durable configuration
// store: the upstream pool definition and curated local-zone records
// an operator edits through the admin API. It is not the hot-path
// answer cache (that stays Redis-shaped, see internal/dnscache) — this
// is the surface that survives process restarts and is loaded once at
// boot into the in-memory UpstreamPool and localzone.Zone the
// forwarder and synthesizer actually run against.
package database

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite connection with the mutex golang-migrate's sqlite
// driver expects callers to hold around schema changes; reads and
// writes against the tables below go through database/sql's own
// connection pool.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens or creates the SQLite database at path and brings its
// schema up to date.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
