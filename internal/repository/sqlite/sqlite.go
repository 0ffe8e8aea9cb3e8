// Package sqlite stores problems, users and submissions in a single SQLite
// file through the pure-Go modernc.org/sqlite driver, so the judge builds
// without cgo. DB implements every interface in package repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const memoryPath = ":memory:"

// DB is the SQLite-backed store.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (or ":memory:"), applies pragmas and
// creates the schema.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" gets its own empty database.
	if dbPath == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init() error {
	if err := db.conn.Ping(); err != nil {
		return fmt.Errorf("sqlite: pinging database: %w", err)
	}
	// WAL lets the submission history be read while a judge result is written.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.conn.Exec(pragma); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if err := db.migrate(); err != nil {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return nil
}

// dsn sets foreign keys and a busy timeout on every pooled connection of a
// file database; a plain Exec only reaches one of them.
func dsn(dbPath string) string {
	if dbPath == memoryPath {
		return dbPath
	}
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping backs the database entry of the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"problems", `
		CREATE TABLE IF NOT EXISTS problems (
			id          TEXT PRIMARY KEY,
			number      INTEGER NOT NULL UNIQUE,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			difficulty  TEXT NOT NULL DEFAULT '',
			tags        TEXT NOT NULL DEFAULT '[]',
			source      TEXT NOT NULL DEFAULT '',
			test_cases  TEXT NOT NULL DEFAULT '[]',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	// one row per GitHub account
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER NOT NULL UNIQUE,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"submissions", `
		CREATE TABLE IF NOT EXISTS submissions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			problem_id  TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			code        TEXT NOT NULL,
			verdict     TEXT NOT NULL,
			passed      INTEGER NOT NULL DEFAULT 0,
			total       INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"submissions index", `
		CREATE INDEX IF NOT EXISTS idx_submissions_user_id ON submissions(user_id, created_at)`},
}

// migrate is idempotent: every statement is IF NOT EXISTS.
func (db *DB) migrate() error {
	for _, s := range schema {
		if _, err := db.conn.Exec(s.ddl); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}
	return nil
}

func sqliteCode(err error) (int, bool) {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0, false
	}
	return sqliteErr.Code(), true
}

func isUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isForeignKeyViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
