// Package database wraps the embedded SQLite store that holds backtest
// runs and their serialized records.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Config holds database configuration.
type Config struct {
	Path string
}

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
    run_id     TEXT PRIMARY KEY,
    strategy   TEXT NOT NULL,
    started_at TEXT NOT NULL,
    summary    BLOB NOT NULL,
    records    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_strategy ON backtest_runs (strategy);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_started ON backtest_runs (started_at);
`

// New opens the database, applies pragmas and the schema, and verifies
// connectivity.
func New(cfg Config) (*DB, error) {
	// file: URIs (in-memory databases in tests) skip path resolution.
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, path: cfg.Path}, nil
}

func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=temp_store(MEMORY)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck pings the database and runs an integrity check.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
		}
	}()

	err = fn(tx)
	return err
}
