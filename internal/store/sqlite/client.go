// Package sqlite implements domain store interfaces on an embedded SQLite
// database for single-node deployments.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Client owns the database handle shared by the stores in this package.
type Client struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Client, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "minimarket", "state.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer; commits are serialised by the pool
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	c := &Client{db: db}
	if err := c.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create tables: %w", err)
	}
	return c, nil
}

// DB returns the underlying handle.
func (c *Client) DB() *sql.DB { return c.db }

// Close closes the database.
func (c *Client) Close() error { return c.db.Close() }

func (c *Client) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			address    BLOB PRIMARY KEY,
			owner      BLOB NOT NULL,
			lamports   TEXT NOT NULL,
			data       BLOB,
			version    INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner)`,
		`CREATE TABLE IF NOT EXISTS processed_txs (
			tx_id        TEXT PRIMARY KEY,
			committed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_txs_at ON processed_txs(committed_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			id        TEXT PRIMARY KEY,
			kind      TEXT NOT NULL,
			market_id TEXT NOT NULL,
			tx_id     TEXT NOT NULL,
			at        INTEGER NOT NULL,
			payload   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_market ON events(market_id, at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_at ON events(at)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
