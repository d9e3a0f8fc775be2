package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jsa498/digitalmarketing/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore keeps snapshots in a local SQLite file, one row per storage key.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath, key string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE IF NOT EXISTS local_cart_state (
		storage_key TEXT PRIMARY KEY,
		items_json  TEXT NOT NULL,
		saved_at    DATETIME NOT NULL
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{db: db, key: key}, nil
}

// Load reads the snapshot for the configured key.
func (s *SQLiteStore) Load(ctx context.Context) ([]model.CartLineItem, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT items_json FROM local_cart_state WHERE storage_key = ?`, s.key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load local cart: %w", err)
	}
	return decode([]byte(raw))
}

// Save upserts the snapshot for the configured key.
func (s *SQLiteStore) Save(ctx context.Context, items []model.CartLineItem) error {
	data, err := encode(items)
	if err != nil {
		return fmt.Errorf("failed to encode local cart: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_cart_state (storage_key, items_json, saved_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(storage_key) DO UPDATE SET
			items_json = excluded.items_json,
			saved_at = excluded.saved_at`, s.key, string(data))
	if err != nil {
		return fmt.Errorf("failed to save local cart: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
