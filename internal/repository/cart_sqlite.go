package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jsa498/digitalmarketing/internal/model"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteCartRepository implements CartRepository using SQLite.
// Suited to single-host deployments and tests.
type SQLiteCartRepository struct {
	db  *sql.DB
	mu  sync.RWMutex
	log logrus.FieldLogger
}

// NewSQLiteCartRepository opens (or creates) the database at dbPath.
func NewSQLiteCartRepository(dbPath string, log logrus.FieldLogger) (*SQLiteCartRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite")
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}

	log.WithField("path", dbPath).Info("SQLite cart repository initialized")
	return &SQLiteCartRepository{db: db, log: log}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS cart_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		image_url TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, product_id)
	);
	CREATE INDEX IF NOT EXISTS idx_cart_items_user ON cart_items(user_id);
	`
	_, err := db.Exec(query)
	return err
}

// FetchRows returns the user's rows in insertion order.
func (r *SQLiteCartRepository) FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, product_id, title, price, image_url, created_at, updated_at
		FROM cart_items WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query cart rows")
	}
	defer rows.Close()

	result := make([]model.RemoteCartRow, 0)
	for rows.Next() {
		var (
			row       model.RemoteCartRow
			imageURL  sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&row.UserID, &row.ProductID, &row.Title, &row.Price, &imageURL, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan cart row")
		}
		if imageURL.Valid {
			url := imageURL.String
			row.ImageURL = &url
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		row.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate cart rows")
	}
	return result, nil
}

// InsertRow stores the row, ignoring an existing (user_id, product_id).
func (r *SQLiteCartRepository) InsertRow(ctx context.Context, row model.RemoteCartRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, title, price, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO NOTHING`,
		row.UserID, row.ProductID, row.Title, row.Price.String(), nullString(row.ImageURL), now, now)
	if err != nil {
		return errors.Wrapf(err, "failed to insert cart row %s", row.ProductID)
	}
	return nil
}

// DeleteRow removes one row.
func (r *SQLiteCartRepository) DeleteRow(ctx context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return errors.Wrapf(err, "failed to delete cart row %s", productID)
	}
	return nil
}

// DeleteAllRows removes every row for the user.
func (r *SQLiteCartRepository) DeleteAllRows(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return errors.Wrap(err, "failed to clear cart rows")
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		r.log.WithFields(logrus.Fields{"user_id": userID, "rows": n}).Debug("cleared remote cart")
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteCartRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteCartRepository) Close() error {
	return r.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Ensure SQLiteCartRepository implements CartRepository
var _ CartRepository = (*SQLiteCartRepository)(nil)
