package repository

import (
	"context"

	"github.com/jsa498/digitalmarketing/internal/model"
)

// CartRepository defines remote cart row access.
// Rows are keyed by (user_id, product_id); InsertRow on an existing key is a no-op.
type CartRepository interface {
	// FetchRows returns every row owned by userID in insertion order.
	FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error)

	// InsertRow stores a row unless one with the same key exists.
	InsertRow(ctx context.Context, row model.RemoteCartRow) error

	// DeleteRow removes the (userID, productID) row. Missing rows are not an error.
	DeleteRow(ctx context.Context, userID, productID string) error

	// DeleteAllRows removes every row owned by userID.
	DeleteAllRows(ctx context.Context, userID string) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

// tableName is shared by the SQL backends.
const tableName = "cart_items"
