package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidItem is returned when a line item fails validation.
var ErrInvalidItem = errors.New("invalid cart item")

// PriceScale is the number of decimal places a price may carry. The SQL
// backends store prices as NUMERIC(12,2).
const PriceScale = 2

// CartLineItem is one distinct product in a cart.
// Title and Price are snapshots taken when the item was added.
type CartLineItem struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	ImageURL *string         `json:"imageUrl,omitempty"`
}

// Validate checks the item can be stored in a cart.
func (i CartLineItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if i.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidItem)
	}
	if !i.Price.Equal(i.Price.Truncate(PriceScale)) {
		return fmt.Errorf("%w: price must have at most %d decimal places", ErrInvalidItem, PriceScale)
	}
	return nil
}

// Clone returns a copy that shares no pointers with i.
func (i CartLineItem) Clone() CartLineItem {
	out := i
	if i.ImageURL != nil {
		url := *i.ImageURL
		out.ImageURL = &url
	}
	return out
}

// RemoteCartRow is a cart_items row in the remote cart store.
// (UserID, ProductID) is unique.
type RemoteCartRow struct {
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  *string         `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RowFromItem maps a line item to the remote row owned by userID.
func RowFromItem(userID string, item CartLineItem) RemoteCartRow {
	item = item.Clone()
	return RemoteCartRow{
		UserID:    userID,
		ProductID: item.ID,
		Title:     item.Title,
		Price:     item.Price,
		ImageURL:  item.ImageURL,
	}
}

// Item maps the row back to a line item.
func (r RemoteCartRow) Item() CartLineItem {
	return CartLineItem{
		ID:       r.ProductID,
		Title:    r.Title,
		Price:    r.Price,
		ImageURL: r.ImageURL,
	}.Clone()
}

// ItemsFromRows maps rows to line items, keeping row order.
func ItemsFromRows(rows []RemoteCartRow) []CartLineItem {
	items := make([]CartLineItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Item())
	}
	return items
}
