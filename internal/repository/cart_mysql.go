package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jsa498/digitalmarketing/internal/model"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// cartItemRecord is the gorm model for cart_items.
type cartItemRecord struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	UserID    string          `gorm:"type:varchar(191);not null;uniqueIndex:idx_cart_user_product,priority:1"`
	ProductID string          `gorm:"type:varchar(191);not null;uniqueIndex:idx_cart_user_product,priority:2"`
	Title     string          `gorm:"type:varchar(512);not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ImageURL  *string         `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cartItemRecord) TableName() string { return tableName }

func (c cartItemRecord) toRow() model.RemoteCartRow {
	return model.RemoteCartRow{
		UserID:    c.UserID,
		ProductID: c.ProductID,
		Title:     c.Title,
		Price:     c.Price,
		ImageURL:  c.ImageURL,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// MySQLCartRepository implements CartRepository with gorm on MySQL.
type MySQLCartRepository struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// NewMySQLCartRepository wraps an open MySQL pool (go-sql-driver/mysql) in gorm
// and migrates the cart_items table.
func NewMySQLCartRepository(sqlDB *sql.DB, log logrus.FieldLogger) (*MySQLCartRepository, error) {
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open gorm")
	}

	if err := db.AutoMigrate(&cartItemRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate cart_items")
	}

	log.Info("MySQL cart repository initialized")
	return &MySQLCartRepository{db: db, log: log}, nil
}

// FetchRows returns the user's rows in insertion order.
func (r *MySQLCartRepository) FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error) {
	var records []cartItemRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query cart rows")
	}

	result := make([]model.RemoteCartRow, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.toRow())
	}
	return result, nil
}

// InsertRow stores the row, ignoring a duplicate key.
func (r *MySQLCartRepository) InsertRow(ctx context.Context, row model.RemoteCartRow) error {
	rec := cartItemRecord{
		UserID:    row.UserID,
		ProductID: row.ProductID,
		Title:     row.Title,
		Price:     row.Price,
		ImageURL:  row.ImageURL,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error; err != nil {
		return errors.Wrapf(err, "failed to insert cart row %s", row.ProductID)
	}
	return nil
}

// DeleteRow removes one row.
func (r *MySQLCartRepository) DeleteRow(ctx context.Context, userID, productID string) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&cartItemRecord{}).Error; err != nil {
		return errors.Wrapf(err, "failed to delete cart row %s", productID)
	}
	return nil
}

// DeleteAllRows removes every row for the user.
func (r *MySQLCartRepository) DeleteAllRows(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&cartItemRecord{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear cart rows")
	}
	if result.RowsAffected > 0 {
		r.log.WithFields(logrus.Fields{"user_id": userID, "rows": result.RowsAffected}).Debug("cleared remote cart")
	}
	return nil
}

// Ping checks the database connection.
func (r *MySQLCartRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying pool.
func (r *MySQLCartRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure MySQLCartRepository implements CartRepository
var _ CartRepository = (*MySQLCartRepository)(nil)
