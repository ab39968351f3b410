package database

import (
	"errors"
	"fmt"

	"helpboard/internal/middleware"
	"helpboard/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// openRequestIndex enforces at most one PENDING/APPROVED request per item.
// Partial indexes work on both Postgres and SQLite.
const openRequestIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_one_open_per_item
	ON requests (item_id) WHERE status IN ('PENDING', 'APPROVED')`

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Request{},
		&models.Message{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.Exec(openRequestIndex).Error; err != nil {
		return fmt.Errorf("failed to create open request index: %w", err)
	}
	middleware.Logger.Info("Database migration completed")
	return nil
}

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure from
// any supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
