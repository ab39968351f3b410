// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"helpboard/internal/database"
	"helpboard/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB returns a migrated in-memory SQLite database. A single connection
// keeps every caller on the same in-memory schema and serializes transactions.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a neighbour with fake details. Password is stored as given.
func CreateUser(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	if name == "" {
		name = gofakeit.Name()
	}
	u := &models.User{
		Name:     name,
		Email:    gofakeit.Email(),
		Password: "not-a-hash",
		Location: gofakeit.City(),
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateItem inserts an AVAILABLE item owned by ownerID.
func CreateItem(t testing.TB, db *gorm.DB, ownerID uint) *models.Item {
	t.Helper()
	it := &models.Item{
		OwnerID:     ownerID,
		Title:       gofakeit.HipsterWord() + " " + gofakeit.Noun(),
		Description: gofakeit.Sentence(8),
		Category:    gofakeit.RandomString([]string{"tools", "garden", "kitchen", "books"}),
		Type:        models.ItemTypeLend,
		Status:      models.ItemAvailable,
	}
	if err := db.Create(it).Error; err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}
