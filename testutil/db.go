package testutil

import (
	"fmt"
	"strings"
	"testing"

	"finquest-gamification/database"
	"finquest-gamification/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB creates an in-memory SQLite database with the full schema
// migrated. The connection is closed when the test finishes.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB from gorm: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// SeedUser inserts a user row.
func SeedUser(t *testing.T, db *gorm.DB, id string) models.User {
	t.Helper()

	user := models.User{ID: id, Email: id + "@example.test"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

// SeedCatalog inserts the default badge catalog.
func SeedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()

	if _, err := database.SeedBadges(db, models.DefaultBadgeCatalog); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
}
