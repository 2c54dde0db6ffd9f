package database

import (
	"fmt"

	"finquest-gamification/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by this service, in migration order.
var Models = []any{
	&models.User{},
	&models.GamificationStats{},
	&models.BadgeDefinition{},
	&models.BadgeAward{},
	&models.ModuleCompletion{},
	&models.ActivityEntry{},
}

// Open connects to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SeedBadges inserts catalog entries whose code is not present yet. Existing
// definitions are left alone; they are administered out of band.
func SeedBadges(db *gorm.DB, catalog []models.BadgeDefinition) (int, error) {
	added := 0
	for _, def := range catalog {
		def.ID = uuid.NewString()
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&def)
		if res.Error != nil {
			return added, fmt.Errorf("seed badge %s: %w", def.Code, res.Error)
		}
		if res.RowsAffected > 0 {
			added++
			zap.L().Info("seeded badge", zap.String("code", def.Code), zap.String("name", def.Name))
		}
	}
	return added, nil
}
