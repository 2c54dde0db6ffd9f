package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finquest-gamification/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService manages the local mirror of user accounts.
type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// Ensure makes sure a user row exists for id (idempotent).
func (s *UserService) Ensure(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrNotFound)
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&models.User{ID: id}).Error
}

// Upsert stores u, overwriting the mirrored profile fields.
func (s *UserService) Upsert(ctx context.Context, u models.User) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at"}),
	}).Create(&u).Error
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

// Search matches users by email or display name.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	db := s.DB.WithContext(ctx).Model(&models.User{}).Order("display_name ASC, id ASC").Limit(limit)
	if q := strings.TrimSpace(query); q != "" {
		term := "%" + strings.ToLower(q) + "%"
		db = db.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", term, term)
	}

	users := []models.User{}
	if err := db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// LastUpdated returns the newest mirrored updated_at, the sync cursor.
func (s *UserService) LastUpdated(ctx context.Context) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).Order("updated_at DESC").First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
