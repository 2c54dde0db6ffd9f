package models

import (
	"time"
)

// User is a local snapshot of a finquest account.
// Owned by the profile service, populated by the sync worker or on first
// authenticated request. Every gamification row hangs off it and is removed
// with it (ON DELETE CASCADE).
type User struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"` // the profile service's user id
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
