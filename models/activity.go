package models

import (
	"time"
)

// ActivityEntry is the append-only XP history, one row per processed event.
type ActivityEntry struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string    `gorm:"index:idx_activity_user_created,priority:1;not null;type:varchar(64)" json:"user_id"`
	EventType   EventType `gorm:"type:varchar(32);not null" json:"event_type"`
	XPGained    int64     `json:"xp_gained"`
	BaseXP      int64     `json:"base_xp"`
	BonusXP     int64     `json:"bonus_xp"`
	LevelAfter  int       `json:"level_after"`
	LevelUp     bool      `json:"level_up"`
	StreakAfter int       `json:"streak_after"`
	StreakUp    bool      `json:"streak_incremented"`
	BadgeCodes  string    `gorm:"type:text" json:"badge_codes,omitempty"` // comma separated
	CreatedAt   time.Time `gorm:"index:idx_activity_user_created,priority:2;not null" json:"created_at"`
	User        *User     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}
