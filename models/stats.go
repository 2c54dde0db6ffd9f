package models

import (
	"time"
)

// GamificationStats is the per-user progression record (one row per user).
// Level is always derived from TotalXP; only the event processor writes it.
type GamificationStats struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string `gorm:"uniqueIndex;not null;type:varchar(64)" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	// Core progression
	TotalXP        int64      `json:"total_xp" gorm:"not null;default:0"`
	Level          int        `json:"level" gorm:"not null;default:1"`
	CurrentStreak  int        `json:"current_streak" gorm:"not null;default:0"`
	LastStreakDate *time.Time `json:"last_streak_date,omitempty" gorm:"type:date"`

	// Activity counters
	ModulesCompleted   int64 `json:"modules_completed" gorm:"not null;default:0"`
	QuizzesCompleted   int64 `json:"quizzes_completed" gorm:"not null;default:0"`
	PortfolioPositions int64 `json:"portfolio_positions" gorm:"not null;default:0"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	// Version is bumped on every write and checked on update.
	Version int64 `json:"-" gorm:"not null;default:0"`

	Timestamps
}

func (GamificationStats) TableName() string {
	return "gamification_stats"
}

// NewGamificationStats returns the zeroed record a user starts with.
func NewGamificationStats(id, userID string) GamificationStats {
	return GamificationStats{
		ID:     id,
		UserID: userID,
		Level:  1,
	}
}
