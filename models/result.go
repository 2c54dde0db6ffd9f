package models

import (
	"time"
)

// GamificationResult describes exactly what one processed event changed.
type GamificationResult struct {
	EventType         EventType         `json:"event_type"`
	XPGained          int64             `json:"xp_gained"`
	BaseXP            int64             `json:"base_xp"`
	StreakBonusXP     int64             `json:"streak_bonus_xp"`
	LevelUp           bool              `json:"level_up"`
	StreakIncremented bool              `json:"streak_incremented"`
	CurrentStreak     int               `json:"current_streak"`
	NewBadges         []BadgeDefinition `json:"new_badges"`

	// Post-event totals
	TotalXP       int64 `json:"total_xp"`
	Level         int   `json:"level"`
	XPToNextLevel int64 `json:"xp_to_next_level"`
}

// BadgeStatus is a catalog entry annotated for one user.
type BadgeStatus struct {
	BadgeDefinition
	CategoryLabel string     `json:"category_label"`
	Earned        bool       `json:"earned"`
	EarnedAt      *time.Time `json:"earned_at,omitempty"`
}

// StateSnapshot is the authoritative read model behind the XP bar, the
// streak indicator and the badge grid.
type StateSnapshot struct {
	UserID             string        `json:"user_id"`
	TotalXP            int64         `json:"total_xp"`
	Level              int           `json:"level"`
	MaxLevel           bool          `json:"max_level"`
	XPToNextLevel      int64         `json:"xp_to_next_level"`
	CurrentStreak      int           `json:"current_streak"`
	LastStreakDate     *time.Time    `json:"last_streak_date,omitempty"`
	ModulesCompleted   int64         `json:"modules_completed"`
	QuizzesCompleted   int64         `json:"quizzes_completed"`
	PortfolioPositions int64         `json:"portfolio_positions"`
	Badges             []BadgeStatus `json:"badges"`
}
