package models

import (
	"time"
)

// BadgeCategory groups badge definitions.
type BadgeCategory string

const (
	BadgeCategoryLearning  BadgeCategory = "learning"
	BadgeCategoryStreak    BadgeCategory = "streak"
	BadgeCategoryPortfolio BadgeCategory = "portfolio"
	BadgeCategoryOther     BadgeCategory = "other"
)

// Valid reports whether c is one of the known categories.
func (c BadgeCategory) Valid() bool {
	switch c {
	case BadgeCategoryLearning, BadgeCategoryStreak, BadgeCategoryPortfolio, BadgeCategoryOther:
		return true
	}
	return false
}

// BadgeDefinition: administered catalog entry (loaded from DB, seeded from DefaultBadgeCatalog)
type BadgeDefinition struct {
	ID          string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Code        string        `gorm:"uniqueIndex;not null;type:varchar(64)" json:"code"` // e.g., "week_streak", "module_5"
	Name        string        `gorm:"not null" json:"name"`
	Description string        `json:"description"`
	Category    BadgeCategory `gorm:"type:varchar(16);not null;default:'other'" json:"category"`
	IsActive    bool          `gorm:"not null" json:"is_active"`
	Rule        string        `gorm:"type:text" json:"rule,omitempty"`    // CEL, e.g. "current_streak >= 7"
	IconURL     string        `gorm:"type:text" json:"icon_url,omitempty"` // R2 URL
	SortOrder   int           `gorm:"not null;default:0" json:"sort_order"`
	Timestamps
}

// BadgeAward: awarded instance, at most one per (user, badge)
type BadgeAward struct {
	ID       string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID   string           `gorm:"not null;type:varchar(64);uniqueIndex:uq_badge_award_user_badge,priority:1" json:"user_id"`
	BadgeID  string           `gorm:"not null;type:varchar(36);uniqueIndex:uq_badge_award_user_badge,priority:2;index" json:"badge_id"`
	EarnedAt time.Time        `gorm:"not null" json:"earned_at"`
	User     *User            `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Badge    *BadgeDefinition `gorm:"foreignKey:BadgeID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// DefaultBadgeCatalog is the catalog seeded into an empty database.
var DefaultBadgeCatalog = []BadgeDefinition{
	// Learning
	{
		Code:        "first_module",
		Name:        "First Steps",
		Description: "Completed your first module",
		Category:    BadgeCategoryLearning,
		IsActive:    true,
		Rule:        "modules_completed >= 1",
		SortOrder:   10,
	},
	{
		Code:        "module_5",
		Name:        "Module Apprentice",
		Description: "Completed 5 modules",
		Category:    BadgeCategoryLearning,
		IsActive:    true,
		Rule:        "modules_completed >= 5",
		SortOrder:   20,
	},
	{
		Code:        "module_10",
		Name:        "Module Scholar",
		Description: "Completed 10 modules",
		Category:    BadgeCategoryLearning,
		IsActive:    true,
		Rule:        "modules_completed >= 10",
		SortOrder:   30,
	},
	{
		Code:        "module_20",
		Name:        "Module Master",
		Description: "Completed 20 modules",
		Category:    BadgeCategoryLearning,
		IsActive:    true,
		Rule:        "modules_completed >= 20",
		SortOrder:   40,
	},
	{
		Code:        "quiz_champ",
		Name:        "Quiz Champ",
		Description: "Scored 90% or more on a quiz",
		Category:    BadgeCategoryLearning,
		IsActive:    true,
		Rule:        "event_type == 'quiz_completed' && quiz_score >= 90.0",
		SortOrder:   50,
	},
	// Portfolio
	{
		Code:        "portfolio_creator",
		Name:        "Portfolio Creator",
		Description: "Added your first portfolio position",
		Category:    BadgeCategoryPortfolio,
		IsActive:    true,
		Rule:        "portfolio_positions >= 1",
		SortOrder:   60,
	},
	{
		Code:        "diversifier",
		Name:        "Diversifier",
		Description: "Hold 3 or more distinct positions",
		Category:    BadgeCategoryPortfolio,
		IsActive:    true,
		Rule:        "portfolio_positions >= 3",
		SortOrder:   70,
	},
	{
		Code:        "risk_manager",
		Name:        "Risk Manager",
		Description: "Performed a rebalance action",
		Category:    BadgeCategoryPortfolio,
		IsActive:    false,
		SortOrder:   80,
	},
	{
		Code:        "long_term_thinker",
		Name:        "Long-Term Thinker",
		Description: "Kept a position for at least 30 days",
		Category:    BadgeCategoryPortfolio,
		IsActive:    false,
		SortOrder:   90,
	},
	{
		Code:        "analyst",
		Name:        "Analyst",
		Description: "Completed 5 stock analysis actions",
		Category:    BadgeCategoryPortfolio,
		IsActive:    false,
		SortOrder:   100,
	},
	// Streak
	{
		Code:        "week_streak",
		Name:        "7-Day Streak",
		Description: "Reached a 7-day streak",
		Category:    BadgeCategoryStreak,
		IsActive:    true,
		Rule:        "current_streak >= 7",
		SortOrder:   110,
	},
	{
		Code:        "month_streak",
		Name:        "30-Day Streak",
		Description: "Reached a 30-day streak",
		Category:    BadgeCategoryStreak,
		IsActive:    true,
		Rule:        "current_streak >= 30",
		SortOrder:   120,
	},
}
