package models

import (
	"time"
)

// EventType tags a GamificationEvent.
type EventType string

const (
	EventLogin                    EventType = "login"
	EventModuleCompleted          EventType = "module_completed"
	EventQuizCompleted            EventType = "quiz_completed"
	EventPortfolioPositionAdded   EventType = "portfolio_position_added"
	EventPortfolioPositionUpdated EventType = "portfolio_position_updated"
)

// EventTypes lists every supported event type.
var EventTypes = []EventType{
	EventLogin,
	EventModuleCompleted,
	EventQuizCompleted,
	EventPortfolioPositionAdded,
	EventPortfolioPositionUpdated,
}

// GamificationEvent is one reported user action. It is not persisted as such;
// the processor consumes it once and records an ActivityEntry.
type GamificationEvent struct {
	Type                 EventType  `json:"event_type"`
	ModuleID             string     `json:"module_id,omitempty"`
	IsFirstTimeForModule *bool      `json:"is_first_time_for_module,omitempty"`
	QuizScore            *float64   `json:"quiz_score,omitempty"` // percent, 0-100
	QuizCompletedAt      *time.Time `json:"quiz_completed_at,omitempty"`
	PortfolioPositionID  string     `json:"portfolio_position_id,omitempty"`
}

// ModuleCompletion remembers which modules a user has finished at least once.
type ModuleCompletion struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string    `gorm:"not null;type:varchar(64);uniqueIndex:uq_module_completion_user_module,priority:1" json:"user_id"`
	ModuleID    string    `gorm:"not null;type:varchar(64);uniqueIndex:uq_module_completion_user_module,priority:2" json:"module_id"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	User        *User     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}
