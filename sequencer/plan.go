// Package sequencer decides what the client shows after a gamification event
// and paces it: XP toasts first, then modals one at a time.
package sequencer

import (
	"finquest-gamification/models"
)

// Kind identifies a notification.
type Kind string

const (
	KindXP          Kind = "xp"
	KindStreakBonus Kind = "streak_bonus"
	KindStreak      Kind = "streak"
	KindBadges      Kind = "badges"
	KindLevelUp     Kind = "level_up"
)

// Modal reports whether notifications of this kind wait for acknowledgement.
func (k Kind) Modal() bool {
	switch k {
	case KindStreak, KindBadges, KindLevelUp:
		return true
	}
	return false
}

// Step is one notification of a plan.
type Step struct {
	Kind   Kind                     `json:"kind"`
	Modal  bool                     `json:"modal"`
	XP     int64                    `json:"xp,omitempty"`
	Streak int                      `json:"streak,omitempty"`
	Level  int                      `json:"level,omitempty"`
	Badges []models.BadgeDefinition `json:"badges,omitempty"`
}

// Plan returns the notifications for r in presentation order. A nil result
// plans nothing.
func Plan(r *models.GamificationResult) []Step {
	if r == nil {
		return nil
	}

	steps := []Step{}

	split := r.EventType == models.EventQuizCompleted && r.StreakIncremented && r.StreakBonusXP > 0
	switch {
	case split:
		steps = append(steps,
			Step{Kind: KindXP, XP: r.XPGained - r.StreakBonusXP},
			Step{Kind: KindStreakBonus, XP: r.StreakBonusXP},
		)
	case r.XPGained > 0:
		steps = append(steps, Step{Kind: KindXP, XP: r.XPGained})
	}

	if r.StreakIncremented {
		steps = append(steps, Step{Kind: KindStreak, Modal: true, Streak: r.CurrentStreak})
	}
	if len(r.NewBadges) > 0 {
		steps = append(steps, Step{Kind: KindBadges, Modal: true, Badges: r.NewBadges})
	}
	if r.LevelUp {
		steps = append(steps, Step{Kind: KindLevelUp, Modal: true, Level: r.Level})
	}
	return steps
}
