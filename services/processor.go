package services

import (
	"math"
	"strings"
	"time"

	"finquest-gamification/models"
)

// Transition is the pure outcome of applying one event to a stats record.
type Transition struct {
	Stats             models.GamificationStats
	BaseXP            int64
	BonusXP           int64
	LevelUp           bool
	StreakIncremented bool
}

// XPGained is the total XP delta of the transition.
func (t Transition) XPGained() int64 {
	return t.BaseXP + t.BonusXP
}

// ValidateEvent rejects events whose payload does not fit their type.
func ValidateEvent(ev models.GamificationEvent) error {
	switch ev.Type {
	case models.EventLogin,
		models.EventPortfolioPositionAdded,
		models.EventPortfolioPositionUpdated:
		return nil
	case models.EventModuleCompleted:
		if strings.TrimSpace(ev.ModuleID) == "" {
			return invalidEvent("module_completed requires module_id")
		}
		return nil
	case models.EventQuizCompleted:
		if ev.QuizScore == nil {
			return invalidEvent("quiz_completed requires quiz_score")
		}
		score := *ev.QuizScore
		if math.IsNaN(score) || score < 0 || score > 100 {
			return invalidEvent("quiz_score must be between 0 and 100, got %v", score)
		}
		return nil
	case "":
		return invalidEvent("event_type is required")
	}
	return invalidEvent("unsupported event_type %q", ev.Type)
}

// Apply computes the stats that result from ev. It never touches storage;
// the caller resolves ev.IsFirstTimeForModule beforehand when it can.
func Apply(stats models.GamificationStats, ev models.GamificationEvent, rewards XPRewards, now time.Time) (Transition, error) {
	if err := ValidateEvent(ev); err != nil {
		return Transition{}, err
	}

	next := stats
	tr := Transition{}

	switch ev.Type {
	case models.EventLogin:
		tr.BaseXP = rewards.Login

	case models.EventModuleCompleted:
		firstTime := ev.IsFirstTimeForModule != nil && *ev.IsFirstTimeForModule
		tr.BaseXP = rewards.ModuleXP(firstTime)
		next.ModulesCompleted++

	case models.EventQuizCompleted:
		tr.BaseXP = rewards.QuizXP(*ev.QuizScore)
		next.QuizzesCompleted++

		completedAt := now
		if ev.QuizCompletedAt != nil && !ev.QuizCompletedAt.IsZero() {
			completedAt = *ev.QuizCompletedAt
		}
		streak := EvaluateStreak(stats.CurrentStreak, stats.LastStreakDate, completedAt)
		next.CurrentStreak = streak.Streak
		next.LastStreakDate = streak.LastDate
		if streak.Incremented {
			tr.StreakIncremented = true
			tr.BonusXP = rewards.StreakBonus
		}

	case models.EventPortfolioPositionAdded:
		tr.BaseXP = rewards.PositionAdded
		next.PortfolioPositions++

	case models.EventPortfolioPositionUpdated:
		tr.BaseXP = rewards.PositionUpdated
	}

	next.TotalXP = stats.TotalXP + tr.XPGained()
	next.Level = LevelFromXP(next.TotalXP)
	// measured on the curve, not on the stored column
	tr.LevelUp = next.Level > LevelFromXP(stats.TotalXP)
	if tr.LevelUp {
		at := now
		next.LastLevelUpAt = &at
	}

	tr.Stats = next
	return tr, nil
}

// BuildResult turns a transition plus the awarded badges into the public result.
func BuildResult(ev models.GamificationEvent, tr Transition, newBadges []models.BadgeDefinition) *models.GamificationResult {
	if newBadges == nil {
		newBadges = []models.BadgeDefinition{}
	}
	return &models.GamificationResult{
		EventType:         ev.Type,
		XPGained:          tr.XPGained(),
		BaseXP:            tr.BaseXP,
		StreakBonusXP:     tr.BonusXP,
		LevelUp:           tr.LevelUp,
		StreakIncremented: tr.StreakIncremented,
		CurrentStreak:     tr.Stats.CurrentStreak,
		NewBadges:         newBadges,
		TotalXP:           tr.Stats.TotalXP,
		Level:             tr.Stats.Level,
		XPToNextLevel:     XPToNextLevel(tr.Stats.TotalXP),
	}
}
