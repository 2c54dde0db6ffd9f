package services

import (
	"finquest-gamification/config"
)

// XPRewards is the per-event reward table (tunable via env, see config.RewardsConfig).
type XPRewards struct {
	Login                int64
	Module               int64
	ModuleFirstTimeBonus int64   // on top of Module
	QuizHigh             int64   // score >= QuizHighScore
	QuizLow              int64   // score < QuizHighScore
	QuizHighScore        float64 // percent
	PositionAdded        int64
	PositionUpdated      int64
	StreakBonus          int64 // per streak increment
}

var DefaultXPRewards = XPRewards{
	Login:                10,
	Module:               25,
	ModuleFirstTimeBonus: 50,
	QuizHigh:             35,
	QuizLow:              20,
	QuizHighScore:        80,
	PositionAdded:        40,
	PositionUpdated:      20,
	StreakBonus:          2,
}

// RewardsFromConfig overlays the non-zero env overrides on DefaultXPRewards.
func RewardsFromConfig(c config.RewardsConfig) XPRewards {
	r := DefaultXPRewards
	override := func(dst *int64, v int64) {
		if v > 0 {
			*dst = v
		}
	}
	override(&r.Login, c.Login)
	override(&r.Module, c.Module)
	override(&r.ModuleFirstTimeBonus, c.ModuleFirstTime)
	override(&r.QuizHigh, c.QuizHigh)
	override(&r.QuizLow, c.QuizLow)
	override(&r.PositionAdded, c.PositionAdded)
	override(&r.PositionUpdated, c.PositionUpdated)
	override(&r.StreakBonus, c.StreakBonus)
	if c.QuizHighScore > 0 {
		r.QuizHighScore = c.QuizHighScore
	}
	return r
}

// QuizXP returns the base reward for a quiz score.
func (r XPRewards) QuizXP(score float64) int64 {
	if score >= r.QuizHighScore {
		return r.QuizHigh
	}
	return r.QuizLow
}

// ModuleXP returns the reward for a module completion.
func (r XPRewards) ModuleXP(firstTime bool) int64 {
	if firstTime {
		return r.Module + r.ModuleFirstTimeBonus
	}
	return r.Module
}
