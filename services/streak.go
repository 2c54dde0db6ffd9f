package services

import (
	"time"
)

// StreakUpdate is the outcome of evaluating one quiz completion.
type StreakUpdate struct {
	Streak      int
	LastDate    *time.Time
	Incremented bool // displayed streak changed (increment or reset)
	Reset       bool
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EvaluateStreak applies the daily streak rule for a quiz completed at
// completedAt. Only the first completion of a UTC day counts; a gap of more
// than one day restarts the streak at 1.
func EvaluateStreak(current int, last *time.Time, completedAt time.Time) StreakUpdate {
	today := DateOf(completedAt)

	if last == nil {
		return StreakUpdate{Streak: 1, LastDate: &today, Incremented: true}
	}

	lastDay := DateOf(*last)
	gap := int(today.Sub(lastDay).Hours() / 24)

	switch {
	case gap <= 0:
		// already counted today, or a late delivery for an earlier day
		return StreakUpdate{Streak: current, LastDate: &lastDay}
	case gap == 1:
		return StreakUpdate{Streak: current + 1, LastDate: &today, Incremented: true}
	default:
		return StreakUpdate{Streak: 1, LastDate: &today, Incremented: true, Reset: true}
	}
}
