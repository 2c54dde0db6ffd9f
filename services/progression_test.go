package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"finquest-gamification/models"
	"finquest-gamification/testutil"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	svc   *ProgressionService
	db    *gorm.DB
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T, opts ...ProgressionOption) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	testutil.SeedCatalog(t, db)
	testutil.SeedUser(t, db, "u1")

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	opts = append([]ProgressionOption{WithClock(clock)}, opts...)
	return &fixture{
		svc:   NewProgressionService(db, NewBadgeService(db, newRules(t)), opts...),
		db:    db,
		clock: clock,
	}
}

func (f *fixture) seedStats(t *testing.T, userID string, mutate func(*models.GamificationStats)) {
	t.Helper()
	stats := models.NewGamificationStats("stats-"+userID, userID)
	mutate(&stats)
	require.NoError(t, f.db.Create(&stats).Error)
}

func (f *fixture) stats(t *testing.T, userID string) models.GamificationStats {
	t.Helper()
	var s models.GamificationStats
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&s).Error)
	return s
}

func quiz(score float64) models.GamificationEvent {
	return models.GamificationEvent{Type: models.EventQuizCompleted, QuizScore: &score}
}

func TestProcessEvent_CreatesStatsLazily(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ProcessEvent(context.Background(), "u1", models.GamificationEvent{Type: models.EventLogin})
	require.NoError(t, err)
	require.Equal(t, int64(10), res.XPGained)
	require.Equal(t, 1, res.Level)
	require.False(t, res.LevelUp)
	require.Empty(t, res.NewBadges)

	s := f.stats(t, "u1")
	require.Equal(t, int64(10), s.TotalXP)
	require.Equal(t, int64(1), s.Version)
}

func TestProcessEvent_LevelUpWithStreakBonus(t *testing.T) {
	rewards := DefaultXPRewards
	rewards.QuizLow = 15
	f := newFixture(t, WithRewards(rewards))

	yesterday := DateOf(f.clock.Now()).AddDate(0, 0, -1)
	f.seedStats(t, "u1", func(s *models.GamificationStats) {
		s.TotalXP = 190
		s.CurrentStreak = 2
		s.LastStreakDate = &yesterday
	})

	res, err := f.svc.ProcessEvent(context.Background(), "u1", quiz(55))
	require.NoError(t, err)
	require.Equal(t, int64(17), res.XPGained)
	require.Equal(t, int64(15), res.BaseXP)
	require.Equal(t, int64(2), res.StreakBonusXP)
	require.Equal(t, int64(207), res.TotalXP)
	require.Equal(t, 2, res.Level)
	require.True(t, res.LevelUp)
	require.True(t, res.StreakIncremented)
	require.Equal(t, 3, res.CurrentStreak)
	require.Empty(t, res.NewBadges)

	s := f.stats(t, "u1")
	require.Equal(t, int64(207), s.TotalXP)
	require.Equal(t, 2, s.Level)
	require.NotNil(t, s.LastLevelUpAt)
	require.Equal(t, int64(1), s.QuizzesCompleted)
}

func TestProcessEvent_WeekStreakAwardedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	yesterday := DateOf(f.clock.Now()).AddDate(0, 0, -1)
	f.seedStats(t, "u1", func(s *models.GamificationStats) {
		s.TotalXP = 400
		s.CurrentStreak = 6
		s.LastStreakDate = &yesterday
	})

	res, err := f.svc.ProcessEvent(ctx, "u1", quiz(85))
	require.NoError(t, err)
	require.Equal(t, 7, res.CurrentStreak)
	require.Len(t, res.NewBadges, 1)
	require.Equal(t, "week_streak", res.NewBadges[0].Code)

	f.clock.Advance(time.Hour)
	res, err = f.svc.ProcessEvent(ctx, "u1", quiz(85))
	require.NoError(t, err)
	require.False(t, res.StreakIncremented)
	require.Equal(t, 7, res.CurrentStreak)
	require.Equal(t, int64(35), res.XPGained)
	require.Empty(t, res.NewBadges)

	var count int64
	require.NoError(t, f.db.Table("badge_awards").
		Joins("JOIN badge_definitions ON badge_definitions.id = badge_awards.badge_id").
		Where("badge_awards.user_id = ? AND badge_definitions.code = ?", "u1", "week_streak").
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestProcessEvent_RepeatModuleGetsLowerReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	module := models.GamificationEvent{Type: models.EventModuleCompleted, ModuleID: "budgeting-101"}

	first, err := f.svc.ProcessEvent(ctx, "u1", module)
	require.NoError(t, err)
	require.Equal(t, int64(75), first.XPGained)
	require.Len(t, first.NewBadges, 1)
	require.Equal(t, "first_module", first.NewBadges[0].Code)

	repeat, err := f.svc.ProcessEvent(ctx, "u1", module)
	require.NoError(t, err)
	require.Equal(t, int64(25), repeat.XPGained)
	require.Empty(t, repeat.NewBadges)

	notFirst := false
	explicit, err := f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{
		Type:                 models.EventModuleCompleted,
		ModuleID:             "investing-201",
		IsFirstTimeForModule: &notFirst,
	})
	require.NoError(t, err)
	require.Equal(t, int64(25), explicit.XPGained)

	s := f.stats(t, "u1")
	require.Equal(t, int64(125), s.TotalXP)
	require.Equal(t, int64(3), s.ModulesCompleted)
}

func TestProcessEvent_PortfolioBadges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var codes []string
	for i := 0; i < 3; i++ {
		res, err := f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{Type: models.EventPortfolioPositionAdded})
		require.NoError(t, err)
		for _, b := range res.NewBadges {
			codes = append(codes, b.Code)
		}
	}
	require.Equal(t, []string{"portfolio_creator", "diversifier"}, codes)
	require.Equal(t, int64(3), f.stats(t, "u1").PortfolioPositions)
}

func TestProcessEvent_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProcessEvent(ctx, "ghost", models.GamificationEvent{Type: models.EventLogin})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{Type: models.EventQuizCompleted})
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = f.svc.ProcessEvent(ctx, "", models.GamificationEvent{Type: models.EventLogin})
	require.ErrorIs(t, err, ErrInvalidEvent)

	var count int64
	require.NoError(t, f.db.Model(&models.GamificationStats{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Model(&models.ActivityEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestProcessEvent_FailureInsideTransactionRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("fail_activity", func(tx *gorm.DB) {
		if tx.Statement.Table == "activity_entries" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{Type: models.EventModuleCompleted, ModuleID: "budgeting-101"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.True(t, Retryable(err))

	for _, model := range []any{&models.GamificationStats{}, &models.BadgeAward{}, &models.ModuleCompletion{}, &models.ActivityEntry{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		require.Zero(t, count, "%T", model)
	}

	require.NoError(t, f.db.Callback().Create().Remove("fail_activity"))

	res, err := f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{Type: models.EventModuleCompleted, ModuleID: "budgeting-101"})
	require.NoError(t, err)
	require.Equal(t, int64(75), res.XPGained)
	require.Len(t, res.NewBadges, 1)
}

func TestProcessEvent_LockTimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, WithEventTimeout(50*time.Millisecond))
	ctx := context.Background()

	release, err := f.svc.Locker.Lock(ctx, "user:u1")
	require.NoError(t, err)
	defer release()

	_, err = f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{Type: models.EventLogin})
	require.ErrorIs(t, err, ErrUnavailable)
	require.True(t, Retryable(err))

	var count int64
	require.NoError(t, f.db.Model(&models.GamificationStats{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSaveStats_VersionMismatchIsConflict(t *testing.T) {
	f := newFixture(t)
	f.seedStats(t, "u1", func(s *models.GamificationStats) { s.TotalXP = 50 })

	s := f.stats(t, "u1")
	s.TotalXP = 60
	err := f.svc.saveStats(f.db, s.Version+3, &s)
	require.ErrorIs(t, err, ErrConflict)
	require.True(t, Retryable(err))
	require.Equal(t, int64(50), f.stats(t, "u1").TotalXP)
}

func TestProcessEvent_ConcurrentEventsForOneUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	badges := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{
				Type:     models.EventModuleCompleted,
				ModuleID: fmt.Sprintf("m-%d", i),
			})
			if err != nil {
				errs <- err
				return
			}
			badges <- len(res.NewBadges)
		}(i)
	}
	wg.Wait()
	close(errs)
	close(badges)

	for err := range errs {
		require.NoError(t, err)
	}
	awarded := 0
	for b := range badges {
		awarded += b
	}

	s := f.stats(t, "u1")
	require.Equal(t, int64(n*75), s.TotalXP)
	require.Equal(t, int64(n), s.ModulesCompleted)
	require.Equal(t, int64(n), s.Version)
	require.Equal(t, LevelFromXP(s.TotalXP), s.Level)

	// first_module, module_5, module_10, module_20
	require.Equal(t, 4, awarded)
	var count int64
	require.NoError(t, f.db.Model(&models.BadgeAward{}).Where("user_id = ?", "u1").Count(&count).Error)
	require.Equal(t, int64(4), count)
}

func TestProcessEvent_DifferentUsersAreIndependent(t *testing.T) {
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "u2")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"u1", "u2"} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.svc.ProcessEvent(ctx, id, models.GamificationEvent{Type: models.EventLogin})
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	require.Equal(t, int64(50), f.stats(t, "u1").TotalXP)
	require.Equal(t, int64(50), f.stats(t, "u2").TotalXP)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Level)
	require.Equal(t, int64(200), snap.XPToNextLevel)
	require.Len(t, snap.Badges, len(models.DefaultBadgeCatalog))

	var count int64
	require.NoError(t, f.db.Model(&models.GamificationStats{}).Count(&count).Error)
	require.Zero(t, count, "snapshot is read-only")

	_, err = f.svc.ProcessEvent(ctx, "u1", models.GamificationEvent{Type: models.EventModuleCompleted, ModuleID: "m1"})
	require.NoError(t, err)

	snap, err = f.svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(75), snap.TotalXP)
	require.Equal(t, int64(125), snap.XPToNextLevel)
	require.Equal(t, int64(1), snap.ModulesCompleted)
	earned := 0
	for _, b := range snap.Badges {
		if b.Earned {
			earned++
			require.Equal(t, "first_module", b.Code)
		}
	}
	require.Equal(t, 1, earned)

	_, err = f.svc.Snapshot(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ev := range []models.GamificationEvent{
		{Type: models.EventLogin},
		{Type: models.EventPortfolioPositionAdded},
		quiz(100),
	} {
		_, err := f.svc.ProcessEvent(ctx, "u1", ev)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	page, err := f.svc.History(ctx, "u1", 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), page.TotalItems)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Entries, 2)
	require.Equal(t, models.EventQuizCompleted, page.Entries[0].EventType)
	require.Equal(t, int64(37), page.Entries[0].XPGained)
	require.True(t, page.Entries[0].StreakUp)
	require.Equal(t, "portfolio_creator", page.Entries[1].BadgeCodes)

	page, err = f.svc.History(ctx, "u1", 0, 500)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 20, page.Size)
	require.Len(t, page.Entries, 3)

	beyond, err := f.svc.History(ctx, "u1", math.MaxInt, 100)
	require.NoError(t, err)
	require.Equal(t, maxHistoryPage, beyond.Page)
	require.Empty(t, beyond.Entries)
	require.Equal(t, int64(3), beyond.TotalItems)

	since, err := f.svc.ActivitySince(ctx, "u1", page.Entries[1].CreatedAt)
	require.NoError(t, err)
	require.Len(t, since, 1)
	require.Equal(t, models.EventQuizCompleted, since[0].EventType)

	latest, err := f.svc.LatestActivity(ctx, "u1")
	require.NoError(t, err)
	require.True(t, latest.Equal(page.Entries[0].CreatedAt))
}
