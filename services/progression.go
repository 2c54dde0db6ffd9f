package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finquest-gamification/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultEventTimeout = 5 * time.Second

// ProgressionService applies gamification events to the stats store.
type ProgressionService struct {
	DB      *gorm.DB
	Badges  *BadgeService
	Locker  Locker
	Rewards XPRewards
	Timeout time.Duration
	Clock   clockwork.Clock
}

type ProgressionOption func(*ProgressionService)

func WithLocker(l Locker) ProgressionOption {
	return func(s *ProgressionService) { s.Locker = l }
}

func WithRewards(r XPRewards) ProgressionOption {
	return func(s *ProgressionService) { s.Rewards = r }
}

func WithEventTimeout(d time.Duration) ProgressionOption {
	return func(s *ProgressionService) {
		if d > 0 {
			s.Timeout = d
		}
	}
}

func WithClock(c clockwork.Clock) ProgressionOption {
	return func(s *ProgressionService) { s.Clock = c }
}

func NewProgressionService(db *gorm.DB, badges *BadgeService, opts ...ProgressionOption) *ProgressionService {
	s := &ProgressionService{
		DB:      db,
		Badges:  badges,
		Locker:  NewLocalLocker(),
		Rewards: DefaultXPRewards,
		Timeout: defaultEventTimeout,
		Clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessEvent applies ev for userID and reports what changed. Either the
// whole event is applied (stats, awards, history) or nothing is.
func (s *ProgressionService) ProcessEvent(ctx context.Context, userID string, ev models.GamificationEvent) (*models.GamificationResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidEvent("user id is required")
	}
	if err := ValidateEvent(ev); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	release, err := s.Locker.Lock(ctx, "user:"+userID)
	if err != nil {
		return nil, classify(err)
	}
	defer release()

	// loaded outside the transaction, the store may hand out a single connection
	catalog, err := s.Badges.ActiveCatalog(ctx)
	if err != nil {
		return nil, classify(err)
	}

	now := s.Clock.Now().UTC()
	var result *models.GamificationResult

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats, err := s.lockStats(tx, userID)
		if err != nil {
			return err
		}

		if ev.Type == models.EventModuleCompleted {
			first, err := s.recordModule(tx, userID, ev.ModuleID, now)
			if err != nil {
				return err
			}
			if ev.IsFirstTimeForModule == nil {
				ev.IsFirstTimeForModule = &first
			}
		}

		tr, err := Apply(*stats, ev, s.Rewards, now)
		if err != nil {
			return err
		}

		earnedAt, err := s.Badges.EarnedAt(tx, userID)
		if err != nil {
			return err
		}
		earned := make(map[string]bool, len(earnedAt))
		for id := range earnedAt {
			earned[id] = true
		}

		var awarded []models.BadgeDefinition
		for _, def := range s.Badges.Rules.Eligible(catalog, earned, tr.Stats, ev) {
			created, err := s.Badges.Award(tx, userID, def, now)
			if err != nil {
				return err
			}
			if created {
				awarded = append(awarded, def)
			}
		}

		if err := s.saveStats(tx, stats.Version, &tr.Stats); err != nil {
			return err
		}
		if err := s.recordActivity(tx, userID, ev, tr, awarded, now); err != nil {
			return err
		}

		result = BuildResult(ev, tr, awarded)
		return nil
	})
	if err != nil {
		err = classify(err)
		zap.L().Warn("gamification event rejected",
			zap.String("user_id", userID),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("gamification event applied",
		zap.String("user_id", userID),
		zap.String("event_type", string(ev.Type)),
		zap.Int64("xp_gained", result.XPGained),
		zap.Int("level", result.Level),
		zap.Bool("level_up", result.LevelUp),
		zap.Int("streak", result.CurrentStreak),
		zap.Int("new_badges", len(result.NewBadges)))
	return result, nil
}

// lockStats loads the user's stats row FOR UPDATE, creating it with zeroed
// defaults when absent.
func (s *ProgressionService) lockStats(tx *gorm.DB, userID string) (*models.GamificationStats, error) {
	var stats models.GamificationStats
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var users int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
		return nil, err
	}
	if users == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	fresh := models.NewGamificationStats(uuid.NewString(), userID)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// recordModule reports whether this is the user's first completion of moduleID.
func (s *ProgressionService) recordModule(tx *gorm.DB, userID, moduleID string, at time.Time) (bool, error) {
	mc := models.ModuleCompletion{
		ID:          uuid.NewString(),
		UserID:      userID,
		ModuleID:    strings.TrimSpace(moduleID),
		CompletedAt: at,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "module_id"}},
		DoNothing: true,
	}).Create(&mc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *ProgressionService) saveStats(tx *gorm.DB, version int64, next *models.GamificationStats) error {
	res := tx.Model(&models.GamificationStats{}).
		Where("id = ? AND version = ?", next.ID, version).
		Updates(map[string]any{
			"total_xp":            next.TotalXP,
			"level":               next.Level,
			"current_streak":      next.CurrentStreak,
			"last_streak_date":    next.LastStreakDate,
			"modules_completed":   next.ModulesCompleted,
			"quizzes_completed":   next.QuizzesCompleted,
			"portfolio_positions": next.PortfolioPositions,
			"last_level_up_at":    next.LastLevelUpAt,
			"version":             version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: stats %s changed concurrently", ErrConflict, next.ID)
	}
	next.Version = version + 1
	return nil
}

func (s *ProgressionService) recordActivity(tx *gorm.DB, userID string, ev models.GamificationEvent, tr Transition, awarded []models.BadgeDefinition, at time.Time) error {
	codes := make([]string, 0, len(awarded))
	for _, b := range awarded {
		codes = append(codes, b.Code)
	}
	entry := models.ActivityEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventType:   ev.Type,
		XPGained:    tr.XPGained(),
		BaseXP:      tr.BaseXP,
		BonusXP:     tr.BonusXP,
		LevelAfter:  tr.Stats.Level,
		LevelUp:     tr.LevelUp,
		StreakAfter: tr.Stats.CurrentStreak,
		StreakUp:    tr.StreakIncremented,
		BadgeCodes:  strings.Join(codes, ","),
		CreatedAt:   at,
	}
	return tx.Create(&entry).Error
}

// Snapshot returns the authoritative state for userID. A known user without
// any activity yet gets the zeroed state; nothing is written.
func (s *ProgressionService) Snapshot(ctx context.Context, userID string) (*models.StateSnapshot, error) {
	db := s.DB.WithContext(ctx)

	var stats models.GamificationStats
	err := db.Where("user_id = ?", userID).First(&stats).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		var users int64
		if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return nil, classify(err)
		}
		if users == 0 {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		stats = models.NewGamificationStats("", userID)
	case err != nil:
		return nil, classify(err)
	}

	badges, err := s.Badges.Gallery(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}

	level := LevelFromXP(stats.TotalXP)
	return &models.StateSnapshot{
		UserID:             userID,
		TotalXP:            stats.TotalXP,
		Level:              level,
		MaxLevel:           level >= MaxLevel,
		XPToNextLevel:      XPToNextLevel(stats.TotalXP),
		CurrentStreak:      stats.CurrentStreak,
		LastStreakDate:     stats.LastStreakDate,
		ModulesCompleted:   stats.ModulesCompleted,
		QuizzesCompleted:   stats.QuizzesCompleted,
		PortfolioPositions: stats.PortfolioPositions,
		Badges:             badges,
	}, nil
}

// HistoryPage is one page of a user's activity, newest first.
type HistoryPage struct {
	Entries    []models.ActivityEntry `json:"entries"`
	Page       int                    `json:"page"`
	Size       int                    `json:"size"`
	TotalItems int64                  `json:"total_items"`
	TotalPages int                    `json:"total_pages"`
}

// maxHistoryPage bounds the offset computed from a client-supplied page.
const maxHistoryPage = 1_000_000

// History returns paginated activity entries.
func (s *ProgressionService) History(ctx context.Context, userID string, page, size int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if page > maxHistoryPage {
		page = maxHistoryPage
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	db := s.DB.WithContext(ctx)

	var total int64
	if err := db.Model(&models.ActivityEntry{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, classify(err)
	}

	entries := []models.ActivityEntry{}
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(size).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, classify(err)
	}

	return &HistoryPage{
		Entries:    entries,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

// ActivitySince returns entries created strictly after since, oldest first.
func (s *ProgressionService) ActivitySince(ctx context.Context, userID string, since time.Time) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND created_at > ?", userID, since).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// LatestActivity returns the newest entry's time, or the zero time.
func (s *ProgressionService) LatestActivity(ctx context.Context, userID string) (time.Time, error) {
	var latest models.ActivityEntry
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return latest.CreatedAt, nil
}
