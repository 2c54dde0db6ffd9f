package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"finquest-gamification/models"
	"finquest-gamification/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newBadgeService(t *testing.T) (*BadgeService, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	testutil.SeedCatalog(t, db)
	return NewBadgeService(db, newRules(t)), db
}

func TestBadgeService_ActiveCatalog(t *testing.T) {
	svc, _ := newBadgeService(t)
	ctx := context.Background()

	active, err := svc.ActiveCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, active, 9)
	for _, def := range active {
		require.True(t, def.IsActive, def.Code)
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(models.DefaultBadgeCatalog))
	require.Equal(t, "first_module", all[0].Code)
}

func TestBadgeService_InvalidateDuringLoadIsNotOverwritten(t *testing.T) {
	svc, db := newBadgeService(t)
	ctx := context.Background()

	var armed atomic.Bool
	parked := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("park_catalog_load", func(tx *gorm.DB) {
		if tx.Statement.Table == "badge_definitions" && armed.CompareAndSwap(true, false) {
			close(parked)
			<-release
		}
	}))

	armed.Store(true)
	type loadResult struct {
		defs []models.BadgeDefinition
		err  error
	}
	done := make(chan loadResult, 1)
	go func() {
		defs, err := svc.ActiveCatalog(ctx)
		done <- loadResult{defs, err}
	}()

	<-parked
	inactive := false
	_, err := svc.Update(ctx, "week_streak", BadgePatch{IsActive: &inactive})
	require.NoError(t, err)
	close(release)

	first := <-done
	require.NoError(t, first.err)
	require.Len(t, first.defs, 8)

	active, err := svc.ActiveCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, active, 8)
	for _, def := range active {
		require.NotEqual(t, "week_streak", def.Code)
	}
}

func TestBadgeService_AwardIsInsertIfAbsent(t *testing.T) {
	svc, db := newBadgeService(t)
	testutil.SeedUser(t, db, "u1")

	def, err := svc.GetByCode(context.Background(), "week_streak")
	require.NoError(t, err)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	created, err := svc.Award(db, "u1", *def, at)
	require.NoError(t, err)
	require.True(t, created)

	created, err = svc.Award(db, "u1", *def, at.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)

	var count int64
	require.NoError(t, db.Model(&models.BadgeAward{}).Where("user_id = ? AND badge_id = ?", "u1", def.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	earned, err := svc.EarnedAt(db, "u1")
	require.NoError(t, err)
	require.True(t, earned[def.ID].Equal(at))
}

func TestBadgeService_Gallery(t *testing.T) {
	svc, db := newBadgeService(t)
	testutil.SeedUser(t, db, "u1")
	ctx := context.Background()

	def, err := svc.GetByCode(ctx, "first_module")
	require.NoError(t, err)
	_, err = svc.Award(db, "u1", *def, time.Now().UTC())
	require.NoError(t, err)

	gallery, err := svc.Gallery(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, gallery, len(models.DefaultBadgeCatalog))

	byCode := map[string]models.BadgeStatus{}
	for _, b := range gallery {
		byCode[b.Code] = b
	}
	require.True(t, byCode["first_module"].Earned)
	require.NotNil(t, byCode["first_module"].EarnedAt)
	require.Equal(t, "Learning", byCode["first_module"].CategoryLabel)
	require.False(t, byCode["week_streak"].Earned)
	require.Nil(t, byCode["week_streak"].EarnedAt)
	require.False(t, byCode["analyst"].IsActive)
}

func TestBadgeService_GetByCodeNotFound(t *testing.T) {
	svc, _ := newBadgeService(t)
	_, err := svc.GetByCode(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgeService_CreateAndUpdate(t *testing.T) {
	svc, _ := newBadgeService(t)
	ctx := context.Background()

	_, err := svc.ActiveCatalog(ctx)
	require.NoError(t, err)

	def, err := svc.Create(ctx, models.BadgeDefinition{
		Name:     "Quiz Marathon",
		Category: models.BadgeCategoryLearning,
		Rule:     "quizzes_completed >= 50",
		IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, "quiz_marathon", def.Code)

	active, err := svc.ActiveCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, active, 10, "create invalidates the cache")

	_, err = svc.Create(ctx, models.BadgeDefinition{Name: "Quiz Marathon", Category: models.BadgeCategoryLearning})
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.Create(ctx, models.BadgeDefinition{Name: "Bad", Rule: "quizzes_completed >"})
	require.ErrorIs(t, err, ErrInvalidBadge)

	_, err = svc.Create(ctx, models.BadgeDefinition{Name: "Bad", Category: "gold"})
	require.ErrorIs(t, err, ErrInvalidBadge)

	off := false
	updated, err := svc.Update(ctx, "quiz_marathon", BadgePatch{IsActive: &off})
	require.NoError(t, err)
	require.False(t, updated.IsActive)

	active, err = svc.ActiveCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, active, 9)

	badRule := "level >"
	_, err = svc.Update(ctx, "quiz_marathon", BadgePatch{Rule: &badRule})
	require.ErrorIs(t, err, ErrInvalidBadge)

	_, err = svc.Update(ctx, "missing", BadgePatch{IsActive: &off})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgeCode(t *testing.T) {
	require.Equal(t, "7_day_streak", BadgeCode("7-Day Streak"))
	require.Equal(t, "portfolio_creator", BadgeCode("Portfolio Creator"))
	require.Equal(t, "diversifier", BadgeCode("  Diversifier! "))
}

type memoryIcons struct {
	key, contentType string
	body             []byte
	err              error
}

func (m *memoryIcons) Put(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, _ := io.ReadAll(body)
	m.key, m.contentType, m.body = key, contentType, b
	return "https://cdn.example.test/" + key, nil
}

func TestBadgeService_UploadIcon(t *testing.T) {
	svc, _ := newBadgeService(t)
	ctx := context.Background()
	store := &memoryIcons{}

	def, err := svc.UploadIcon(ctx, store, "week_streak", "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(store.key, "badges/week_streak-"))
	require.True(t, strings.HasSuffix(store.key, ".png"))
	require.Equal(t, "https://cdn.example.test/"+store.key, def.IconURL)
	require.Equal(t, []byte("png"), store.body)

	_, err = svc.UploadIcon(ctx, store, "week_streak", "application/pdf", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrInvalidBadge)

	_, err = svc.UploadIcon(ctx, store, "nope", "image/png", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UploadIcon(ctx, nil, "week_streak", "image/png", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = svc.UploadIcon(ctx, &memoryIcons{err: errors.New("boom")}, "week_streak", "image/png", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrUnavailable)
}
