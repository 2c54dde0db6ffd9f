package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"finquest-gamification/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeService owns the badge catalog and the award ledger.
type BadgeService struct {
	DB    *gorm.DB
	Rules *RuleEngine

	group  singleflight.Group
	mu     sync.RWMutex
	active []models.BadgeDefinition
	loaded bool
	gen    uint64 // bumped by Invalidate
}

func NewBadgeService(db *gorm.DB, rules *RuleEngine) *BadgeService {
	return &BadgeService{DB: db, Rules: rules}
}

// ActiveCatalog returns the cached active definitions, loading them once on a miss.
// A load that overlaps an Invalidate is discarded and retried.
func (s *BadgeService) ActiveCatalog(ctx context.Context) ([]models.BadgeDefinition, error) {
	for {
		s.mu.RLock()
		if s.loaded {
			out := s.active
			s.mu.RUnlock()
			return out, nil
		}
		gen := s.gen
		s.mu.RUnlock()

		v, err, _ := s.group.Do("active:"+strconv.FormatUint(gen, 10), func() (any, error) {
			return s.loadActive(ctx, gen)
		})
		if err != nil {
			return nil, err
		}
		if res := v.(catalogLoad); res.stored {
			return res.defs, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load badge catalog: %w", err)
		}
	}
}

// Refresh reloads the active catalog and drops compiled rules.
func (s *BadgeService) Refresh(ctx context.Context) error {
	s.Invalidate()
	_, err := s.ActiveCatalog(ctx)
	return err
}

// Invalidate forgets the cached catalog. Loads already in flight will not
// repopulate it.
func (s *BadgeService) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.active = nil
	s.loaded = false
	s.mu.Unlock()
	if s.Rules != nil {
		s.Rules.Reset()
	}
}

type catalogLoad struct {
	defs   []models.BadgeDefinition
	stored bool
}

func (s *BadgeService) loadActive(ctx context.Context, gen uint64) (catalogLoad, error) {
	var defs []models.BadgeDefinition
	if err := s.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, code ASC").
		Find(&defs).Error; err != nil {
		return catalogLoad{}, fmt.Errorf("load badge catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return catalogLoad{}, nil
	}
	s.active = defs
	s.loaded = true
	return catalogLoad{defs: defs, stored: true}, nil
}

// List returns the full catalog, inactive definitions included.
func (s *BadgeService) List(ctx context.Context) ([]models.BadgeDefinition, error) {
	var defs []models.BadgeDefinition
	if err := s.DB.WithContext(ctx).Order("sort_order ASC, code ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// GetByCode fetches one definition.
func (s *BadgeService) GetByCode(ctx context.Context, code string) (*models.BadgeDefinition, error) {
	var def models.BadgeDefinition
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: badge %q", ErrNotFound, code)
		}
		return nil, err
	}
	return &def, nil
}

// BadgeCode derives a catalog code from a display name, e.g. "7-Day Streak" -> "7_day_streak".
func BadgeCode(name string) string {
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

// CategoryLabel is the human label of a category ("learning" -> "Learning").
func CategoryLabel(c models.BadgeCategory) string {
	return cases.Title(language.English).String(string(c))
}

// Create adds a definition to the catalog.
func (s *BadgeService) Create(ctx context.Context, def models.BadgeDefinition) (*models.BadgeDefinition, error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidBadge)
	}
	if def.Code == "" {
		def.Code = BadgeCode(def.Name)
	}
	if def.Category == "" {
		def.Category = models.BadgeCategoryOther
	}
	if !def.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidBadge, def.Category)
	}
	if def.Rule != "" {
		if err := s.Rules.Validate(def.Rule); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
		}
	}
	def.ID = uuid.NewString()

	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&def)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: badge %q already exists", ErrConflict, def.Code)
	}
	s.Invalidate()
	zap.L().Info("badge created", zap.String("code", def.Code), zap.Bool("active", def.IsActive))
	return &def, nil
}

// BadgePatch lists the administrable fields; nil leaves a field untouched.
type BadgePatch struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Category    *models.BadgeCategory `json:"category"`
	Rule        *string               `json:"rule"`
	IsActive    *bool                 `json:"is_active"`
	IconURL     *string               `json:"icon_url"`
	SortOrder   *int                  `json:"sort_order"`
}

// Update applies patch to the definition with code.
func (s *BadgeService) Update(ctx context.Context, code string, patch BadgePatch) (*models.BadgeDefinition, error) {
	def, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidBadge)
		}
		updates["name"] = name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Category != nil {
		if !patch.Category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidBadge, *patch.Category)
		}
		updates["category"] = *patch.Category
	}
	if patch.Rule != nil {
		if r := strings.TrimSpace(*patch.Rule); r != "" {
			if err := s.Rules.Validate(r); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
			}
		}
		updates["rule"] = strings.TrimSpace(*patch.Rule)
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.IconURL != nil {
		updates["icon_url"] = *patch.IconURL
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}
	if len(updates) == 0 {
		return def, nil
	}

	if err := s.DB.WithContext(ctx).Model(def).Updates(updates).Error; err != nil {
		return nil, err
	}
	s.Invalidate()
	return s.GetByCode(ctx, code)
}

// EarnedAt returns badge id -> earned time for a user. Pass a transaction
// handle when called from inside the processor.
func (s *BadgeService) EarnedAt(db *gorm.DB, userID string) (map[string]time.Time, error) {
	var awards []models.BadgeAward
	if err := db.Where("user_id = ?", userID).Find(&awards).Error; err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(awards))
	for _, a := range awards {
		out[a.BadgeID] = a.EarnedAt
	}
	return out, nil
}

// Award records (user, badge) if absent. It reports whether this call created
// the award; a pre-existing award is a silent no-op.
func (s *BadgeService) Award(db *gorm.DB, userID string, def models.BadgeDefinition, at time.Time) (bool, error) {
	award := models.BadgeAward{
		ID:       uuid.NewString(),
		UserID:   userID,
		BadgeID:  def.ID,
		EarnedAt: at,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&award)
	if res.Error != nil {
		return false, fmt.Errorf("award badge %s: %w", def.Code, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Gallery returns the whole catalog annotated with the user's earned state.
func (s *BadgeService) Gallery(ctx context.Context, userID string) ([]models.BadgeStatus, error) {
	defs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := s.EarnedAt(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.BadgeStatus, 0, len(defs))
	for _, def := range defs {
		at, ok := earned[def.ID]
		status := models.BadgeStatus{
			BadgeDefinition: def,
			CategoryLabel:   CategoryLabel(def.Category),
			Earned:          ok,
		}
		if ok {
			t := at
			status.EarnedAt = &t
		}
		out = append(out, status)
	}
	return out, nil
}

// IconStore persists badge artwork and returns its public URL.
type IconStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

var iconExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// UploadIcon stores an icon for the badge with code and points the definition at it.
func (s *BadgeService) UploadIcon(ctx context.Context, store IconStore, code, contentType string, body io.Reader) (*models.BadgeDefinition, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: icon storage is not configured", ErrUnavailable)
	}
	ext, ok := iconExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported icon type %q", ErrInvalidBadge, contentType)
	}
	if _, err := s.GetByCode(ctx, code); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("badges/%s-%s%s", code, uuid.NewString()[:8], ext)
	url, err := store.Put(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	zap.L().Info("badge icon uploaded", zap.String("code", code), zap.String("url", url))
	return s.Update(ctx, code, BadgePatch{IconURL: &url})
}
