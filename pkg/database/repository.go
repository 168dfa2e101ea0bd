package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/metasync/seo-gateway/pkg/cache"
	"github.com/metasync/seo-gateway/pkg/models"
	"github.com/metasync/seo-gateway/pkg/suggestions"
	"github.com/metasync/seo-gateway/pkg/types"
)

const overrideKeyPattern = "seo:override:%s"

// cachedOverride is the cache representation of a lookup, misses included.
type cachedOverride struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Locked      []string `json:"locked,omitempty"`
}

// Repository handles page override persistence. Lookups are cached in the
// shared store when one is given.
type Repository struct {
	db       *gorm.DB
	logger   *logrus.Logger
	cache    cache.Store
	cacheTTL time.Duration
}

func NewRepository(db *gorm.DB, logger *logrus.Logger, store cache.Store, cacheTTL time.Duration) *Repository {
	return &Repository{
		db:       db,
		logger:   logger,
		cache:    store,
		cacheTTL: cacheTTL,
	}
}

func overrideKey(route string) string {
	return fmt.Sprintf(overrideKeyPattern, suggestions.RouteHash(route))
}

// Lookup returns the overrides for route. A route without a row yields
// empty overrides and no error.
func (r *Repository) Lookup(ctx context.Context, route string) (types.Overrides, error) {
	if cached, ok := r.fromCache(ctx, route); ok {
		return cached, nil
	}

	var row models.PageOverride
	err := r.db.WithContext(ctx).First(&row, "route = ?", suggestions.NormalizeRoute(route)).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		r.toCache(ctx, route, cachedOverride{})
		return types.Overrides{}, nil
	case err != nil:
		return types.Overrides{}, fmt.Errorf("failed to look up overrides: %w", err)
	}

	entry := cachedOverride{
		Title:       row.Title,
		Description: row.Description,
		Locked:      row.LockedKeys,
	}
	r.toCache(ctx, route, entry)
	return entry.overrides(), nil
}

// Upsert creates or replaces the override row for o.Route.
func (r *Repository) Upsert(ctx context.Context, o *models.PageOverride) error {
	o.Route = suggestions.NormalizeRoute(o.Route)
	for i, key := range o.LockedKeys {
		o.LockedKeys[i] = strings.ToLower(strings.TrimSpace(key))
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "route"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "locked_keys", "updated_at"}),
	}).Create(o).Error
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}

	r.evict(ctx, o.Route)
	return nil
}

// Delete removes the override row for route, if any.
func (r *Repository) Delete(ctx context.Context, route string) error {
	err := r.db.WithContext(ctx).
		Where("route = ?", suggestions.NormalizeRoute(route)).
		Delete(&models.PageOverride{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	r.evict(ctx, route)
	return nil
}

// List returns all override rows ordered by route.
func (r *Repository) List(ctx context.Context) ([]models.PageOverride, error) {
	var rows []models.PageOverride
	if err := r.db.WithContext(ctx).Order("route").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return rows, nil
}

// Invalidate drops the cached lookup for route.
func (r *Repository) Invalidate(ctx context.Context, route string) error {
	r.evict(ctx, route)
	return nil
}

func (r *Repository) fromCache(ctx context.Context, route string) (types.Overrides, bool) {
	if r.cache == nil {
		return types.Overrides{}, false
	}
	raw, err := r.cache.Get(ctx, overrideKey(route))
	if err != nil {
		return types.Overrides{}, false
	}
	var entry cachedOverride
	if err := sonic.UnmarshalString(raw, &entry); err != nil {
		r.logger.WithError(err).Warn("Discarding undecodable override cache entry")
		return types.Overrides{}, false
	}
	return entry.overrides(), true
}

func (r *Repository) toCache(ctx context.Context, route string, entry cachedOverride) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return
	}
	raw, err := sonic.MarshalString(entry)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, overrideKey(route), raw, r.cacheTTL); err != nil {
		r.logger.WithError(err).Warn("Failed to cache overrides")
	}
}

func (r *Repository) evict(ctx context.Context, route string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, overrideKey(route)); err != nil {
		r.logger.WithError(err).Warn("Failed to evict cached overrides")
	}
}

func (c cachedOverride) overrides() types.Overrides {
	o := types.Overrides{
		Title:       c.Title,
		Description: c.Description,
	}
	if len(c.Locked) > 0 {
		o.Locked = make(map[string]struct{}, len(c.Locked))
		for _, key := range c.Locked {
			o.Locked[strings.ToLower(key)] = struct{}{}
		}
	}
	return o
}
