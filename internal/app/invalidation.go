package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

// CacheInvalidator evicts the cached business and review list after a
// review write. Register it after the RatingAggregator.
type CacheInvalidator struct {
	cache domain.Cache
}

func NewCacheInvalidator(c domain.Cache) *CacheInvalidator {
	return &CacheInvalidator{cache: c}
}

func (c *CacheInvalidator) ReviewCreated(ctx context.Context, r domain.Review) error {
	c.invalidateBusiness(ctx, r.BusinessID)
	return nil
}

func (c *CacheInvalidator) ReviewDeleted(ctx context.Context, r domain.Review) error {
	c.invalidateBusiness(ctx, r.BusinessID)
	return nil
}

// Eviction failures only leave a stale entry until its TTL runs out.
func (c *CacheInvalidator) invalidateBusiness(ctx context.Context, id int64) {
	for _, key := range []string{businessKey(id), reviewsKey(id)} {
		if err := c.cache.Del(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache eviction failed")
		}
	}
}

func (c *CacheInvalidator) invalidateCategories(ctx context.Context, slugs ...string) {
	keys := []string{categoriesKey}
	for _, s := range slugs {
		keys = append(keys, categoryKey(s))
	}
	for _, key := range keys {
		if err := c.cache.Del(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache eviction failed")
		}
	}
}
