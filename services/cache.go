package services

import (
	"context"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

type cacheKey struct {
	entity string
	year   int
}

// FetchFunc produces the result for one entity and year on a cache miss.
type FetchFunc func(ctx context.Context) (models.CategorizedResult, error)

// DisclosureCache keeps categorized results per entity and year for the
// lifetime of the process. Entries never expire. Failed fetches are not
// stored. It is not safe for concurrent use; Engine serializes access.
type DisclosureCache struct {
	entries map[cacheKey]models.CategorizedResult
	logger  *utils.Logger
}

// NewDisclosureCache creates an empty cache.
func NewDisclosureCache(logger *utils.Logger) *DisclosureCache {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &DisclosureCache{
		entries: make(map[cacheKey]models.CategorizedResult),
		logger:  logger,
	}
}

// GetOrFetch returns the cached result for id and year, calling fetch only
// when there is none. Callers receive a copy.
func (c *DisclosureCache) GetOrFetch(ctx context.Context, id models.EntityIdentity, year int, fetch FetchFunc) (models.CategorizedResult, error) {
	key := cacheKey{entity: id.Key(), year: year}
	if r, ok := c.entries[key]; ok {
		c.logger.Debug("[cache] Hit %s/%d", key.entity, year)
		return r.Clone(), nil
	}

	c.logger.Debug("[cache] Miss %s/%d", key.entity, year)
	r, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = models.NewCategorizedResult(id.Chamber)
	}
	c.entries[key] = r.Clone()
	return r, nil
}

// Len returns the number of cached entries.
func (c *DisclosureCache) Len() int { return len(c.entries) }
