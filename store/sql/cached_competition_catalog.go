package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-entry-credits/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const competitionCacheKeyPrefix = "entry-credits::competition::v1"

// CompetitionCacheKey returns entry-credits::competition::v1::<id> with the
// normalized id URL-path escaped.
func CompetitionCacheKey(id string) string {
	return strings.Join([]string{competitionCacheKeyPrefix, url.PathEscape(normalizeCompetitionID(id))}, "::")
}

// CachedCompetitionCatalog serves competition reads from the repository cache
// and falls back to base on a miss. Competitions change rarely and writes go
// through CompetitionStore, which evicts the cached entry.
type CachedCompetitionCatalog struct {
	base  core.CompetitionCatalog
	cache repositorycache.CacheService
}

func NewCachedCompetitionCatalog(
	base core.CompetitionCatalog,
	cacheService repositorycache.CacheService,
) (*CachedCompetitionCatalog, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base competition catalog is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: competition cache service is required")
	}
	return &CachedCompetitionCatalog{base: base, cache: cacheService}, nil
}

func (c *CachedCompetitionCatalog) GetCompetition(ctx context.Context, id string) (core.Competition, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return core.Competition{}, fmt.Errorf("sqlstore: cached competition catalog is not configured")
	}
	normalized := normalizeCompetitionID(id)
	if normalized == "" {
		return core.Competition{}, fmt.Errorf("%w: empty id", core.ErrCompetitionNotFound)
	}
	return repositorycache.GetOrFetch(ctx, c.cache, CompetitionCacheKey(normalized), func(ctx context.Context) (core.Competition, error) {
		return c.base.GetCompetition(ctx, normalized)
	})
}
