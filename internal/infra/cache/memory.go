package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/arxiv/relations/internal/domain"
)

// MemoryCache keeps relations in process. Relations never change once
// written, so entries only expire to bound memory.
type MemoryCache struct {
	cache *cache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: cache.New(ttl, ttl+ttl/2),
	}
}

func (r *MemoryCache) Get(ctx context.Context, id string) (domain.Relation, bool) {
	if cached, found := r.cache.Get(id); found {
		rel, ok := cached.(domain.Relation)
		return rel, ok
	}
	return domain.Relation{}, false
}

func (r *MemoryCache) Set(ctx context.Context, rel domain.Relation) {
	r.cache.Set(rel.ID, rel, cache.DefaultExpiration)
}

func (r *MemoryCache) ItemCount() int {
	return r.cache.ItemCount()
}
