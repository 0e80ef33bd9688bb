package cache

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/internal/domain"
)

const keyPrefix = "relation:"

// maxRelativeExpiration is the largest exptime memcached treats as seconds
// from now. Larger values are read as absolute unix timestamps.
const maxRelativeExpiration = 30 * 24 * time.Hour

// MemcachedCache shares cached relations between service instances.
type MemcachedCache struct {
	mc     *memcache.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewMemcachedCache(mc *memcache.Client, ttl time.Duration, logger *zap.Logger) *MemcachedCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemcachedCache{mc: mc, ttl: ttl, logger: logger}
}

func (r *MemcachedCache) Get(ctx context.Context, id string) (domain.Relation, bool) {
	item, err := r.mc.Get(keyPrefix + id)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			r.logger.Warn("memcached get failed", zap.String("relation_id", id), zap.Error(err))
		}
		return domain.Relation{}, false
	}

	var wire relations.Relation
	if err := json.Unmarshal(item.Value, &wire); err != nil {
		r.logger.Warn("corrupt cached relation", zap.String("relation_id", id), zap.Error(err))
		return domain.Relation{}, false
	}
	return domain.RelationFromWire(wire), true
}

func (r *MemcachedCache) Set(ctx context.Context, rel domain.Relation) {
	value, err := json.Marshal(rel.ToWire())
	if err != nil {
		return
	}
	err = r.mc.Set(&memcache.Item{
		Key:        keyPrefix + rel.ID,
		Value:      value,
		Expiration: expiration(r.ttl, time.Now()),
	})
	if err != nil {
		r.logger.Warn("memcached set failed", zap.String("relation_id", rel.ID), zap.Error(err))
	}
}

// expiration converts ttl to a memcached exptime. Zero means no expiry. TTLs
// beyond 30 days are sent as an absolute unix timestamp.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl < time.Second {
		return 1
	}
	if ttl <= maxRelativeExpiration {
		return int32(ttl / time.Second)
	}
	deadline := now.Add(ttl).Unix()
	if deadline > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(deadline)
}
