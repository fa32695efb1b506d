package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// DefaultMarketTTL bounds how long a decoded market is served from cache.
const DefaultMarketTTL = 30 * time.Second

// setIfNewerLua stores ARGV[2] unless the cached entry carries a higher
// account version (ARGV[1]).
const setIfNewerLua = `
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
    return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

// MarketCache implements domain.MarketCache.
//
// Key schema:
//
//	market:{id} - hash with fields "version" and "data" (snapshot JSON)
type MarketCache struct {
	c      *Client
	ttl    time.Duration
	setNew *redis.Script
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache. A non-positive ttl uses
// DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{c: c, ttl: ttl, setNew: redis.NewScript(setIfNewerLua)}
}

func (mc *MarketCache) key(id string) string { return mc.c.Key("market", id) }

// Set caches snap unless a newer version is already cached.
func (mc *MarketCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", snap.Market.MarketID, err)
	}
	err = mc.setNew.Run(ctx, mc.c.rdb, []string{mc.key(snap.Market.MarketID)},
		snap.Version, data, mc.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set market %s: %w", snap.Market.MarketID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a miss.
func (mc *MarketCache) Get(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	data, err := mc.c.rdb.HGet(ctx, mc.key(marketID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get market %s: %w", marketID, err)
	}
	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal market %s: %w", marketID, err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot of marketID.
func (mc *MarketCache) Invalidate(ctx context.Context, marketID string) error {
	if err := mc.c.rdb.Del(ctx, mc.key(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", marketID, err)
	}
	return nil
}
