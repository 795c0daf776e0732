package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KingHarry001/portfolio/internal/domain"
)

const (
	keyPrefix = "review:stats:"
	genPrefix = "review:stats-gen:"
)

// setIfGeneration stores the stats entry only while the item's generation
// still equals the one the caller read before computing it. A missing
// generation key counts as 0.
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if not current then current = "0" end
if current ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// StatsCache memoizes per-item rating stats in Redis.
//
// Every item has a generation counter next to its entry. Invalidate bumps the
// counter, and Set only writes when the counter is unchanged since the Get
// that preceded the computation, so a reader racing a mutation can never put
// back an aggregate older than the mutation.
type StatsCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewStatsCache creates a Redis-backed stats cache whose entries expire after ttl.
func NewStatsCache(client redis.Cmdable, ttl time.Duration) *StatsCache {
	return &StatsCache{
		client: client,
		ttl:    ttl,
	}
}

func statsKey(itemID string) string {
	return keyPrefix + itemID
}

func generationKey(itemID string) string {
	return genPrefix + itemID
}

// Get returns the cached stats for an item together with the item's current
// generation. ok is false on a miss; the generation is valid either way.
func (c *StatsCache) Get(ctx context.Context, itemID string) (domain.RatingStats, int64, bool, error) {
	vals, err := c.client.MGet(ctx, statsKey(itemID), generationKey(itemID)).Result()
	if err != nil {
		return domain.RatingStats{}, 0, false, fmt.Errorf("redis get stats: %w", err)
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		gen, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.RatingStats{}, 0, false, fmt.Errorf("parse stats generation: %w", err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return domain.RatingStats{}, gen, false, nil
	}

	var stats domain.RatingStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return domain.RatingStats{}, gen, false, fmt.Errorf("unmarshal stats: %w", err)
	}
	return stats, gen, true, nil
}

// Set stores stats for an item with the configured TTL, provided the item's
// generation still equals generation. It reports whether the entry was
// written.
func (c *StatsCache) Set(ctx context.Context, stats domain.RatingStats, generation int64) (bool, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("marshal stats: %w", err)
	}

	keys := []string{statsKey(stats.ItemID), generationKey(stats.ItemID)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set stats: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the cached stats for an item and advances its generation,
// which voids any Set still carrying an older one.
func (c *StatsCache) Invalidate(ctx context.Context, itemID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(itemID))
		pipe.Del(ctx, statsKey(itemID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate stats: %w", err)
	}
	return nil
}
