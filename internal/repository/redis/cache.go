package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache holds read-side copies of flights and search results. Entries are
// advisory: booking never consults them.
type Cache struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

func New(client redis.UniversalClient) *Cache {
	return &Cache{rdb: client}
}

// lookup reports a hit only for a value that decodes into out. Broken entries
// are treated as misses and overwritten by the next load.
func (c *Cache) lookup(ctx context.Context, key string, out any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return json.Unmarshal(b, out) == nil, nil
}

func (c *Cache) store(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// GetOrSetJSON returns the cached value at key or loads, stores and returns
// it. Concurrent misses on one key share a single loader call. If Redis
// cannot be read the loader result is returned uncached; only loader errors
// reach the caller.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	hit, err := c.lookup(ctx, key, &cached)
	if err != nil {
		return loader(ctx)
	}
	if hit {
		return cached, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		var again T
		if ok, _ := c.lookup(ctx, key, &again); ok {
			return again, nil
		}

		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.store(ctx, key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("redisrepo.GetOrSetJSON: %s holds %T", key, v)
	}

	return out, nil
}

// SearchGeneration returns the current search cache generation, zero when unset.
func (c *Cache) SearchGeneration(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, KeySearchGeneration()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// InvalidateFlight drops the cached flight and retires all cached searches,
// since any of them may list it with stale seat counts.
func (c *Cache) InvalidateFlight(ctx context.Context, flightID int64) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, KeyFlight(flightID))
	pipe.Incr(ctx, KeySearchGeneration())
	_, err := pipe.Exec(ctx)
	return err
}
