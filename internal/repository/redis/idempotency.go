package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemNS = ns + ":idem"

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

// KeyIdemOrder scopes an Idempotency-Key header to the user that sent it.
func KeyIdemOrder(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:orders:%d:%s", idemNS, userID, idemKey)
}

// IdempotencyStore remembers the response of a request by key. A key is
// either locked while the first request runs or holds its saved response.
type IdempotencyStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewIdempotencyStore(rdb redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims key for the current request. false means another
// request holds it or has already finished.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

// SaveResult replaces the lock with the response body for the retention TTL.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, payload []byte) error {
	return s.rdb.Set(ctx, key, idemResPrefix+string(payload), s.ttl).Err()
}

// GetResult returns a saved response. A key that is only locked is a miss.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if payload, ok := strings.CutPrefix(v, idemResPrefix); ok {
		return []byte(payload), true, nil
	}

	return nil, false, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Release drops the lock after a failed request so the client can retry
// with the same key. A saved response is never removed.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return releaseLockScript.Run(ctx, s.rdb, []string{key}, idemLock).Err()
}
