package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/donut/internal/metrics"
)

const (
	roundLockTTL = 10 * time.Minute
	nonceTTL     = 3 * time.Minute
)

// RedisStore handles Redis operations: the round creation lock, operator
// nonce tracking and rate limit counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client for middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roundLockKey returns the key guarding round creation for a date.
func roundLockKey(roundDate time.Time) string {
	return fmt.Sprintf("round:lock:%s", roundDate.UTC().Format("2006-01-02"))
}

// nonceKey returns the key for nonce tracking.
func nonceKey(keyID, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", keyID, nonce)
}

// AcquireRoundLock claims round creation for roundDate. It returns false
// when another invocation already holds the lock.
func (s *RedisStore) AcquireRoundLock(ctx context.Context, roundDate time.Time, owner string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	ok, err := s.client.SetNX(ctx, roundLockKey(roundDate), owner, roundLockTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// releaseScript deletes the lock only if it still belongs to owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseRoundLock frees the lock taken by owner.
func (s *RedisStore) ReleaseRoundLock(ctx context.Context, roundDate time.Time, owner string) error {
	err := releaseScript.Run(ctx, s.client, []string{roundLockKey(roundDate)}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// ClaimNonce marks a nonce used and reports whether it was fresh. A
// replayed nonce returns false until its TTL expires.
func (s *RedisStore) ClaimNonce(ctx context.Context, keyID, nonce string) (bool, error) {
	return s.client.SetNX(ctx, nonceKey(keyID, nonce), "1", nonceTTL).Result()
}
