package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis store failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Entry is one issued token.
type Entry struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// Store persists issued tokens.
type Store interface {
	Put(ctx context.Context, e Entry, ttl time.Duration) error
	Get(ctx context.Context, token string) (Entry, bool, error)
	Delete(ctx context.Context, token string) error
	// Sweep removes entries that expired before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore keeps tokens in a ttlcache. Entries carry their own expiry so
// that validation follows the Guard's clock rather than the cache's.
type MemoryStore struct {
	cache *ttlcache.Cache[string, Entry]
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, Entry](),
		),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, e Entry, ttl time.Duration) error {
	m.cache.Set(e.Token, e, ttl)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, token string) (Entry, bool, error) {
	item := m.cache.Get(token)
	if item == nil {
		return Entry{}, false, nil
	}
	return item.Value(), true, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.cache.Delete(token)
	return nil
}

// Sweep implements Store. Items() returns a copy, so deletion happens
// outside the cache lock.
func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for token, item := range m.cache.Items() {
		if now.After(item.Value().ExpiresAt) {
			m.cache.Delete(token)
			removed++
		}
	}
	m.cache.DeleteExpired()
	return removed, nil
}

// Len returns the number of cached tokens.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// RedisStore keeps tokens as "<prefix><token>" → session id with a PX
// expiry, sharing them across processes.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix selects "vcsrf:".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "vcsrf:"
	}
	return &RedisStore{redis: rdb, prefix: prefix}
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, e Entry, ttl time.Duration) error {
	if err := r.redis.Set(ctx, r.prefix+e.Token, e.SessionID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get implements Store. ExpiresAt is reconstructed from the key TTL.
func (r *RedisStore) Get(ctx context.Context, token string) (Entry, bool, error) {
	key := r.prefix + token
	pipe := r.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sid, err := getCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return Entry{}, false, nil
	}
	return Entry{Token: token, SessionID: sid, ExpiresAt: time.Now().Add(ttl)}, true, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.redis.Del(ctx, r.prefix+token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Sweep implements Store. Redis expires tokens itself.
func (r *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
