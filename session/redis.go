package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "vs"
	maxUpdateRetries   = 16
	scanBatch          = 128
)

// RedisStore is a [Store] backed by Redis, suitable for multi-process
// deployments.
//
// Keys:
//
//	<prefix>:<sessionID>   binary session (see Encode), TTL = idle timeout
//	<prefix>u:<userID>     set of session ids for the user
//
// Every Update refreshes the key TTL, so Redis expiry mirrors the idle sweep.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a [RedisStore]. An empty prefix selects "vs". A zero
// ttl stores sessions without expiry and leaves cleanup to the sweep.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.decode(sessionID, data)
}

// Put implements [Store].
//
//	Performance: 1 MULTI/EXEC with SET + SADD.
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Update implements [Store] with optimistic locking. The session key is
// WATCHed; if another client writes it before EXEC the transaction is retried
// with the fresh value.
func (s *RedisStore) Update(ctx context.Context, sessionID string, fn func(*Session) error) (*Session, error) {
	key := s.key(sessionID)
	var updated *Session
	var entered bool

	txf := func(tx *redis.Tx) error {
		entered = true
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		sess, err := s.decode(sessionID, data)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		next, err := Encode(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		updated = sess
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		entered = false
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case !entered:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: update contention on %s", ErrStoreUnavailable, sessionID)
}

// Delete implements [Store]. Deleting an absent session reports false and no
// error.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	var del *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return del.Val() > 0, nil
}

// DeleteIf implements [Store]. The key is WATCHed while pred runs, so a
// concurrent write aborts the delete and the check is repeated on the fresh
// value.
func (s *RedisStore) DeleteIf(ctx context.Context, sessionID string, pred func(*Session) bool) (bool, error) {
	key := s.key(sessionID)
	var deleted, entered bool

	txf := func(tx *redis.Tx) error {
		entered = true
		deleted = false
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		sess, err := s.decode(sessionID, data)
		if err != nil {
			return err
		}
		if !pred(sess) {
			return nil
		}
		var del *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, key)
			pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		deleted = del.Val() > 0
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		entered = false
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return deleted, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case !entered:
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			return false, err
		}
	}
	return false, fmt.Errorf("%w: delete contention on %s", ErrStoreUnavailable, sessionID)
}

// Range implements [Store] using SCAN. Sessions created during the scan may
// or may not be visited.
func (s *RedisStore) Range(ctx context.Context, fn func(*Session) bool) error {
	var cursor uint64
	match := s.prefix + ":*"
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		if len(keys) > 0 {
			values, err := s.redis.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				sess, err := s.decode(strings.TrimPrefix(keys[i], s.prefix+":"), []byte(raw))
				if err != nil {
					continue
				}
				if !fn(sess) {
					return nil
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// SessionIDsForUser implements [UserIndex]. The set may still name sessions
// that Redis already expired; callers prune them with Unindex.
func (s *RedisStore) SessionIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// Unindex implements [UserIndex].
func (s *RedisStore) Unindex(ctx context.Context, userID string, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(sessionIDs))
	for i, id := range sessionIDs {
		members[i] = id
	}
	if err := s.redis.SRem(ctx, s.userKey(userID), members...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) decode(sessionID string, data []byte) (*Session, error) {
	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, sessionID, err)
	}
	sess.SessionID = sessionID
	return sess, nil
}
