package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned when the presented refresh-token hash is not
// tracked for the subject: never issued, already rotated, or removed.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrTokenExpiredEntry is returned when the tracked entry exists but is
// older than the registry TTL. The entry is pruned as a side effect.
var ErrTokenExpiredEntry = errors.New("refresh token entry expired")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRotated  int64 = 2
)

// The rotate script is the linearization point for concurrent refresh
// calls presenting the same token: exactly one caller observes the old
// hash and swaps it, every other caller gets not-found.
const rotateScript = `
local key = KEYS[1]
local old_hash = ARGV[1]
local new_hash = ARGV[2]
local now_unix = tonumber(ARGV[3])
local ttl_sec = tonumber(ARGV[4])

local created = redis.call("HGET", key, old_hash)
if not created then
  return 0
end

if now_unix - tonumber(created) >= ttl_sec then
  redis.call("HDEL", key, old_hash)
  return 1
end

redis.call("HDEL", key, old_hash)
redis.call("HSET", key, new_hash, now_unix)
redis.call("EXPIRE", key, ttl_sec)
return 2
`

var rotateLua = redis.NewScript(rotateScript)

// Registry tracks the set of live refresh tokens per subject in a Redis
// hash keyed by subject ID. Fields are SHA-256 hex digests of the refresh
// token string; values are the issuance time in unix seconds. The raw
// token never reaches Redis.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRegistry creates a registry using the given key prefix and entry TTL.
// The TTL should equal the refresh-token lifetime so registry entries and
// token expiry stay aligned.
func NewRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *Registry {
	return &Registry{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Registry) key(subjectID string) string {
	return r.prefix + ":" + subjectID
}

// Add records a freshly issued refresh-token hash for the subject and
// refreshes the registry key TTL.
func (r *Registry) Add(ctx context.Context, subjectID, tokenHash string, now time.Time) error {
	key := r.key(subjectID)

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, tokenHash, now.Unix())
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Rotate atomically replaces oldHash with newHash for the subject. When
// oldHash is absent it returns [ErrTokenNotFound]; when the tracked entry
// predates the TTL it prunes the entry and returns [ErrTokenExpiredEntry].
// Under concurrent calls presenting the same oldHash, exactly one succeeds.
func (r *Registry) Rotate(ctx context.Context, subjectID, oldHash, newHash string, now time.Time) error {
	result, err := rotateLua.Run(
		ctx,
		r.redis,
		[]string{r.key(subjectID)},
		oldHash,
		newHash,
		now.Unix(),
		int64(r.ttl.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, ok := result.(int64)
	if !ok {
		return fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return ErrTokenNotFound
	case rotateStatusExpired:
		return ErrTokenExpiredEntry
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Remove drops a single tracked hash. Removing a hash that is not tracked
// is not an error; logout is idempotent.
func (r *Registry) Remove(ctx context.Context, subjectID, tokenHash string) error {
	if err := r.redis.HDel(ctx, r.key(subjectID), tokenHash).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RemoveAll drops every tracked hash for the subject.
func (r *Registry) RemoveAll(ctx context.Context, subjectID string) error {
	if err := r.redis.Del(ctx, r.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Contains reports whether the hash is tracked for the subject and still
// within the TTL at the given instant.
func (r *Registry) Contains(ctx context.Context, subjectID, tokenHash string, now time.Time) (bool, error) {
	created, err := r.redis.HGet(ctx, r.key(subjectID), tokenHash).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if now.Sub(time.Unix(created, 0)) >= r.ttl {
		return false, nil
	}
	return true, nil
}

// ActiveCount returns the number of tracked refresh tokens for the subject.
func (r *Registry) ActiveCount(ctx context.Context, subjectID string) (int, error) {
	n, err := r.redis.HLen(ctx, r.key(subjectID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
