package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any Redis transport failure. Callers must treat it
// as "state unknown", never as "not blacklisted".
var ErrUnavailable = errors.New("blacklist unavailable")

const (
	// minTTL keeps entries alive at least this long even when the token
	// is already past its expiry at revocation time.
	minTTL = time.Second

	sentinel = "1"
)

// Store is the Redis deny list for revoked access token IDs.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store writing under the given key prefix.
// An empty prefix defaults to "blacklist".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "blacklist"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(jti string) string {
	return s.prefix + ":" + jti
}

// Add blacklists jti until expiresAt, measured from now. Entries whose
// remaining lifetime is shorter than minTTL still live for minTTL.
// Adding an already-present jti refreshes its TTL, which is harmless.
func (s *Store) Add(ctx context.Context, now time.Time, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(now)
	if ttl < minTTL {
		ttl = minTTL
	}

	if err := s.redis.Set(ctx, s.key(jti), sentinel, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Contains reports whether jti is currently blacklisted. A transport
// failure returns ErrUnavailable; the boolean is meaningless in that case.
func (s *Store) Contains(ctx context.Context, jti string) (bool, error) {
	err := s.redis.Get(ctx, s.key(jti)).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
}
