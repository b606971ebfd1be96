package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/frahmantamala/project-access/internal/revocation"
	goredis "github.com/go-redis/redis/v8"
)

// expiredKeyTTL is the floor for a key's lifetime.
const expiredKeyTTL = time.Minute

// RevocationStore keeps one key per revoked jti. Each key expires together
// with the token it denies, so the store prunes itself.
type RevocationStore struct {
	client     goredis.Cmdable
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

func NewRevocationStore(client goredis.Cmdable, prefix string, defaultTTL time.Duration) *RevocationStore {
	return &RevocationStore{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (s *RevocationStore) WithClock(now func() time.Time) *RevocationStore {
	s.now = now
	return s
}

func (s *RevocationStore) key(jti string) string {
	return s.prefix + jti
}

// Insert reports false when the jti was already present. A token that has
// already expired still gets a short-lived key, so IsRevoked holds right after
// Revoke.
func (s *RevocationStore) Insert(ctx context.Context, e revocation.Entry) (bool, error) {
	ttl := s.defaultTTL
	if !e.ExpiresAt.IsZero() {
		ttl = e.ExpiresAt.Sub(s.now())
		if ttl < expiredKeyTTL {
			ttl = expiredKeyTTL
		}
	}

	// SETNX keeps the first reason and TTL when the jti is revoked twice.
	set, err := s.client.SetNX(ctx, s.key(e.JTI), strconv.FormatInt(e.UserID, 10)+"|"+e.Reason, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx revoked jti: %w", err)
	}
	return set, nil
}

func (s *RevocationStore) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked jti: %w", err)
	}
	return n > 0, nil
}

func (s *RevocationStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
