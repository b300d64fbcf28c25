package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store maps client-supplied idempotency keys to reservation ids in Redis so
// a naive retrying client gets its original reservation back instead of a
// duplicate hold. Entries expire with the key TTL; the store is advisory, not
// the source of truth.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: "resv:idem:", ttl: ttl}
}

// Claim registers reservationID under key. When another call already holds
// the key, claimed is false and existing carries the prior reservation id.
func (s *Store) Claim(ctx context.Context, key, reservationID string) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, reservationID, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return reservationID, true, nil
	}
	existing, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

// Release drops the claim after a failed create so a retry is not pinned to a
// reservation that never existed.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
