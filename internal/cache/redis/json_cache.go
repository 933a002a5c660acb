package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// jsonStore keeps JSON-encoded values under a key namespace with a TTL.
// A zero TTL stores without expiry.
type jsonStore[T any] struct {
	rdb  *redis.Client
	ns   string
	ttl  time.Duration
	what string
}

func (s jsonStore[T]) key(id string) string {
	return keyPrefix + s.ns + ":" + id
}

func (s jsonStore[T]) set(ctx context.Context, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s %s: %w", s.what, id, err)
	}
	if err := s.rdb.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s %s: %w", s.what, id, err)
	}
	return nil
}

func (s jsonStore[T]) get(ctx context.Context, id string) (T, error) {
	var v T
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return v, domain.ErrNotFound
		}
		return v, fmt.Errorf("redis: get %s %s: %w", s.what, id, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("redis: unmarshal %s %s: %w", s.what, id, err)
	}
	return v, nil
}

func (s jsonStore[T]) del(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s %s: %w", s.what, id, err)
	}
	return nil
}
