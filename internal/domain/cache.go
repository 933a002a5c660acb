package domain

import (
	"context"
	"time"
)

// MetadataCache holds token metadata across aggregation calls.
type MetadataCache interface {
	Set(ctx context.Context, meta TokenMetadata) error
	Get(ctx context.Context, contract string) (TokenMetadata, error)
	Invalidate(ctx context.Context, contract string) error
}

// SnapshotCache holds the last assembled marketplace view per address.
type SnapshotCache interface {
	Set(ctx context.Context, data MarketplaceData) error
	Get(ctx context.Context, address string) (MarketplaceData, error)
	Invalidate(ctx context.Context, address string) error
}

// SessionCache persists the wallet's local session data.
type SessionCache interface {
	Save(ctx context.Context, data UserData) error
	Load(ctx context.Context, address string) (UserData, error)
	Delete(ctx context.Context, address string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
