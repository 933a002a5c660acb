package redis

import (
	"context"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache: the last assembled
// marketplace view per address, kept for the query stale time.
type SnapshotCache struct {
	store jsonStore[domain.MarketplaceData]
}

// NewSnapshotCache creates a SnapshotCache with the given TTL.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{store: jsonStore[domain.MarketplaceData]{
		rdb: c.Underlying(), ns: "snapshot", ttl: ttl, what: "marketplace snapshot",
	}}
}

func (sc *SnapshotCache) Set(ctx context.Context, data domain.MarketplaceData) error {
	return sc.store.set(ctx, data.Address, data)
}

func (sc *SnapshotCache) Get(ctx context.Context, address string) (domain.MarketplaceData, error) {
	return sc.store.get(ctx, address)
}

func (sc *SnapshotCache) Invalidate(ctx context.Context, address string) error {
	return sc.store.del(ctx, address)
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
