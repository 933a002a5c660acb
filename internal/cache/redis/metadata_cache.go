package redis

import (
	"context"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// MetadataCache implements domain.MetadataCache. Entries live under
// propertyx:meta:{contract} and expire after the configured TTL, so a
// token's name, symbol, and image are fetched from the chain at most once
// per TTL across all aggregations.
type MetadataCache struct {
	store jsonStore[domain.TokenMetadata]
}

// NewMetadataCache creates a MetadataCache with the given TTL.
func NewMetadataCache(c *Client, ttl time.Duration) *MetadataCache {
	return &MetadataCache{store: jsonStore[domain.TokenMetadata]{
		rdb: c.Underlying(), ns: "meta", ttl: ttl, what: "token metadata",
	}}
}

// Set stores meta under meta.Contract.
func (mc *MetadataCache) Set(ctx context.Context, meta domain.TokenMetadata) error {
	return mc.store.set(ctx, meta.Contract, meta)
}

// Get returns domain.ErrNotFound on a miss.
func (mc *MetadataCache) Get(ctx context.Context, contract string) (domain.TokenMetadata, error) {
	return mc.store.get(ctx, contract)
}

func (mc *MetadataCache) Invalidate(ctx context.Context, contract string) error {
	return mc.store.del(ctx, contract)
}

var _ domain.MetadataCache = (*MetadataCache)(nil)
