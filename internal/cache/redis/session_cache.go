package redis

import (
	"context"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// SessionCache implements domain.SessionCache. It is the server-side
// counterpart of a browser wallet's local session storage: written on
// connect, deleted on disconnect, never expired.
type SessionCache struct {
	store jsonStore[domain.UserData]
}

// NewSessionCache creates a SessionCache.
func NewSessionCache(c *Client) *SessionCache {
	return &SessionCache{store: jsonStore[domain.UserData]{
		rdb: c.Underlying(), ns: "session", what: "session",
	}}
}

func (sc *SessionCache) Save(ctx context.Context, data domain.UserData) error {
	return sc.store.set(ctx, data.Address, data)
}

func (sc *SessionCache) Load(ctx context.Context, address string) (domain.UserData, error) {
	return sc.store.get(ctx, address)
}

func (sc *SessionCache) Delete(ctx context.Context, address string) error {
	return sc.store.del(ctx, address)
}

var _ domain.SessionCache = (*SessionCache)(nil)
