package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestMetadataCacheRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewMetadataCache(c, time.Minute)

	_, err := cache.Get(ctx, "ST1.token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	meta := domain.TokenMetadata{
		Contract: "ST1.token",
		Name:     "House",
		Symbol:   "HSE",
		TokenURI: "ipfs://bafy",
		ImageMetadata: map[string]any{
			"image": "https://ipfs.io/ipfs/img",
		},
	}
	require.NoError(t, cache.Set(ctx, meta))
	assert.True(t, mr.Exists("propertyx:meta:ST1.token"))

	got, err := cache.Get(ctx, "ST1.token")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "ST1.token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	cache := NewSnapshotCache(c, 10*time.Minute)

	snap := domain.EmptyMarketplaceData("ST1ADDR")
	snap.TipHeight = 42
	snap.Browse = []domain.Listing{{ID: 3, Maker: "ST2", Expiry: 100}}
	require.NoError(t, cache.Set(ctx, snap))

	got, err := cache.Get(ctx, "ST1ADDR")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.TipHeight)
	require.Len(t, got.Browse, 1)
	assert.Equal(t, uint64(3), got.Browse[0].ID)

	require.NoError(t, cache.Invalidate(ctx, "ST1ADDR"))
	_, err = cache.Get(ctx, "ST1ADDR")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionCacheHasNoExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewSessionCache(c)

	ud := domain.UserData{Address: "ST1ADDR", Network: "testnet", Provider: "key"}
	require.NoError(t, cache.Save(ctx, ud))
	assert.Equal(t, time.Duration(0), mr.TTL("propertyx:session:ST1ADDR"))

	got, err := cache.Load(ctx, "ST1ADDR")
	require.NoError(t, err)
	assert.Equal(t, ud, got)

	require.NoError(t, cache.Delete(ctx, "ST1ADDR"))
	_, err = cache.Load(ctx, "ST1ADDR")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManagerExclusive(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "nonce:ST1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "nonce:ST1", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockNotAcquired))

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "nonce:ST1", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockManagerReleaseKeepsForeignLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// The first holder's lease runs out and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	unlock2, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	defer unlock2()

	unlock()
	assert.True(t, mr.Exists("propertyx:lock:k"))
}

func TestRateLimiterAllow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "api:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "api:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(ctx, domain.ChannelTx)
	require.NoError(t, err)

	ev := domain.Event{Kind: domain.EventTxSubmitted, Address: "ST1", Data: map[string]any{"txId": "0xab"}}
	require.NoError(t, bus.PublishEvent(ctx, domain.ChannelTx, ev))

	select {
	case payload := <-ch:
		var got domain.Event
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, domain.EventTxSubmitted, got.Kind)
		assert.Equal(t, "0xab", got.Data["txId"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	bus := NewSignalBus(c)

	msgs, err := bus.StreamRead(ctx, domain.StreamAudit, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamAudit, []byte(`{"n":1}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamAudit, []byte(`{"n":2}`)))

	msgs, err = bus.StreamRead(ctx, domain.StreamAudit, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, domain.StreamAudit, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.JSONEq(t, `{"n":2}`, string(rest[0].Payload))
}

func TestAuditStreamNewestFirst(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	audit := NewAuditStream(NewSignalBus(c))
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	audit.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	require.NoError(t, audit.Log(ctx, "contract_call", map[string]any{"function": "stake-pxt"}))
	require.NoError(t, audit.Log(ctx, "contract_call", map[string]any{"function": "lock-asset"}))
	require.NoError(t, audit.Log(ctx, "snapshot_archive", nil))

	all, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "snapshot_archive", all[0].Event)
	assert.Equal(t, "lock-asset", all[1].Detail["function"])

	page, err := audit.List(ctx, domain.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "lock-asset", page[0].Detail["function"])

	since := base.Add(2 * time.Minute)
	recent, err := audit.List(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := audit.List(ctx, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}
