package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// MarketplaceView holds the latest marketplace snapshot per address and
// patches it after the user's own actions instead of reloading everything.
//
// Listings the user cancelled or fulfilled stay hidden until a fetch no
// longer returns them, so an unconfirmed transaction does not make them
// reappear. A hidden listing comes back when its transaction aborts or is
// dropped, or once pendingTTL has passed.
type MarketplaceView struct {
	agg        *Aggregator
	cache      domain.SnapshotCache
	txs        TxStatusSource
	staleAfter time.Duration
	pendingTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	snaps   map[string]domain.MarketplaceData
	pending map[string]map[uint64]pendingTx
}

// TxStatusSource reports the chain status of a submitted transaction.
type TxStatusSource interface {
	TxStatus(ctx context.Context, txID string) (domain.TxStatus, error)
}

// DefaultPendingTTL bounds how long a cancelled or fulfilled listing stays
// hidden without the chain confirming it.
const DefaultPendingTTL = time.Hour

type pendingTx struct {
	txID  string
	since time.Time
}

// NewMarketplaceView creates a view. cache may be nil; staleAfter defaults
// to ten minutes.
func NewMarketplaceView(agg *Aggregator, cache domain.SnapshotCache, staleAfter time.Duration, logger *slog.Logger) *MarketplaceView {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketplaceView{
		agg:        agg,
		cache:      cache,
		staleAfter: staleAfter,
		pendingTTL: DefaultPendingTTL,
		logger:     logger,
		now:        time.Now,
		snaps:      make(map[string]domain.MarketplaceData),
		pending:    make(map[string]map[uint64]pendingTx),
	}
}

// WithTxStatus returns v after setting the source used to notice failed
// cancel and fulfil transactions. Without one, hidden listings only come
// back after the pending TTL.
func (v *MarketplaceView) WithTxStatus(src TxStatusSource) *MarketplaceView {
	v.txs = src
	return v
}

// WithPendingTTL returns v after setting the pending TTL. Non-positive
// values keep the default.
func (v *MarketplaceView) WithPendingTTL(ttl time.Duration) *MarketplaceView {
	if ttl > 0 {
		v.pendingTTL = ttl
	}
	return v
}

// Get returns a snapshot no older than the stale time, fetching if needed.
func (v *MarketplaceView) Get(ctx context.Context, address string) (domain.MarketplaceData, error) {
	v.mu.Lock()
	snap, ok := v.snaps[address]
	v.mu.Unlock()
	if ok && v.fresh(snap) {
		return snap, nil
	}

	if v.cache != nil {
		cached, err := v.cache.Get(ctx, address)
		if err == nil && v.fresh(cached) {
			v.store(ctx, cached, false)
			return cached, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			v.logger.WarnContext(ctx, "marketplace_view: snapshot cache read failed", slog.String("error", err.Error()))
		}
	}
	return v.Refresh(ctx, address)
}

// Refresh fetches a complete new snapshot.
func (v *MarketplaceView) Refresh(ctx context.Context, address string) (domain.MarketplaceData, error) {
	data, err := v.agg.FetchMarketplaceData(ctx, address)
	if err != nil {
		return data, err
	}
	v.expirePending(ctx, address)
	v.settlePending(address, ListingSet{Browse: data.Browse, MyListings: data.MyListings})
	data.Browse = v.withoutPending(address, data.Browse)
	data.MyListings = v.withoutPending(address, data.MyListings)
	v.store(ctx, data, true)
	return data, nil
}

// AfterCancel hides listing id, cancelled by txID, and re-reads the listing
// collections.
func (v *MarketplaceView) AfterCancel(ctx context.Context, address string, id uint64, txID string) (domain.MarketplaceData, error) {
	v.markPending(address, id, txID)
	return v.mergeListings(ctx, address, false)
}

// AfterFulfil hides listing id, fulfilled by txID, and re-reads the
// listings and the user's token balances.
func (v *MarketplaceView) AfterFulfil(ctx context.Context, address string, id uint64, txID string) (domain.MarketplaceData, error) {
	v.markPending(address, id, txID)
	return v.mergeListings(ctx, address, true)
}

// AfterList re-reads the listings and the user's token balances.
func (v *MarketplaceView) AfterList(ctx context.Context, address string) (domain.MarketplaceData, error) {
	return v.mergeListings(ctx, address, true)
}

// Invalidate drops any snapshot and hidden listings held for address.
func (v *MarketplaceView) Invalidate(ctx context.Context, address string) {
	v.mu.Lock()
	delete(v.snaps, address)
	delete(v.pending, address)
	v.mu.Unlock()
	if v.cache != nil {
		if err := v.cache.Invalidate(ctx, address); err != nil {
			v.logger.WarnContext(ctx, "marketplace_view: snapshot invalidate failed", slog.String("error", err.Error()))
		}
	}
}

func (v *MarketplaceView) mergeListings(ctx context.Context, address string, withApts bool) (domain.MarketplaceData, error) {
	v.mu.Lock()
	cur, ok := v.snaps[address]
	v.mu.Unlock()
	if !ok {
		return v.Refresh(ctx, address)
	}

	set, err := v.agg.FetchListings(ctx, address)
	if err != nil {
		return cur, fmt.Errorf("marketplace_view: %w", err)
	}
	if withApts {
		apts, err := v.agg.FetchApts(ctx, address)
		if err != nil {
			return cur, fmt.Errorf("marketplace_view: %w", err)
		}
		cur.MyApts = apts
	}

	v.expirePending(ctx, address)
	v.settlePending(address, set)
	cur.TipHeight = set.TipHeight
	cur.Browse = mergeByID(cur.Browse, v.withoutPending(address, set.Browse), set.TipHeight)
	cur.MyListings = mergeByID(cur.MyListings, v.withoutPending(address, set.MyListings), set.TipHeight)
	cur.FetchedAt = v.now().UTC()
	v.store(ctx, cur, true)
	return cur, nil
}

// mergeByID keeps the fresh collection, reusing enrichment from the
// current entry when a fresh one lacks it, and drops entries expired at tip.
func mergeByID(current, fresh []domain.Listing, tip uint64) []domain.Listing {
	prev := make(map[uint64]domain.Listing, len(current))
	for _, l := range current {
		prev[l.ID] = l
	}
	out := make([]domain.Listing, 0, len(fresh))
	for _, l := range fresh {
		if !l.ActiveAt(tip) {
			continue
		}
		if old, ok := prev[l.ID]; ok && l.Name == "" && l.Symbol == "" && old.AssetContract == l.AssetContract {
			l.Name, l.Symbol, l.ImageMetadata = old.Name, old.Symbol, old.ImageMetadata
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *MarketplaceView) markPending(address string, id uint64, txID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending[address] == nil {
		v.pending[address] = make(map[uint64]pendingTx)
	}
	v.pending[address][id] = pendingTx{txID: txID, since: v.now()}
}

// expirePending un-hides listings whose transaction failed on chain or
// that have been hidden longer than the pending TTL.
func (v *MarketplaceView) expirePending(ctx context.Context, address string) {
	v.mu.Lock()
	check := make(map[uint64]pendingTx, len(v.pending[address]))
	for id, p := range v.pending[address] {
		check[id] = p
	}
	v.mu.Unlock()
	if len(check) == 0 {
		return
	}

	now := v.now()
	var expired []uint64
	for id, p := range check {
		if now.Sub(p.since) >= v.pendingTTL {
			expired = append(expired, id)
			continue
		}
		if v.txs == nil || p.txID == "" {
			continue
		}
		status, err := v.txs.TxStatus(ctx, p.txID)
		if err != nil {
			v.logger.DebugContext(ctx, "marketplace_view: pending tx status unavailable",
				slog.String("tx_id", p.txID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if status.Failed() {
			v.logger.InfoContext(ctx, "marketplace_view: pending tx failed, showing listing again",
				slog.String("tx_id", p.txID),
				slog.Uint64("listing_id", id),
				slog.String("status", string(status)),
			)
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	ids := v.pending[address]
	for _, id := range expired {
		if p, ok := ids[id]; ok && p == check[id] {
			delete(ids, id)
		}
	}
}

// settlePending forgets hidden ids the chain no longer lists.
func (v *MarketplaceView) settlePending(address string, set ListingSet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := v.pending[address]
	if len(ids) == 0 {
		return
	}
	live := make(map[uint64]bool, len(set.Browse)+len(set.MyListings))
	for _, l := range set.Browse {
		live[l.ID] = true
	}
	for _, l := range set.MyListings {
		live[l.ID] = true
	}
	for id := range ids {
		if !live[id] {
			delete(ids, id)
		}
	}
}

func (v *MarketplaceView) withoutPending(address string, listings []domain.Listing) []domain.Listing {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := v.pending[address]
	if len(ids) == 0 {
		return listings
	}
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if _, hidden := ids[l.ID]; !hidden {
			out = append(out, l)
		}
	}
	return out
}

func (v *MarketplaceView) fresh(snap domain.MarketplaceData) bool {
	return v.now().Sub(snap.FetchedAt) < v.staleAfter
}

func (v *MarketplaceView) store(ctx context.Context, data domain.MarketplaceData, writeThrough bool) {
	v.mu.Lock()
	v.snaps[data.Address] = data
	v.mu.Unlock()
	if writeThrough && v.cache != nil {
		if err := v.cache.Set(ctx, data); err != nil {
			v.logger.WarnContext(ctx, "marketplace_view: snapshot cache write failed", slog.String("error", err.Error()))
		}
	}
}
