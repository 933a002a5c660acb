package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// Aggregation failure notice shown to the user.
const (
	dataLoadingErrorTitle   = "Data Loading Error"
	dataLoadingErrorMessage = "Failed to load marketplace data. Please try again later."
)

const listingsMap = "listings-ft"

// Chain is the read surface of the Stacks client used by the services.
type Chain interface {
	ChainTip(ctx context.Context) (uint64, error)
	CallReadOnly(ctx context.Context, contractAddress, contractName, function, sender string, args []clarity.Value) (clarity.Value, error)
	MapEntry(ctx context.Context, contractAddress, contractName, mapName string, key clarity.Value) (clarity.Value, error)
	FTBalances(ctx context.Context, address string) ([]domain.TokenBalance, error)
}

// MetadataFetcher loads a token-URI JSON document.
type MetadataFetcher interface {
	FetchJSON(ctx context.Context, uri string) (map[string]any, error)
}

// DocumentSource serves metadata documents this service uploaded itself,
// keyed by CID.
type DocumentSource interface {
	Get(ctx context.Context, cid string) ([]byte, error)
}

// AggregationObserver records aggregation outcomes.
type AggregationObserver interface {
	ObserveAggregation(outcome string, elapsed time.Duration, listings int)
}

// AggregatorConfig holds the Aggregator's collaborators. Documents,
// Metadata, Events, and Observer are optional.
type AggregatorConfig struct {
	Chain       Chain
	IPFS        MetadataFetcher
	Documents   DocumentSource
	Metadata    domain.MetadataCache
	Events      domain.EventPublisher
	Observer    AggregationObserver
	Marketplace domain.ContractRef
	// MaxConcurrentReads bounds in-flight node reads per call.
	MaxConcurrentReads int
	// MaxListings rejects a listing nonce above it.
	MaxListings uint64
	Logger      *slog.Logger
}

// Aggregator issues the read-only queries behind the marketplace views and
// assembles browse, my-listings, and my-apts.
type Aggregator struct {
	chain       Chain
	ipfs        MetadataFetcher
	docs        DocumentSource
	meta        domain.MetadataCache
	events      domain.EventPublisher
	observer    AggregationObserver
	marketplace domain.ContractRef
	maxReads    int
	maxListings uint64
	logger      *slog.Logger
	now         func() time.Time
}

// DefaultMaxListings is the listing nonce cap used when none is configured.
const DefaultMaxListings = 10000

// NewAggregator creates an Aggregator. MaxConcurrentReads defaults to 8 and
// MaxListings to DefaultMaxListings.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	maxReads := cfg.MaxConcurrentReads
	if maxReads <= 0 {
		maxReads = 8
	}
	maxListings := cfg.MaxListings
	if maxListings == 0 {
		maxListings = DefaultMaxListings
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		chain:       cfg.Chain,
		ipfs:        cfg.IPFS,
		docs:        cfg.Documents,
		meta:        cfg.Metadata,
		events:      cfg.Events,
		observer:    cfg.Observer,
		marketplace: cfg.Marketplace,
		maxReads:    maxReads,
		maxListings: maxListings,
		logger:      logger,
		now:         time.Now,
	}
}

// ListingScan is one pass over the listings map.
type ListingScan struct {
	TipHeight uint64
	// Present holds every entry found, expired or not, ordered by id.
	Present []domain.Listing
	// Missing holds indexes below the nonce with no entry.
	Missing []uint64
}

// Active returns the entries still open at the scan's tip.
func (s ListingScan) Active() []domain.Listing {
	out := make([]domain.Listing, 0, len(s.Present))
	for _, l := range s.Present {
		if l.ActiveAt(s.TipHeight) {
			out = append(out, l)
		}
	}
	return out
}

// ListingSet is the active listings partitioned for a viewer.
type ListingSet struct {
	TipHeight  uint64
	Browse     []domain.Listing
	MyListings []domain.Listing
}

// FetchMarketplaceData assembles the marketplace view for address. On any
// failure reading the tip, the nonce, the listings, or the balances it
// returns three empty collections, raises a "Data Loading Error"
// notification, and returns the error.
func (a *Aggregator) FetchMarketplaceData(ctx context.Context, address string) (domain.MarketplaceData, error) {
	start := a.now()
	memo := newMetaMemo()

	var (
		listings ListingSet
		apts     []domain.AssetToken
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		listings, err = a.fetchListings(gctx, address, memo)
		return err
	})
	g.Go(func() error {
		var err error
		apts, err = a.fetchApts(gctx, address, memo)
		return err
	})
	if err := g.Wait(); err != nil {
		a.fail(ctx, address, err, start)
		return domain.EmptyMarketplaceData(address), fmt.Errorf("aggregator: %s: %w", address, err)
	}

	data := domain.MarketplaceData{
		Address:    address,
		TipHeight:  listings.TipHeight,
		Browse:     listings.Browse,
		MyListings: listings.MyListings,
		MyApts:     apts,
		FetchedAt:  a.now().UTC(),
	}
	a.observe("ok", start, len(data.Browse)+len(data.MyListings))
	a.logger.InfoContext(ctx, "aggregator: marketplace assembled",
		slog.String("address", address),
		slog.Uint64("tip", data.TipHeight),
		slog.Int("browse", len(data.Browse)),
		slog.Int("my_listings", len(data.MyListings)),
		slog.Int("my_apts", len(data.MyApts)),
	)
	a.publish(ctx, domain.Event{
		Kind:    domain.EventMarketplaceUpdated,
		Address: address,
		Data: map[string]any{
			"tipHeight":  data.TipHeight,
			"browse":     len(data.Browse),
			"myListings": len(data.MyListings),
			"myApts":     len(data.MyApts),
		},
	})
	return data, nil
}

// FetchListings re-reads only the listing collections for address.
func (a *Aggregator) FetchListings(ctx context.Context, address string) (ListingSet, error) {
	set, err := a.fetchListings(ctx, address, newMetaMemo())
	if err != nil {
		return ListingSet{}, fmt.Errorf("aggregator: listings for %s: %w", address, err)
	}
	return set, nil
}

// FetchApts re-reads only the owned-token collection for address.
func (a *Aggregator) FetchApts(ctx context.Context, address string) ([]domain.AssetToken, error) {
	apts, err := a.fetchApts(ctx, address, newMetaMemo())
	if err != nil {
		return nil, fmt.Errorf("aggregator: apts for %s: %w", address, err)
	}
	return apts, nil
}

func (a *Aggregator) fetchListings(ctx context.Context, address string, memo *metaMemo) (ListingSet, error) {
	scan, err := a.ScanListings(ctx, address)
	if err != nil {
		return ListingSet{}, err
	}

	active := scan.Active()
	a.enrichListings(ctx, active, address, memo)

	set := ListingSet{
		TipHeight:  scan.TipHeight,
		Browse:     []domain.Listing{},
		MyListings: []domain.Listing{},
	}
	for _, l := range active {
		l.IsUserListing = address != "" && l.Maker == address
		if l.IsUserListing {
			set.MyListings = append(set.MyListings, l)
		} else {
			set.Browse = append(set.Browse, l)
		}
	}
	return set, nil
}

// ScanListings reads the chain tip, the listing nonce, and then every
// listings-ft entry below the nonce with bounded concurrency. sender may be
// empty.
func (a *Aggregator) ScanListings(ctx context.Context, sender string) (ListingScan, error) {
	if sender == "" {
		sender = a.marketplace.Address
	}

	tip, err := a.chain.ChainTip(ctx)
	if err != nil {
		return ListingScan{}, fmt.Errorf("chain tip: %w", err)
	}

	v, err := a.chain.CallReadOnly(ctx, a.marketplace.Address, a.marketplace.Name, "get-listing-ft-nonce", sender, nil)
	if err != nil {
		return ListingScan{}, fmt.Errorf("listing nonce: %w", err)
	}
	nonce, err := clarity.AsUint64(v)
	if err != nil {
		return ListingScan{}, fmt.Errorf("listing nonce: %w", err)
	}
	if nonce > a.maxListings {
		return ListingScan{}, fmt.Errorf("listing nonce %d exceeds limit %d: %w", nonce, a.maxListings, domain.ErrUnexpectedResponse)
	}

	slots := make([]*domain.Listing, nonce)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxReads)
	for i := range nonce {
		g.Go(func() error {
			entry, err := a.chain.MapEntry(gctx, a.marketplace.Address, a.marketplace.Name, listingsMap, clarity.NewUint(i))
			if err != nil {
				return fmt.Errorf("listing %d: %w", i, err)
			}
			inner, ok := clarity.UnwrapOptional(entry)
			if !ok {
				return nil
			}
			l, err := decodeListing(i, inner)
			if err != nil {
				return fmt.Errorf("listing %d: %w", i, err)
			}
			slots[i] = &l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ListingScan{}, err
	}

	scan := ListingScan{TipHeight: tip, Present: []domain.Listing{}}
	for i, l := range slots {
		if l == nil {
			scan.Missing = append(scan.Missing, uint64(i))
			continue
		}
		scan.Present = append(scan.Present, *l)
	}
	return scan, nil
}

// decodeListing maps a listings-ft tuple onto a Listing.
func decodeListing(id uint64, v clarity.Value) (domain.Listing, error) {
	t, err := clarity.AsTuple(v)
	if err != nil {
		return domain.Listing{}, err
	}
	l := domain.Listing{ID: id}
	if l.Maker, err = t.PrincipalField("maker"); err != nil {
		return l, err
	}
	if l.Taker, err = t.OptionalPrincipalField("taker"); err != nil {
		return l, err
	}
	if l.AssetContract, err = t.PrincipalField("ft-asset-contract"); err != nil {
		return l, err
	}
	if l.Amount, err = t.UintField("amt"); err != nil {
		return l, err
	}
	if l.Price, err = t.UintField("price"); err != nil {
		return l, err
	}
	if l.Expiry, err = t.UintField("expiry"); err != nil {
		return l, err
	}
	if l.PaymentAssetContract, err = t.OptionalPrincipalField("payment-asset-contract"); err != nil {
		return l, err
	}
	return l, nil
}

func (a *Aggregator) enrichListings(ctx context.Context, listings []domain.Listing, sender string, memo *metaMemo) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxReads)
	for i := range listings {
		g.Go(func() error {
			meta := memo.get(listings[i].AssetContract, func() domain.TokenMetadata {
				return a.tokenMetadata(gctx, listings[i].AssetContract, sender)
			})
			listings[i].Name = meta.Name
			listings[i].Symbol = meta.Symbol
			listings[i].ImageMetadata = meta.ImageMetadata
			return nil
		})
	}
	_ = g.Wait()
}

// fetchApts reads the address's token balances and keeps the tokens the
// marketplace whitelists, with metadata and staking position.
func (a *Aggregator) fetchApts(ctx context.Context, address string, memo *metaMemo) ([]domain.AssetToken, error) {
	apts := []domain.AssetToken{}
	if address == "" {
		return apts, nil
	}

	balances, err := a.chain.FTBalances(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("ft balances: %w", err)
	}

	slots := make([]*domain.AssetToken, len(balances))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxReads)
	for i, bal := range balances {
		g.Go(func() error {
			ref, err := domain.ParseContractRef(bal.ContractID)
			if err != nil {
				a.logger.WarnContext(gctx, "aggregator: skipping balance row",
					slog.String("token", bal.ContractID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if !a.isWhitelisted(gctx, ref, address) {
				return nil
			}

			meta := memo.get(ref.ID(), func() domain.TokenMetadata {
				return a.tokenMetadata(gctx, ref.ID(), address)
			})
			apt := domain.AssetToken{
				ContractAddress: ref.Address,
				ContractName:    ref.Name,
				AssetName:       bal.AssetName,
				Name:            meta.Name,
				Symbol:          meta.Symbol,
				ImageMetadata:   meta.ImageMetadata,
				Balance:         bal.Balance,
			}
			if apt.Name == "" {
				apt.Name = bal.AssetName
			}
			apt.StakedAmount, apt.UnlockBlock = a.stakedPosition(gctx, ref, meta.Symbol, address)
			slots[i] = &apt
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, apt := range slots {
		if apt != nil {
			apts = append(apts, *apt)
		}
	}
	sort.SliceStable(apts, func(i, j int) bool { return apts[i].ContractID() < apts[j].ContractID() })
	return apts, nil
}

// isWhitelisted asks the marketplace whether it trades token. A failed read
// counts as not whitelisted.
func (a *Aggregator) isWhitelisted(ctx context.Context, token domain.ContractRef, sender string) bool {
	p, err := clarity.NewContractPrincipal(token.Address, token.Name)
	if err != nil {
		return false
	}
	v, err := a.chain.CallReadOnly(ctx, a.marketplace.Address, a.marketplace.Name, "is-whitelisted", sender, []clarity.Value{p})
	if err != nil {
		a.logger.WarnContext(ctx, "aggregator: whitelist check failed",
			slog.String("token", token.ID()),
			slog.String("error", err.Error()),
		)
		return false
	}
	ok, err := clarity.AsBool(v)
	return err == nil && ok
}

// stakedPosition reads locked-{symbol} on the token contract. Any failure
// reads as nothing staked.
func (a *Aggregator) stakedPosition(ctx context.Context, token domain.ContractRef, symbol, owner string) (amount, unlock uint64) {
	if symbol == "" {
		return 0, 0
	}
	key, err := clarity.ParsePrincipal(owner)
	if err != nil {
		return 0, 0
	}
	v, err := a.chain.MapEntry(ctx, token.Address, token.Name, "locked-"+symbol, key)
	if err != nil {
		a.logger.DebugContext(ctx, "aggregator: staked read failed",
			slog.String("token", token.ID()),
			slog.String("error", err.Error()),
		)
		return 0, 0
	}
	inner, ok := clarity.UnwrapOptional(v)
	if !ok {
		return 0, 0
	}
	t, err := clarity.AsTuple(inner)
	if err != nil {
		return 0, 0
	}
	amount, _ = t.UintField("amount")
	unlock, _ = t.UintField("time")
	return amount, unlock
}

// tokenMetadata returns the cached metadata for contract or reads name,
// symbol, and token URI from the chain and the URI's JSON document. A
// failed read leaves its field empty; partial results are not cached.
func (a *Aggregator) tokenMetadata(ctx context.Context, contract, sender string) domain.TokenMetadata {
	if a.meta != nil {
		if m, err := a.meta.Get(ctx, contract); err == nil {
			return m
		}
	}

	if sender == "" {
		sender = a.marketplace.Address
	}
	meta := domain.TokenMetadata{Contract: contract}
	ref, err := domain.ParseContractRef(contract)
	if err != nil {
		return meta
	}

	complete := true
	readString := func(fn string) string {
		v, err := a.chain.CallReadOnly(ctx, ref.Address, ref.Name, fn, sender, nil)
		if err == nil {
			var s string
			if s, err = tokenString(v); err == nil {
				return s
			}
		}
		complete = false
		a.logger.WarnContext(ctx, "aggregator: metadata read failed",
			slog.String("token", contract),
			slog.String("function", fn),
			slog.String("error", err.Error()),
		)
		return ""
	}
	meta.Name = readString("get-name")
	meta.Symbol = readString("get-symbol")
	meta.TokenURI = readString("get-token-uri")

	if meta.TokenURI != "" {
		doc, err := a.fetchDocument(ctx, meta.TokenURI)
		if err != nil {
			complete = false
			a.logger.WarnContext(ctx, "aggregator: token uri fetch failed",
				slog.String("token", contract),
				slog.String("uri", meta.TokenURI),
				slog.String("error", err.Error()),
			)
		} else {
			meta.ImageMetadata = doc
		}
	}

	if complete && a.meta != nil {
		if err := a.meta.Set(ctx, meta); err != nil {
			a.logger.WarnContext(ctx, "aggregator: metadata cache set failed", slog.String("error", err.Error()))
		}
	}
	return meta
}

// tokenString unwraps (ok (some "x")), (ok "x"), and bare strings.
func tokenString(v clarity.Value) (string, error) {
	inner, ok := clarity.UnwrapResponse(v)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnexpectedResponse, v)
	}
	inner, ok = clarity.UnwrapOptional(inner)
	if !ok {
		return "", nil
	}
	return clarity.AsString(inner)
}

// fetchDocument prefers a locally stored copy of an ipfs:// document.
func (a *Aggregator) fetchDocument(ctx context.Context, uri string) (map[string]any, error) {
	if a.docs != nil && strings.HasPrefix(uri, "ipfs://") {
		id := strings.TrimPrefix(strings.TrimPrefix(uri, "ipfs://"), "ipfs/")
		if raw, err := a.docs.Get(ctx, id); err == nil {
			var doc map[string]any
			if err := json.Unmarshal(raw, &doc); err == nil {
				return doc, nil
			}
		}
	}
	if a.ipfs == nil {
		return nil, fmt.Errorf("%w: no metadata fetcher for %s", domain.ErrNotFound, uri)
	}
	return a.ipfs.FetchJSON(ctx, uri)
}

func (a *Aggregator) fail(ctx context.Context, address string, err error, start time.Time) {
	a.observe("error", start, 0)
	a.logger.ErrorContext(ctx, "aggregator: marketplace load failed",
		slog.String("address", address),
		slog.String("error", err.Error()),
	)
	a.publish(ctx, domain.Event{
		Kind:    domain.EventAggregationFailed,
		Address: address,
		Title:   dataLoadingErrorTitle,
		Message: dataLoadingErrorMessage,
	})
}

func (a *Aggregator) publish(ctx context.Context, ev domain.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.PublishEvent(ctx, domain.ChannelFor(ev.Kind), ev); err != nil {
		a.logger.WarnContext(ctx, "aggregator: publish failed", slog.String("error", err.Error()))
	}
}

func (a *Aggregator) observe(outcome string, start time.Time, listings int) {
	if a.observer != nil {
		a.observer.ObserveAggregation(outcome, a.now().Sub(start), listings)
	}
}

// metaMemo deduplicates metadata loads within one aggregation call,
// including loads still in flight.
type metaMemo struct {
	mu      sync.Mutex
	entries map[string]*metaEntry
}

type metaEntry struct {
	once sync.Once
	meta domain.TokenMetadata
}

func newMetaMemo() *metaMemo {
	return &metaMemo{entries: make(map[string]*metaEntry)}
}

func (m *metaMemo) get(contract string, load func() domain.TokenMetadata) domain.TokenMetadata {
	m.mu.Lock()
	e, ok := m.entries[contract]
	if !ok {
		e = &metaEntry{}
		m.entries[contract] = e
	}
	m.mu.Unlock()
	e.once.Do(func() { e.meta = load() })
	return e.meta
}
