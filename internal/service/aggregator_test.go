package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks/stackstest"
)

type memEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *memEvents) PublishEvent(_ context.Context, _ string, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *memEvents) last() domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return domain.Event{}
	}
	return e.events[len(e.events)-1]
}

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]map[string]any
	calls int
}

func (f *fakeFetcher) FetchJSON(_ context.Context, uri string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	doc, ok := f.docs[uri]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

type memMeta struct {
	mu   sync.Mutex
	meta map[string]domain.TokenMetadata
}

func (m *memMeta) Set(_ context.Context, meta domain.TokenMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[meta.Contract] = meta
	return nil
}

func (m *memMeta) Get(_ context.Context, contract string) (domain.TokenMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[contract]
	if !ok {
		return meta, domain.ErrNotFound
	}
	return meta, nil
}

func (m *memMeta) Invalidate(_ context.Context, contract string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.meta, contract)
	return nil
}

type market struct {
	node    *stackstest.Node
	client  *stacks.Client
	ref     domain.ContractRef
	token   string
	other   string
	me      string
	maker   string
	fetcher *fakeFetcher
	events  *memEvents
	meta    *memMeta
	agg     *Aggregator
}

const villaURI = "https://meta.example/villa.json"

func principal(t *testing.T, s string) clarity.Value {
	t.Helper()
	p, err := clarity.ParsePrincipal(s)
	require.NoError(t, err)
	return p
}

func listingTuple(t *testing.T, maker, token string, amt, price, expiry uint64, payment string) clarity.Tuple {
	t.Helper()
	var pay clarity.Value = clarity.None{}
	if payment != "" {
		pay = clarity.NewSome(principal(t, payment))
	}
	return clarity.Tuple{
		"maker":                  principal(t, maker),
		"taker":                  clarity.None{},
		"ft-asset-contract":      principal(t, token),
		"amt":                    clarity.NewUint(amt),
		"price":                  clarity.NewUint(price),
		"expiry":                 clarity.NewUint(expiry),
		"payment-asset-contract": pay,
	}
}

// newMarket seeds a node at tip 100 with four listing slots: 0 is mine,
// 1 belongs to someone else, 2 is missing, and 3 expired at the tip.
func newMarket(t *testing.T) *market {
	t.Helper()
	node := stackstest.NewNode(t)
	m := &market{
		node:   node,
		client: stacks.NewClient(stacks.ClientConfig{BaseURL: node.URL}),
		ref:    domain.ContractRef{Address: stackstest.Address(1), Name: "marketplace"},
		token:  stackstest.ContractID(5, "villa"),
		other:  stackstest.ContractID(6, "junk"),
		me:     stackstest.Address(2),
		maker:  stackstest.Address(3),
		fetcher: &fakeFetcher{docs: map[string]map[string]any{
			villaURI: {"image": "https://img.example/villa.png"},
		}},
		events: &memEvents{},
		meta:   &memMeta{meta: map[string]domain.TokenMetadata{}},
	}

	node.SetTip(100)
	node.SetReadOnly(m.ref.ID(), "get-listing-ft-nonce", clarity.Ok{V: clarity.NewUint(4)})
	node.SetMapEntry(m.ref.ID(), "listings-ft", clarity.NewUint(0), listingTuple(t, m.me, m.token, 1_000_000, 2_000_000, 200, ""))
	node.SetMapEntry(m.ref.ID(), "listings-ft", clarity.NewUint(1), listingTuple(t, m.maker, m.token, 3_000_000, 500_000, 150, m.other))
	node.SetMapEntry(m.ref.ID(), "listings-ft", clarity.NewUint(3), listingTuple(t, m.maker, m.token, 1, 1, 100, ""))

	node.SetReadOnly(m.token, "get-name", clarity.Ok{V: clarity.StringASCII("Villa")})
	node.SetReadOnly(m.token, "get-symbol", clarity.Ok{V: clarity.StringASCII("VIL")})
	node.SetReadOnly(m.token, "get-token-uri", clarity.Ok{V: clarity.NewSome(clarity.StringUTF8(villaURI))})

	node.AddFTBalance(m.me, m.token+"::villa", 5_000_000)
	node.AddFTBalance(m.me, m.other+"::junk", 1)
	node.SetReadOnlyFunc(m.ref.ID(), "is-whitelisted", func(_ string, args []clarity.Value) (clarity.Value, error) {
		p, err := clarity.AsPrincipal(args[0])
		if err != nil {
			return nil, err
		}
		return clarity.Ok{V: clarity.Bool(p == m.token)}, nil
	})
	node.SetMapEntry(m.token, "locked-VIL", principal(t, m.me), clarity.Tuple{
		"amount": clarity.NewUint(750_000),
		"time":   clarity.NewUint(400),
	})

	m.agg = NewAggregator(AggregatorConfig{
		Chain:              m.client,
		IPFS:               m.fetcher,
		Metadata:           m.meta,
		Events:             m.events,
		Marketplace:        m.ref,
		MaxConcurrentReads: 2,
	})
	return m
}

func ids(ls []domain.Listing) []uint64 {
	out := make([]uint64, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func TestFetchMarketplaceDataPartitions(t *testing.T) {
	m := newMarket(t)

	data, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), data.TipHeight)
	assert.Equal(t, []uint64{1}, ids(data.Browse))
	assert.Equal(t, []uint64{0}, ids(data.MyListings))

	mine := data.MyListings[0]
	assert.True(t, mine.IsUserListing)
	assert.Equal(t, "Villa", mine.Name)
	assert.Equal(t, "VIL", mine.Symbol)
	assert.Equal(t, "https://img.example/villa.png", mine.ImageMetadata["image"])
	assert.True(t, mine.PaysInSTX())

	other := data.Browse[0]
	assert.False(t, other.IsUserListing)
	assert.Equal(t, m.other, other.PaymentAssetContract)
	assert.Equal(t, uint64(150), other.Expiry)

	require.Len(t, data.MyApts, 1)
	apt := data.MyApts[0]
	assert.Equal(t, m.token, apt.ContractID())
	assert.Equal(t, "villa", apt.AssetName)
	assert.Equal(t, "Villa", apt.Name)
	assert.Equal(t, uint64(5_000_000), apt.Balance.Uint64())
	assert.Equal(t, uint64(750_000), apt.StakedAmount)
	assert.Equal(t, uint64(400), apt.UnlockBlock)

	assert.Equal(t, domain.EventMarketplaceUpdated, m.events.last().Kind)
}

func TestFetchMarketplaceDataKeepsLargeBalances(t *testing.T) {
	m := newMarket(t)
	m.node.AddFTBalanceDecimal(m.me, m.token+"::villa", "20000000000000000000")

	data, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.NoError(t, err)
	require.Len(t, data.MyApts, 2)
	assert.Equal(t, "5000000", data.MyApts[0].Balance.Dec())
	assert.Equal(t, "20000000000000000000", data.MyApts[1].Balance.Dec())
}

func TestFetchMarketplaceDataReadsMetadataOncePerToken(t *testing.T) {
	m := newMarket(t)

	_, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.NoError(t, err)
	assert.Equal(t, 1, m.node.Calls(m.token, "get-name"))
	assert.Equal(t, 1, m.node.Calls(m.token, "get-token-uri"))
	assert.Equal(t, 0, m.node.Calls(m.other, "get-name"), "non-whitelisted token needs no metadata")

	// Second call is served from the metadata cache.
	_, err = m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.NoError(t, err)
	assert.Equal(t, 1, m.node.Calls(m.token, "get-name"))
	assert.Equal(t, 1, m.fetcher.calls)
}

func TestFetchMarketplaceDataPartialMetadataNotCached(t *testing.T) {
	m := newMarket(t)
	m.fetcher.docs = map[string]map[string]any{}

	data, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.NoError(t, err)
	assert.Equal(t, "Villa", data.MyListings[0].Name)
	assert.Nil(t, data.MyListings[0].ImageMetadata)

	_, err = m.meta.Get(context.Background(), m.token)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchMarketplaceDataWithoutAddress(t *testing.T) {
	m := newMarket(t)

	data, err := m.agg.FetchMarketplaceData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, ids(data.Browse))
	assert.Empty(t, data.MyListings)
	assert.Empty(t, data.MyApts)
}

func TestFetchMarketplaceDataFailureReturnsEmpty(t *testing.T) {
	m := newMarket(t)
	m.node.FailNext("/extended", 1)

	data, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.Error(t, err)
	assert.Equal(t, domain.EmptyMarketplaceData(m.me), data)

	ev := m.events.last()
	assert.Equal(t, domain.EventAggregationFailed, ev.Kind)
	assert.Equal(t, "Data Loading Error", ev.Title)
	assert.Equal(t, "Failed to load marketplace data. Please try again later.", ev.Message)
}

func TestFetchMarketplaceDataWhitelistFailureExcludesToken(t *testing.T) {
	m := newMarket(t)
	m.node.SetReadOnlyFunc(m.ref.ID(), "is-whitelisted", func(string, []clarity.Value) (clarity.Value, error) {
		return nil, errors.New("runtime error")
	})

	data, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	require.NoError(t, err)
	assert.Empty(t, data.MyApts)
	assert.Len(t, data.MyListings, 1)
}

func TestScanListingsReportsMissing(t *testing.T) {
	m := newMarket(t)

	scan, err := m.agg.ScanListings(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 3}, ids(scan.Present))
	assert.Equal(t, []uint64{2}, scan.Missing)
	assert.Equal(t, []uint64{0, 1}, ids(scan.Active()))
}

func TestScanListingsRejectsNonceAboveLimit(t *testing.T) {
	m := newMarket(t)
	m.node.SetReadOnly(m.ref.ID(), "get-listing-ft-nonce", clarity.Ok{V: clarity.NewUint(1 << 62)})

	_, err := m.agg.ScanListings(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnexpectedResponse)

	data, err := m.agg.FetchMarketplaceData(context.Background(), m.me)
	assert.ErrorIs(t, err, domain.ErrUnexpectedResponse)
	assert.Equal(t, domain.EmptyMarketplaceData(m.me), data)
}

func TestScanListingsConfiguredLimit(t *testing.T) {
	m := newMarket(t)
	m.agg.maxListings = 3

	_, err := m.agg.ScanListings(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnexpectedResponse)

	m.agg.maxListings = 4
	scan, err := m.agg.ScanListings(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 3}, ids(scan.Present))
}

type fakeDocs map[string][]byte

func (d fakeDocs) Get(_ context.Context, id string) ([]byte, error) {
	b, ok := d[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func TestTokenMetadataPrefersLocalDocument(t *testing.T) {
	m := newMarket(t)
	m.node.SetReadOnly(m.token, "get-token-uri", clarity.Ok{V: clarity.NewSome(clarity.StringUTF8("ipfs://bafylocal"))})
	m.agg.docs = fakeDocs{"bafylocal": []byte(`{"image":"local.png"}`)}

	meta := m.agg.tokenMetadata(context.Background(), m.token, m.me)
	assert.Equal(t, "local.png", meta.ImageMetadata["image"])
	assert.Zero(t, m.fetcher.calls)
}

func TestTokenString(t *testing.T) {
	s, err := tokenString(clarity.Ok{V: clarity.None{}})
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = tokenString(clarity.StringASCII("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	_, err = tokenString(clarity.Err{V: clarity.NewUint(1)})
	assert.ErrorIs(t, err, domain.ErrUnexpectedResponse)
}

func TestMergeByID(t *testing.T) {
	current := []domain.Listing{
		{ID: 1, AssetContract: "A.t", Name: "Old", Symbol: "O", Expiry: 50},
		{ID: 2, AssetContract: "A.t", Expiry: 50},
	}
	fresh := []domain.Listing{
		{ID: 3, AssetContract: "A.t", Expiry: 50},
		{ID: 1, AssetContract: "A.t", Expiry: 50},
		{ID: 4, AssetContract: "A.t", Expiry: 10},
	}
	got := mergeByID(current, fresh, 10)
	assert.Equal(t, []uint64{1, 3}, ids(got))
	assert.Equal(t, "Old", got[0].Name)
}
