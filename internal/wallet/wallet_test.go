package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/crypto"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks/stackstest"
)

const (
	deployerKey     = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"
	deployerAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
)

type memSessions struct {
	mu   sync.Mutex
	data map[string]domain.UserData
}

func newMemSessions() *memSessions { return &memSessions{data: map[string]domain.UserData{}} }

func (s *memSessions) Save(_ context.Context, ud domain.UserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ud.Address] = ud
	return nil
}

func (s *memSessions) Load(_ context.Context, address string) (domain.UserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ud, ok := s.data[address]
	if !ok {
		return domain.UserData{}, domain.ErrNotFound
	}
	return ud, nil
}

func (s *memSessions) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, address)
	return nil
}

type memEvents struct {
	mu    sync.Mutex
	kinds []domain.EventKind
}

func (e *memEvents) PublishEvent(_ context.Context, _ string, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, ev.Kind)
	return nil
}

type fixture struct {
	node     *stackstest.Node
	client   *stacks.Client
	provider *KeyProvider
	sessions *memSessions
	events   *memEvents
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node := stackstest.NewNode(t)
	client := stacks.NewClient(stacks.ClientConfig{BaseURL: node.URL})
	signer, err := crypto.NewSigner(deployerKey)
	require.NoError(t, err)

	rwsID := stackstest.ContractID(9, "test5-rws")
	rws, err := domain.ParseContractRef(rwsID)
	require.NoError(t, err)
	node.SetReadOnly(rwsID, "get-balance", clarity.Ok{V: clarity.NewUint(2_500_000)})
	node.SetSTXBalance(deployerAddress, 1_000_000)

	f := &fixture{
		node:     node,
		client:   client,
		provider: NewKeyProvider(signer, client, stacks.Testnet, 0),
		sessions: newMemSessions(),
		events:   &memEvents{},
	}
	f.manager = NewManager(ManagerConfig{
		Provider: f.provider,
		Chain:    client,
		RWS:      rws,
		Sessions: f.sessions,
		Events:   f.events,
	})
	return f
}

func TestConnectPopulatesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, s.Connected)
	assert.Equal(t, deployerAddress, s.Address)
	require.NotNil(t, s.UserData)
	assert.Equal(t, "local-key", s.UserData.Provider)
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, domain.Balance{PrimaryToken: 2.5, SecondaryToken: 1}, s.Balance)

	_, err = f.sessions.Load(ctx, deployerAddress)
	assert.NoError(t, err)
	assert.Equal(t, []domain.EventKind{domain.EventSessionConnected, domain.EventBalanceUpdated}, f.events.kinds)
}

func TestConnectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.Connect(ctx)
	require.NoError(t, err)
	second, err := f.manager.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDisconnectClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	s := f.manager.Disconnect(ctx)
	assert.Equal(t, domain.EmptySession(2), s)
	assert.Equal(t, s, f.manager.Session())
	assert.False(t, f.provider.IsConnected())

	_, err = f.sessions.Load(ctx, deployerAddress)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Disconnecting again still resets and bumps the generation.
	assert.Equal(t, uint64(3), f.manager.Disconnect(ctx).Generation)
}

func TestRefreshBalanceFailureZeroes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	f.node.FailNext("/extended/v2/addresses", 1)
	s := f.manager.RefreshBalance(ctx, "")
	assert.True(t, s.Connected)
	assert.Equal(t, domain.Balance{}, s.Balance)

	s = f.manager.RefreshBalance(ctx, deployerAddress)
	assert.Equal(t, 2.5, s.Balance.PrimaryToken)
}

func TestRefreshBalanceIgnoresOtherAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.manager.Connect(ctx)
	require.NoError(t, err)
	calls := f.node.Calls(stackstest.ContractID(9, "test5-rws"), "get-balance")

	after := f.manager.RefreshBalance(ctx, stackstest.Address(3))
	assert.Equal(t, before, after)
	assert.Equal(t, calls, f.node.Calls(stackstest.ContractID(9, "test5-rws"), "get-balance"))
}

// gatedChain blocks the first balance read after arm until released.
type gatedChain struct {
	mu      sync.Mutex
	primary uint64
	gate    chan struct{}
	started chan struct{}
}

func (g *gatedChain) arm(primary uint64) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primary = primary
	g.gate = make(chan struct{})
	g.started = make(chan struct{})
	return g.gate
}

func (g *gatedChain) set(primary uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primary = primary
}

func (g *gatedChain) CallReadOnly(context.Context, string, string, string, string, []clarity.Value) (clarity.Value, error) {
	g.mu.Lock()
	gate, started, bal := g.gate, g.started, g.primary
	g.gate = nil
	g.mu.Unlock()
	if gate != nil {
		close(started)
		<-gate
	}
	return clarity.Ok{V: clarity.NewUint(bal)}, nil
}

func (g *gatedChain) STXBalance(context.Context, string) (uint64, error) { return 0, nil }

func TestStaleRefreshIsDiscarded(t *testing.T) {
	signer, err := crypto.NewSigner(deployerKey)
	require.NoError(t, err)
	chain := &gatedChain{primary: 1_000_000}
	m := NewManager(ManagerConfig{
		Provider: NewKeyProvider(signer, nil, stacks.Testnet, 0),
		Chain:    chain,
		RWS:      domain.ContractRef{Address: stackstest.Address(9), Name: "test5-rws"},
	})
	ctx := context.Background()

	_, err = m.Connect(ctx)
	require.NoError(t, err)

	gate := chain.arm(99_000_000)
	started := chain.started
	done := make(chan domain.Session)
	go func() { done <- m.RefreshBalance(ctx, deployerAddress) }()
	<-started

	chain.set(5_000_000)
	m.Disconnect(ctx)
	fresh, err := m.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fresh.Generation)
	assert.Equal(t, 5.0, fresh.Balance.PrimaryToken)

	close(gate)
	<-done
	assert.Equal(t, 5.0, m.Session().Balance.PrimaryToken)
	assert.Equal(t, uint64(3), m.Session().Generation)
}

// gatedSessions holds the first Save until gate is closed.
type gatedSessions struct {
	*memSessions
	once    sync.Once
	started chan struct{}
	gate    chan struct{}
}

func (g *gatedSessions) Save(ctx context.Context, ud domain.UserData) error {
	g.once.Do(func() {
		close(g.started)
		<-g.gate
	})
	return g.memSessions.Save(ctx, ud)
}

func TestDisconnectDuringConnectLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	sessions := &gatedSessions{
		memSessions: newMemSessions(),
		started:     make(chan struct{}),
		gate:        make(chan struct{}),
	}
	m := NewManager(ManagerConfig{
		Provider: f.provider,
		Chain:    f.client,
		RWS:      f.manager.rws,
		Sessions: sessions,
	})
	ctx := context.Background()

	connected := make(chan error, 1)
	go func() {
		_, err := m.Connect(ctx)
		connected <- err
	}()
	<-sessions.started

	disconnected := make(chan domain.Session, 1)
	go func() { disconnected <- m.Disconnect(ctx) }()

	close(sessions.gate)
	require.NoError(t, <-connected)
	s := <-disconnected
	assert.False(t, s.Connected)

	_, err := sessions.Load(ctx, deployerAddress)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, m.Session().Connected)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.sessions.Save(ctx, domain.UserData{Address: deployerAddress}))
	ok, err = f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.manager.Session().Connected)
}

func TestKeyProviderCallContract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := CallRequest{
		Contract:     domain.ContractRef{Address: stackstest.Address(1), Name: "marketplace"},
		FunctionName: "stake-pxt",
		Args:         []clarity.Value{clarity.NewUint(5_000_000)},
	}

	_, err := f.provider.CallContract(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = f.provider.Connect(ctx)
	require.NoError(t, err)
	f.node.SetNonce(deployerAddress, 7)

	sub, err := f.provider.CallContract(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sub.Nonce)
	assert.Equal(t, uint64(DefaultFee), sub.Fee)

	raws := f.node.Broadcasts()
	require.Len(t, raws, 1)
	assert.Equal(t, stacks.TxID(raws[0]), sub.TxID)
}

func TestNoKeyProviderNeverConnects(t *testing.T) {
	m := NewManager(ManagerConfig{Provider: NoKey()})

	s, err := m.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, s.Connected)

	restored, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)

	_, err = NoKey().CallContract(context.Background(), CallRequest{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}
