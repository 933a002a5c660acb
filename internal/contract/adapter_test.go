package contract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/crypto"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks/stackstest"
	"github.com/alanyoungcy/propertyx/internal/wallet"
)

const deployerKey = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"

type memTxs struct {
	mu  sync.Mutex
	txs map[string]domain.Transaction
}

func (m *memTxs) Insert(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.TxID] = tx
	return nil
}

func (m *memTxs) UpdateStatus(_ context.Context, txID string, status domain.TxStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txID]
	if !ok {
		return domain.ErrNotFound
	}
	tx.Status = status
	m.txs[txID] = tx
	return nil
}

func (m *memTxs) GetByID(_ context.Context, txID string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txID]
	if !ok {
		return tx, domain.ErrNotFound
	}
	return tx, nil
}

func (m *memTxs) ListBySender(context.Context, string, domain.ListOpts) ([]domain.Transaction, error) {
	return nil, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

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

func (e *memEvents) kinds() []domain.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventKind, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Kind
	}
	return out
}

// memLocks is a process-local LockManager.
type memLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockNotAcquired
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fixture struct {
	node    *stackstest.Node
	manager *wallet.Manager
	adapter *Adapter
	txs     *memTxs
	audit   *memAudit
	events  *memEvents
	locks   *memLocks
	market  domain.ContractRef
}

func newFixture(t *testing.T, window time.Duration) *fixture {
	t.Helper()
	node := stackstest.NewNode(t)
	client := stacks.NewClient(stacks.ClientConfig{BaseURL: node.URL})
	signer, err := crypto.NewSigner(deployerKey)
	require.NoError(t, err)

	rws := domain.ContractRef{Address: stackstest.Address(9), Name: "test5-rws"}
	node.SetReadOnly(rws.ID(), "get-balance", clarity.Ok{V: clarity.NewUint(0)})

	provider := wallet.NewKeyProvider(signer, client, stacks.Testnet, 0)
	manager := wallet.NewManager(wallet.ManagerConfig{Provider: provider, Chain: client, RWS: rws})

	f := &fixture{
		node:    node,
		manager: manager,
		txs:     &memTxs{txs: map[string]domain.Transaction{}},
		audit:   &memAudit{},
		events:  &memEvents{},
		locks:   &memLocks{held: map[string]bool{}},
		market:  domain.ContractRef{Address: stackstest.Address(1), Name: "marketplace"},
	}
	f.adapter = NewAdapter(AdapterConfig{
		Sessions:      manager,
		Submitter:     provider,
		Chain:         client,
		Locks:         f.locks,
		Transactions:  f.txs,
		Audit:         f.audit,
		Events:        f.events,
		DefaultSender: stackstest.Address(5),
		DedupWindow:   window,
		LockWait:      300 * time.Millisecond,
	})
	return f
}

func (f *fixture) cancelCall(id uint64) ContractCall {
	return ContractCall{
		ContractAddress: f.market.Address,
		ContractName:    f.market.Name,
		FunctionName:    "cancel-listing-ft",
		Args:            []Arg{Uint(id), Principal(stackstest.ContractID(2, "token"))},
	}
}

func TestCallRequiresSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	_, err := f.adapter.Call(context.Background(), f.cancelCall(1))
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, f.node.Broadcasts())
}

func TestCallSubmitsAndRecords(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)
	f.node.SetNonce(deployerAddress(t), 3)

	res, err := f.adapter.Call(ctx, f.cancelCall(1))
	require.NoError(t, err)
	assert.True(t, res.Success)

	raws := f.node.Broadcasts()
	require.Len(t, raws, 1)
	assert.Equal(t, stacks.TxID(raws[0]), res.TxID)

	tx, err := f.txs.GetByID(ctx, res.TxID)
	require.NoError(t, err)
	assert.Equal(t, "cancel-listing-ft", tx.Function)
	assert.Equal(t, f.market.ID(), tx.Contract)
	assert.Equal(t, []string{"u1", "'" + stackstest.ContractID(2, "token")}, tx.Args)
	assert.Equal(t, uint64(3), tx.Nonce)
	assert.Equal(t, domain.TxStatusSubmitted, tx.Status)

	assert.Equal(t, []string{"tx.submitted"}, f.audit.events)
	assert.Contains(t, f.events.kinds(), domain.EventTxSubmitted)
	assert.Equal(t, []string{"nonce:" + deployerAddress(t)}, f.locks.acquired)
}

func TestCallSuppressesDuplicates(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	_, err = f.adapter.Call(ctx, f.cancelCall(1))
	require.NoError(t, err)
	_, err = f.adapter.Call(ctx, f.cancelCall(1))
	assert.ErrorIs(t, err, domain.ErrDuplicateCall)

	_, err = f.adapter.Call(ctx, f.cancelCall(2))
	require.NoError(t, err)
	assert.Len(t, f.node.Broadcasts(), 2)
}

func TestFailedCallCanBeRetried(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	f.node.FailNext("/v2/transactions", 1)
	_, err = f.adapter.Call(ctx, f.cancelCall(1))
	require.Error(t, err)
	assert.Contains(t, f.events.kinds(), domain.EventTxFailed)

	_, err = f.adapter.Call(ctx, f.cancelCall(1))
	assert.NoError(t, err)
}

func TestCallWaitsForNonceLock(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	unlock, err := f.locks.Acquire(ctx, "nonce:"+deployerAddress(t), time.Minute)
	require.NoError(t, err)

	_, err = f.adapter.Call(ctx, f.cancelCall(1))
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	time.AfterFunc(150*time.Millisecond, unlock)
	_, err = f.adapter.Call(ctx, f.cancelCall(1))
	assert.NoError(t, err)
}

func TestCallRejectsBadArgs(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	call := f.cancelCall(1)
	call.Args[0] = UintString("one")
	_, err = f.adapter.Call(ctx, call)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCallInferred(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	res, err := f.adapter.CallInferred(ctx, f.market, "stake-pxt", []any{float64(5_000_000)})
	require.NoError(t, err)
	tx, err := f.txs.GetByID(ctx, res.TxID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u5000000"}, tx.Args)
}

func TestReadOnlySender(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	var mu sync.Mutex
	var senders []string
	f.node.SetReadOnlyFunc(f.market.ID(), "is-whitelisted", func(sender string, args []clarity.Value) (clarity.Value, error) {
		mu.Lock()
		senders = append(senders, sender)
		mu.Unlock()
		if len(args) != 1 {
			return nil, errors.New("want one argument")
		}
		return clarity.Bool(true), nil
	})

	tokenArg := []Arg{Principal(stackstest.ContractID(2, "token"))}
	v, err := f.adapter.ReadOnly(ctx, f.market, "is-whitelisted", tokenArg)
	require.NoError(t, err)
	assert.Equal(t, clarity.Bool(true), v)

	_, err = f.manager.Connect(ctx)
	require.NoError(t, err)
	_, err = f.adapter.ReadInferred(ctx, f.market, "is-whitelisted", []any{stackstest.ContractID(2, "token")})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{stackstest.Address(5), deployerAddress(t)}, senders)
	mu.Unlock()

	_, err = f.adapter.ReadOnly(ctx, f.market, "missing-fn", nil)
	assert.ErrorIs(t, err, domain.ErrUnexpectedResponse)
}

func TestTxStatusUpdatesRecord(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	_, err := f.manager.Connect(ctx)
	require.NoError(t, err)

	res, err := f.adapter.Call(ctx, f.cancelCall(4))
	require.NoError(t, err)
	f.node.SetTxStatus(res.TxID, "success")

	status, err := f.adapter.TxStatus(ctx, res.TxID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, status)

	tx, err := f.txs.GetByID(ctx, res.TxID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, tx.Status)
}

func TestDedupWindow(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("k"))
	assert.True(t, d.IsDuplicate("k"))
	now = now.Add(time.Minute)
	assert.False(t, d.IsDuplicate("k"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Empty(t, d.seen)

	assert.False(t, NewDedup(0).IsDuplicate("k"))
}

func deployerAddress(t *testing.T) string {
	t.Helper()
	s, err := crypto.NewSigner(deployerKey)
	require.NoError(t, err)
	return s.Address(true)
}
