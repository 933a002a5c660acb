package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// BalanceReader reads the two balances shown for a session.
type BalanceReader interface {
	CallReadOnly(ctx context.Context, contractAddress, contractName, function, sender string, args []clarity.Value) (clarity.Value, error)
	STXBalance(ctx context.Context, address string) (uint64, error)
}

// Manager is the single writer of the session. Readers get an immutable
// snapshot through Session; every write replaces the snapshot atomically.
//
// Connect and Disconnect bump the session generation. A balance refresh
// remembers the generation it started under and is dropped if the session
// has moved on by the time the reads complete.
type Manager struct {
	provider Provider
	chain    BalanceReader
	rws      domain.ContractRef
	sessions domain.SessionCache
	events   domain.EventPublisher
	logger   *slog.Logger

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[domain.Session]
}

// ManagerConfig holds a Manager's collaborators. Sessions and Events are
// optional.
type ManagerConfig struct {
	Provider Provider
	Chain    BalanceReader
	// RWS is the contract whose get-balance reports the primary token.
	RWS      domain.ContractRef
	Sessions domain.SessionCache
	Events   domain.EventPublisher
	Logger   *slog.Logger
}

// NewManager creates a Manager in the disconnected state.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		provider: cfg.Provider,
		chain:    cfg.Chain,
		rws:      cfg.RWS,
		sessions: cfg.Sessions,
		events:   cfg.Events,
		logger:   logger.With(slog.String("component", "wallet")),
	}
	empty := domain.EmptySession(0)
	m.current.Store(&empty)
	return m
}

// Session returns the current session snapshot.
func (m *Manager) Session() domain.Session {
	return *m.current.Load()
}

// Provider returns the wallet provider backing the session.
func (m *Manager) Provider() Provider {
	return m.provider
}

// Connect asks the provider for authorization and populates the session
// with the address and balance. It is a no-op when already connected.
func (m *Manager) Connect(ctx context.Context) (domain.Session, error) {
	if s := m.Session(); s.Connected {
		return s, nil
	}

	m.mu.Lock()
	prev := *m.current.Load()
	if prev.Connected {
		m.mu.Unlock()
		return prev, nil
	}
	ud, err := m.provider.Connect(ctx)
	if err != nil {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "connect failed",
			slog.String("provider", m.provider.Name()),
			slog.String("error", err.Error()),
		)
		return prev, fmt.Errorf("wallet: connect: %w", err)
	}
	next := domain.Session{
		Connected:  true,
		Address:    ud.Address,
		UserData:   &ud,
		Generation: prev.Generation + 1,
	}
	m.current.Store(&next)
	// Persisted under the writer lock so a concurrent Disconnect's delete
	// always lands after this save.
	if m.sessions != nil {
		if err := m.sessions.Save(ctx, ud); err != nil {
			m.logger.WarnContext(ctx, "persist session failed", slog.String("error", err.Error()))
		}
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "wallet connected",
		slog.String("address", ud.Address),
		slog.String("provider", ud.Provider),
	)
	m.publish(ctx, domain.EventSessionConnected, ud.Address, nil)

	return m.RefreshBalance(ctx, ud.Address), nil
}

// Disconnect clears the session unconditionally and revokes the provider's
// persisted session data.
func (m *Manager) Disconnect(ctx context.Context) domain.Session {
	m.mu.Lock()
	prev := *m.current.Load()
	if err := m.provider.Disconnect(ctx); err != nil {
		m.logger.WarnContext(ctx, "provider disconnect failed", slog.String("error", err.Error()))
	}
	next := domain.EmptySession(prev.Generation + 1)
	m.current.Store(&next)
	if prev.Address != "" && m.sessions != nil {
		if err := m.sessions.Delete(ctx, prev.Address); err != nil {
			m.logger.WarnContext(ctx, "delete session failed", slog.String("error", err.Error()))
		}
	}
	m.mu.Unlock()

	if prev.Connected {
		m.logger.InfoContext(ctx, "wallet disconnected", slog.String("address", prev.Address))
		m.publish(ctx, domain.EventSessionDisconnected, prev.Address, nil)
	}
	return next
}

// Restore reconnects silently when session data for the provider's account
// was persisted by an earlier run. It reports whether a session was restored.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.sessions == nil || m.Session().Connected {
		return false, nil
	}
	account := m.provider.Account()
	if account == "" {
		return false, nil
	}
	if _, err := m.sessions.Load(ctx, account); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("wallet: restore %s: %w", account, err)
	}
	if _, err := m.Connect(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RefreshBalance re-reads the balances of address and stores them on the
// session. A read failure resets the balance to zero. The result is dropped
// if the session changed while the reads were in flight. An empty address
// means the connected address.
func (m *Manager) RefreshBalance(ctx context.Context, address string) domain.Session {
	start := m.Session()
	if address == "" {
		address = start.Address
	}
	if !start.Connected || address != start.Address {
		return start
	}

	bal, err := m.readBalance(ctx, address)
	if err != nil {
		m.logger.WarnContext(ctx, "balance refresh failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		bal = domain.Balance{}
	}

	m.mu.Lock()
	cur := *m.current.Load()
	if cur.Generation != start.Generation {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "discarding stale balance",
			slog.Uint64("started", start.Generation),
			slog.Uint64("current", cur.Generation),
		)
		return cur
	}
	cur.Balance = bal
	m.current.Store(&cur)
	m.mu.Unlock()

	m.publish(ctx, domain.EventBalanceUpdated, address, map[string]any{
		"primaryToken":   bal.PrimaryToken,
		"secondaryToken": bal.SecondaryToken,
	})
	return cur
}

// readBalance reads the RWS get-balance and native STX balances in
// parallel, in display units.
func (m *Manager) readBalance(ctx context.Context, address string) (domain.Balance, error) {
	owner, err := clarity.ParsePrincipal(address)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("wallet: balance owner: %w", err)
	}

	var primary, secondary uint64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := m.chain.CallReadOnly(gctx, m.rws.Address, m.rws.Name, "get-balance", address, []clarity.Value{owner})
		if err != nil {
			return err
		}
		inner, ok := clarity.UnwrapResponse(v)
		if !ok {
			return fmt.Errorf("%w: get-balance returned %s", domain.ErrUnexpectedResponse, v)
		}
		primary, err = clarity.AsUint64(inner)
		return err
	})
	g.Go(func() error {
		var err error
		secondary, err = m.chain.STXBalance(gctx, address)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Balance{}, err
	}
	return domain.Balance{
		PrimaryToken:   float64(primary) / domain.MicroUnits,
		SecondaryToken: float64(secondary) / domain.MicroUnits,
	}, nil
}

func (m *Manager) publish(ctx context.Context, kind domain.EventKind, address string, data map[string]any) {
	if m.events == nil {
		return
	}
	ev := domain.Event{Kind: kind, Address: address, Data: data}
	if err := m.events.PublishEvent(ctx, domain.ChannelFor(kind), ev); err != nil {
		m.logger.WarnContext(ctx, "publish event failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}
