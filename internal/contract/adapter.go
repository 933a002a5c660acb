package contract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/wallet"
)

// SessionSource exposes the current wallet session.
type SessionSource interface {
	Session() domain.Session
}

// Submitter signs and broadcasts a contract call for the connected account.
type Submitter interface {
	CallContract(ctx context.Context, req wallet.CallRequest) (wallet.Submitted, error)
}

// Chain is the read side of the Stacks client.
type Chain interface {
	CallReadOnly(ctx context.Context, contractAddress, contractName, function, sender string, args []clarity.Value) (clarity.Value, error)
	TxStatus(ctx context.Context, txID string) (domain.TxStatus, error)
}

// CallObserver receives the outcome of every submission attempt.
type CallObserver interface {
	ObserveCall(function string, outcome string, elapsed time.Duration)
}

// ContractCall is a state-changing call with typed arguments.
type ContractCall struct {
	ContractAddress string
	ContractName    string
	FunctionName    string
	Args            []Arg
}

// Contract returns the call's target.
func (c ContractCall) Contract() domain.ContractRef {
	return domain.ContractRef{Address: c.ContractAddress, Name: c.ContractName}
}

// AdapterConfig holds an Adapter's collaborators. Locks, Transactions,
// Audit, Events, and Observer are optional.
type AdapterConfig struct {
	Sessions      SessionSource
	Submitter     Submitter
	Chain         Chain
	Locks         domain.LockManager
	Transactions  domain.TransactionStore
	Audit         domain.AuditStore
	Events        domain.EventPublisher
	Observer      CallObserver
	DefaultSender string
	DedupWindow   time.Duration
	LockTTL       time.Duration
	LockWait      time.Duration
	Logger        *slog.Logger
}

// Adapter turns application-level calls into Clarity arguments and issues
// them as read-only evaluations or signed transactions.
type Adapter struct {
	sessions      SessionSource
	submitter     Submitter
	chain         Chain
	locks         domain.LockManager
	txs           domain.TransactionStore
	audit         domain.AuditStore
	events        domain.EventPublisher
	observer      CallObserver
	dedup         *Dedup
	defaultSender string
	lockTTL       time.Duration
	lockWait      time.Duration
	logger        *slog.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	lockWait := cfg.LockWait
	if lockWait <= 0 {
		lockWait = 10 * time.Second
	}
	return &Adapter{
		sessions:      cfg.Sessions,
		submitter:     cfg.Submitter,
		chain:         cfg.Chain,
		locks:         cfg.Locks,
		txs:           cfg.Transactions,
		audit:         cfg.Audit,
		events:        cfg.Events,
		observer:      cfg.Observer,
		dedup:         NewDedup(cfg.DedupWindow),
		defaultSender: cfg.DefaultSender,
		lockTTL:       lockTTL,
		lockWait:      lockWait,
		logger:        logger.With(slog.String("component", "contract")),
	}
}

// Dedup exposes the duplicate-call filter so its owner can schedule Cleanup.
func (a *Adapter) Dedup() *Dedup { return a.dedup }

// Call submits a state-changing contract call from the connected account.
func (a *Adapter) Call(ctx context.Context, call ContractCall) (domain.TxResult, error) {
	if !a.sessions.Session().Connected {
		return domain.TxResult{}, domain.ErrNotConnected
	}
	values, err := EncodeArgs(call.Args)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("contract: %s: %w", call.FunctionName, err)
	}
	return a.submit(ctx, call.Contract(), call.FunctionName, values)
}

// CallInferred submits a call whose arguments are typed by InferArgs.
func (a *Adapter) CallInferred(ctx context.Context, contract domain.ContractRef, function string, args []any) (domain.TxResult, error) {
	if !a.sessions.Session().Connected {
		return domain.TxResult{}, domain.ErrNotConnected
	}
	values, err := InferArgs(args)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("contract: %s: %w", function, err)
	}
	return a.submit(ctx, contract, function, values)
}

func (a *Adapter) submit(ctx context.Context, contract domain.ContractRef, function string, values []clarity.Value) (domain.TxResult, error) {
	start := time.Now()
	session := a.sessions.Session()
	if !session.Connected {
		return domain.TxResult{}, domain.ErrNotConnected
	}

	key, err := callKey(session.Address, contract, function, values)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("contract: %s: %w", function, err)
	}
	if a.dedup.IsDuplicate(key) {
		a.observe(function, "duplicate", start)
		return domain.TxResult{}, fmt.Errorf("contract: %s::%s: %w", contract, function, domain.ErrDuplicateCall)
	}

	sub, err := a.submitLocked(ctx, session.Address, contract, function, values)
	if err != nil {
		a.dedup.Forget(key)
		a.observe(function, "failed", start)
		a.logger.WarnContext(ctx, "contract call failed",
			slog.String("contract", contract.ID()),
			slog.String("function", function),
			slog.String("error", err.Error()),
		)
		a.publish(ctx, domain.Event{
			Kind:    domain.EventTxFailed,
			Address: session.Address,
			Title:   "Transaction Failed",
			Message: err.Error(),
			Data:    map[string]any{"contract": contract.ID(), "function": function},
		})
		return domain.TxResult{}, fmt.Errorf("contract: %s::%s: %w", contract, function, err)
	}
	a.observe(function, "submitted", start)

	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = v.String()
	}
	tx := domain.Transaction{
		TxID:        sub.TxID,
		Sender:      session.Address,
		Contract:    contract.ID(),
		Function:    function,
		Args:        rendered,
		Nonce:       sub.Nonce,
		Fee:         sub.Fee,
		Status:      domain.TxStatusSubmitted,
		SubmittedAt: start.UTC(),
	}
	a.record(ctx, tx)

	a.logger.InfoContext(ctx, "contract call submitted",
		slog.String("tx_id", sub.TxID),
		slog.String("contract", tx.Contract),
		slog.String("function", function),
		slog.Uint64("nonce", sub.Nonce),
	)
	a.publish(ctx, domain.Event{
		Kind:    domain.EventTxSubmitted,
		Address: session.Address,
		Title:   "Transaction Submitted",
		Message: fmt.Sprintf("%s submitted: %s", function, sub.TxID),
		Data:    map[string]any{"txId": sub.TxID, "contract": tx.Contract, "function": function},
	})
	return domain.TxResult{TxID: sub.TxID, Success: true}, nil
}

// submitLocked holds the per-account nonce lock around the provider call.
func (a *Adapter) submitLocked(ctx context.Context, sender string, contract domain.ContractRef, function string, values []clarity.Value) (wallet.Submitted, error) {
	if a.locks != nil {
		unlock, err := a.acquire(ctx, "nonce:"+sender)
		if err != nil {
			return wallet.Submitted{}, err
		}
		defer unlock()
	}
	return a.submitter.CallContract(ctx, wallet.CallRequest{
		Contract:     contract,
		FunctionName: function,
		Args:         values,
	})
}

// acquire retries a held lock until lockWait elapses.
func (a *Adapter) acquire(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, a.lockWait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		unlock, err := a.locks.Acquire(ctx, key, a.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-ticker.C:
		}
	}
}

func (a *Adapter) record(ctx context.Context, tx domain.Transaction) {
	if a.txs != nil {
		if err := a.txs.Insert(ctx, tx); err != nil {
			a.logger.WarnContext(ctx, "record transaction failed",
				slog.String("tx_id", tx.TxID),
				slog.String("error", err.Error()),
			)
		}
	}
	if a.audit != nil {
		detail := map[string]any{
			"tx_id":    tx.TxID,
			"sender":   tx.Sender,
			"contract": tx.Contract,
			"function": tx.Function,
			"args":     tx.Args,
			"nonce":    tx.Nonce,
		}
		if err := a.audit.Log(ctx, "tx.submitted", detail); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

// ReadOnly evaluates a read-only function with typed arguments.
func (a *Adapter) ReadOnly(ctx context.Context, contract domain.ContractRef, function string, args []Arg) (clarity.Value, error) {
	values, err := EncodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("contract: %s: %w", function, err)
	}
	return a.ReadOnlyValues(ctx, contract, function, values)
}

// ReadInferred evaluates a read-only function whose arguments are typed by
// InferArgs.
func (a *Adapter) ReadInferred(ctx context.Context, contract domain.ContractRef, function string, args []any) (clarity.Value, error) {
	values, err := InferArgs(args)
	if err != nil {
		return nil, fmt.Errorf("contract: %s: %w", function, err)
	}
	return a.ReadOnlyValues(ctx, contract, function, values)
}

// ReadOnlyValues evaluates a read-only function with encoded arguments. The
// sender is the connected address, else the configured default sender,
// else the contract's own address.
func (a *Adapter) ReadOnlyValues(ctx context.Context, contract domain.ContractRef, function string, values []clarity.Value) (clarity.Value, error) {
	v, err := a.chain.CallReadOnly(ctx, contract.Address, contract.Name, function, a.Sender(), values)
	if err != nil {
		return nil, fmt.Errorf("contract: read %s::%s: %w", contract, function, err)
	}
	return v, nil
}

// Sender returns the principal read-only calls are evaluated as.
func (a *Adapter) Sender() string {
	if s := a.sessions.Session(); s.Connected {
		return s.Address
	}
	return a.defaultSender
}

// TxStatus queries a transaction's chain status and updates its stored
// record when one exists.
func (a *Adapter) TxStatus(ctx context.Context, txID string) (domain.TxStatus, error) {
	status, err := a.chain.TxStatus(ctx, txID)
	if err != nil {
		return "", fmt.Errorf("contract: tx status: %w", err)
	}
	if a.txs != nil {
		if err := a.txs.UpdateStatus(ctx, txID, status); err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "update tx status failed",
				slog.String("tx_id", txID),
				slog.String("error", err.Error()),
			)
		}
	}
	return status, nil
}

func (a *Adapter) publish(ctx context.Context, ev domain.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.PublishEvent(ctx, domain.ChannelFor(ev.Kind), ev); err != nil {
		a.logger.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
	}
}

func (a *Adapter) observe(function, outcome string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveCall(function, outcome, time.Since(start))
	}
}

// callKey identifies a call by sender, target, and serialized arguments.
func callKey(sender string, contract domain.ContractRef, function string, values []clarity.Value) (string, error) {
	h := sha256.New()
	h.Write([]byte(sender + "|" + contract.ID() + "|" + function))
	for _, v := range values {
		s, err := clarity.SerializeHex(v)
		if err != nil {
			return "", err
		}
		h.Write([]byte("|" + s))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
