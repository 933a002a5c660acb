package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// DefaultStakeDenylist holds the token contracts that cannot be locked.
var DefaultStakeDenylist = []string{"ST388W712B8F7BKQG4G6QHD2K9P9SKBRD9FHQY8DG.testcoin"}

// LockRequest locks an amount of a property token until tip + DurationBlocks.
type LockRequest struct {
	TokenContract  string
	Symbol         string
	Amount         float64
	DurationBlocks uint64
}

// StakingService stakes PXT on the RWS contract and locks property tokens
// on their own contracts.
type StakingService struct {
	caller    ContractCaller
	sessions  SessionSource
	tips      TipSource
	view      *MarketplaceView
	contracts Contracts
	denylist  map[string]struct{}
	logger    *slog.Logger
}

// TipSource reads the chain tip height.
type TipSource interface {
	ChainTip(ctx context.Context) (uint64, error)
}

// NewStakingService creates a StakingService. A nil denylist uses
// DefaultStakeDenylist.
func NewStakingService(
	caller ContractCaller,
	sessions SessionSource,
	tips TipSource,
	view *MarketplaceView,
	contracts Contracts,
	denylist []string,
	logger *slog.Logger,
) *StakingService {
	if denylist == nil {
		denylist = DefaultStakeDenylist
	}
	deny := make(map[string]struct{}, len(denylist))
	for _, c := range denylist {
		deny[strings.TrimSpace(c)] = struct{}{}
	}
	return &StakingService{
		caller:    caller,
		sessions:  sessions,
		tips:      tips,
		view:      view,
		contracts: contracts,
		denylist:  deny,
		logger:    logger,
	}
}

// StakePXT calls stake-pxt on the RWS contract with amount in micro-units.
func (s *StakingService) StakePXT(ctx context.Context, amount float64) (domain.TxResult, error) {
	if _, err := connectedAddress(s.sessions); err != nil {
		return domain.TxResult{}, err
	}
	micro, err := toMicro(amount, "amount")
	if err != nil {
		return domain.TxResult{}, err
	}
	res, err := s.caller.Call(ctx, newCall(s.contracts.RWS, "stake-pxt", contract.Uint(micro)))
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "staking_service: stake submitted",
		slog.Uint64("amount", micro),
		slog.String("tx_id", res.TxID),
	)
	return res, nil
}

// Denylisted reports whether tokenContract is excluded from locking.
func (s *StakingService) Denylisted(tokenContract string) bool {
	_, ok := s.denylist[tokenContract]
	return ok
}

// LockAsset calls lock-{symbol} on the token contract, locking the amount
// until the current tip plus the requested duration.
func (s *StakingService) LockAsset(ctx context.Context, req LockRequest) (domain.TxResult, error) {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.TxResult{}, err
	}
	ref, err := domain.ParseContractRef(req.TokenContract)
	if err != nil {
		return domain.TxResult{}, err
	}
	if s.Denylisted(ref.ID()) {
		return domain.TxResult{}, fmt.Errorf("staking_service: lock %s: %w", ref.ID(), domain.ErrDenylisted)
	}
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		return domain.TxResult{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	micro, err := toMicro(req.Amount, "amount")
	if err != nil {
		return domain.TxResult{}, err
	}
	if req.DurationBlocks == 0 {
		return domain.TxResult{}, fmt.Errorf("%w: duration must be at least one block", domain.ErrInvalidInput)
	}

	tip, err := s.tips.ChainTip(ctx)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("staking_service: chain tip: %w", err)
	}

	res, err := s.caller.Call(ctx, newCall(ref, "lock-"+symbol,
		contract.Uint(micro),
		contract.Uint(tip+req.DurationBlocks),
	))
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "staking_service: lock submitted",
		slog.String("token", ref.ID()),
		slog.Uint64("amount", micro),
		slog.Uint64("unlock_block", tip+req.DurationBlocks),
		slog.String("tx_id", res.TxID),
	)
	if s.view != nil {
		s.view.Invalidate(ctx, addr)
	}
	return res, nil
}
