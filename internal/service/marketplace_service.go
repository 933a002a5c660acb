package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// BalanceSource reads an address's fungible-token balances.
type BalanceSource interface {
	ChainTip(ctx context.Context) (uint64, error)
	FTBalances(ctx context.Context, address string) ([]domain.TokenBalance, error)
}

// ListRequest describes a new fungible-token listing in display units.
type ListRequest struct {
	AssetContract string
	Amount        float64
	Price         float64
	// ExpiryBlocks is added to the current tip height.
	ExpiryBlocks uint64
	Taker        string
	// PaymentAssetContract is a token contract id; "" or "stx" prices the
	// listing in STX.
	PaymentAssetContract string
}

// MarketplaceService lists, cancels, and fulfils marketplace listings and
// keeps the caller's marketplace view current afterwards.
type MarketplaceService struct {
	caller    ContractCaller
	sessions  SessionSource
	chain     BalanceSource
	view      *MarketplaceView
	contracts Contracts
	logger    *slog.Logger
}

// NewMarketplaceService creates a MarketplaceService.
func NewMarketplaceService(
	caller ContractCaller,
	sessions SessionSource,
	chain BalanceSource,
	view *MarketplaceView,
	contracts Contracts,
	logger *slog.Logger,
) *MarketplaceService {
	return &MarketplaceService{
		caller:    caller,
		sessions:  sessions,
		chain:     chain,
		view:      view,
		contracts: contracts,
		logger:    logger,
	}
}

// View returns the connected user's marketplace snapshot.
func (s *MarketplaceService) View(ctx context.Context) (domain.MarketplaceData, error) {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.EmptyMarketplaceData(""), err
	}
	return s.view.Get(ctx, addr)
}

// Refresh forces a full re-fetch of the connected user's snapshot.
func (s *MarketplaceService) Refresh(ctx context.Context) (domain.MarketplaceData, error) {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.EmptyMarketplaceData(""), err
	}
	return s.view.Refresh(ctx, addr)
}

// ListAsset validates req against the user's balance and calls
// list-asset-ft with amount and price scaled to micro-units.
func (s *MarketplaceService) ListAsset(ctx context.Context, req ListRequest) (domain.TxResult, error) {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.TxResult{}, err
	}
	if _, err := domain.ParseContractRef(req.AssetContract); err != nil {
		return domain.TxResult{}, err
	}
	price, err := toMicro(req.Price, "price")
	if err != nil {
		return domain.TxResult{}, err
	}
	amount, err := toMicro(req.Amount, "amount")
	if err != nil {
		return domain.TxResult{}, err
	}
	if req.ExpiryBlocks == 0 {
		return domain.TxResult{}, fmt.Errorf("%w: expiry must be at least one block", domain.ErrInvalidInput)
	}

	owned, err := s.ownedBalance(ctx, addr, req.AssetContract)
	if err != nil {
		return domain.TxResult{}, err
	}
	if uint256.NewInt(amount).Gt(owned) {
		return domain.TxResult{}, fmt.Errorf("marketplace_service: list %s: %w", req.AssetContract, domain.ErrInsufficientBalance)
	}

	tip, err := s.chain.ChainTip(ctx)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("marketplace_service: chain tip: %w", err)
	}

	payment := strings.TrimSpace(req.PaymentAssetContract)
	if strings.EqualFold(payment, "stx") {
		payment = ""
	}

	res, err := s.caller.Call(ctx, newCall(s.contracts.Marketplace, "list-asset-ft",
		contract.Principal(req.AssetContract),
		contract.Tuple(map[string]contract.Arg{
			"taker":                  contract.OptionalPrincipal(strings.TrimSpace(req.Taker)),
			"amt":                    contract.Uint(amount),
			"expiry":                 contract.Uint(tip + req.ExpiryBlocks),
			"price":                  contract.Uint(price),
			"payment-asset-contract": contract.OptionalPrincipal(payment),
		}),
	))
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "marketplace_service: listing submitted",
		slog.String("asset", req.AssetContract),
		slog.Uint64("amount", amount),
		slog.Uint64("expiry", tip+req.ExpiryBlocks),
		slog.String("tx_id", res.TxID),
	)
	s.patch(ctx, func() error { _, err := s.view.AfterList(ctx, addr); return err })
	return res, nil
}

// CancelListing calls cancel-listing-ft for one of the user's listings.
func (s *MarketplaceService) CancelListing(ctx context.Context, id uint64, assetContract string) (domain.TxResult, error) {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.TxResult{}, err
	}
	if _, err := domain.ParseContractRef(assetContract); err != nil {
		return domain.TxResult{}, err
	}

	res, err := s.caller.Call(ctx, newCall(s.contracts.Marketplace, "cancel-listing-ft",
		contract.Uint(id),
		contract.Principal(assetContract),
	))
	if err != nil {
		return res, err
	}
	s.patch(ctx, func() error { _, err := s.view.AfterCancel(ctx, addr, id, res.TxID); return err })
	return res, nil
}

// FulfilListing buys listing id on the fulfil contract, paying with the
// payment token when the listing names one and in STX otherwise.
func (s *MarketplaceService) FulfilListing(ctx context.Context, id uint64, assetContract, paymentContract string) (domain.TxResult, error) {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return domain.TxResult{}, err
	}
	if _, err := domain.ParseContractRef(assetContract); err != nil {
		return domain.TxResult{}, err
	}

	call := newCall(s.contracts.MarketplaceFulfill, "fulfil-listing-ft-stx",
		contract.Uint(id),
		contract.Principal(assetContract),
	)
	if p := strings.TrimSpace(paymentContract); p != "" && !strings.EqualFold(p, "stx") {
		if _, err := domain.ParseContractRef(p); err != nil {
			return domain.TxResult{}, err
		}
		call.FunctionName = "fulfil-ft-listing-ft"
		call.Args = append(call.Args, contract.Principal(p))
	}

	res, err := s.caller.Call(ctx, call)
	if err != nil {
		return res, err
	}
	s.patch(ctx, func() error { _, err := s.view.AfterFulfil(ctx, addr, id, res.TxID); return err })
	return res, nil
}

// ownedBalance sums the raw balances address holds of token. A sum past
// 2^256 saturates.
func (s *MarketplaceService) ownedBalance(ctx context.Context, address, token string) (*uint256.Int, error) {
	balances, err := s.chain.FTBalances(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("marketplace_service: balances: %w", err)
	}
	total := new(uint256.Int)
	for _, b := range balances {
		if b.ContractID != token || b.Balance == nil {
			continue
		}
		if _, overflow := total.AddOverflow(total, b.Balance); overflow {
			return total.SetAllOne(), nil
		}
	}
	return total, nil
}

// patch updates the view after a submitted call. The call already
// succeeded, so a failed refresh is only logged.
func (s *MarketplaceService) patch(ctx context.Context, fn func() error) {
	if s.view == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "marketplace_service: view refresh failed", slog.String("error", err.Error()))
	}
}
