package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// AdminService wraps the marketplace administration functions.
type AdminService struct {
	caller    ContractCaller
	sessions  SessionSource
	contracts Contracts
	logger    *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(caller ContractCaller, sessions SessionSource, contracts Contracts, logger *slog.Logger) *AdminService {
	return &AdminService{caller: caller, sessions: sessions, contracts: contracts, logger: logger}
}

// IsContractAdmin reports whether the connected wallet may call the
// marketplace admin functions. get-contract-owner answers with an err for
// anyone else; that, or any failure to ask, means false.
func (s *AdminService) IsContractAdmin(ctx context.Context) bool {
	addr, err := connectedAddress(s.sessions)
	if err != nil {
		return false
	}
	v, err := s.caller.ReadOnly(ctx, s.contracts.Marketplace, "get-contract-owner", nil)
	if err != nil {
		s.logger.DebugContext(ctx, "admin_service: get-contract-owner failed",
			slog.String("address", addr),
			slog.String("error", err.Error()),
		)
		return false
	}
	inner, ok := clarity.UnwrapResponse(v)
	if !ok {
		return false
	}
	// Some deployments answer (ok true) and others return the owner.
	if b, err := clarity.AsBool(inner); err == nil {
		return b
	}
	if owner, err := clarity.AsPrincipal(inner); err == nil {
		return owner == addr
	}
	return true
}

// UpdateMarketplaceContract registers principal with a buff role given in hex.
func (s *AdminService) UpdateMarketplaceContract(ctx context.Context, principal, roleHex string) (domain.TxResult, error) {
	role, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(roleHex), "0x"))
	if err != nil || len(role) == 0 {
		return domain.TxResult{}, fmt.Errorf("%w: role must be hex bytes", domain.ErrInvalidInput)
	}
	if err := s.requirePrincipal(principal); err != nil {
		return domain.TxResult{}, err
	}
	return s.submit(ctx, "update-marketplace-contract",
		contract.Principal(principal),
		contract.Buffer(role),
	)
}

// UpdateKycContract registers principal with a uint role given in hex.
func (s *AdminService) UpdateKycContract(ctx context.Context, principal, roleHex string) (domain.TxResult, error) {
	role, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(roleHex), "0x"), 16, 64)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("%w: role must be a hex number", domain.ErrInvalidInput)
	}
	if err := s.requirePrincipal(principal); err != nil {
		return domain.TxResult{}, err
	}
	return s.submit(ctx, "update-kyc-contract",
		contract.Principal(principal),
		contract.Uint(role),
	)
}

// SetWhitelisted sets the marketplace whitelist status of a token contract.
func (s *AdminService) SetWhitelisted(ctx context.Context, tokenContract string, status bool) (domain.TxResult, error) {
	if _, err := domain.ParseContractRef(tokenContract); err != nil {
		return domain.TxResult{}, err
	}
	return s.submit(ctx, "set-whitelisted",
		contract.Principal(tokenContract),
		contract.Bool(status),
	)
}

func (s *AdminService) requirePrincipal(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: principal is required", domain.ErrInvalidInput)
	}
	if _, err := clarity.ParsePrincipal(p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func (s *AdminService) submit(ctx context.Context, function string, args ...contract.Arg) (domain.TxResult, error) {
	res, err := s.caller.Call(ctx, newCall(s.contracts.Marketplace, function, args...))
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "admin_service: call submitted",
		slog.String("function", function),
		slog.String("tx_id", res.TxID),
	)
	return res, nil
}
