package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// AssetService reads NFT ownership and registered asset records.
type AssetService struct {
	caller    ContractCaller
	contracts Contracts
	logger    *slog.Logger
}

// NewAssetService creates an AssetService.
func NewAssetService(caller ContractCaller, contracts Contracts, logger *slog.Logger) *AssetService {
	return &AssetService{caller: caller, contracts: contracts, logger: logger}
}

// GetNFTOwner returns the owner of tokenID, or domain.ErrNotFound when the
// token has none.
func (s *AssetService) GetNFTOwner(ctx context.Context, tokenID uint64) (string, error) {
	v, err := s.caller.ReadOnly(ctx, s.contracts.NFT, "get-owner", []contract.Arg{contract.Uint(tokenID)})
	if err != nil {
		return "", fmt.Errorf("asset_service: get-owner %d: %w", tokenID, err)
	}
	inner, ok := clarity.UnwrapResponse(v)
	if !ok {
		return "", fmt.Errorf("asset_service: get-owner %d: %w: %s", tokenID, domain.ErrUnexpectedResponse, v)
	}
	inner, present := clarity.UnwrapOptional(inner)
	if !present {
		return "", fmt.Errorf("asset_service: nft %d: %w", tokenID, domain.ErrNotFound)
	}
	owner, err := clarity.AsPrincipal(inner)
	if err != nil {
		return "", fmt.Errorf("asset_service: get-owner %d: %w: %v", tokenID, domain.ErrUnexpectedResponse, err)
	}
	return owner, nil
}

// GetAssetData reads the asset registered by owner under assetID. A missing
// asset returns a record with Found false.
func (s *AssetService) GetAssetData(ctx context.Context, owner string, assetID uint64) (domain.AssetRecord, error) {
	rec := domain.AssetRecord{Owner: owner, AssetID: assetID}
	if _, err := clarity.ParsePrincipal(owner); err != nil {
		return rec, fmt.Errorf("%w: owner: %v", domain.ErrInvalidInput, err)
	}

	v, err := s.caller.ReadOnly(ctx, s.contracts.Asset, "get-asset", []contract.Arg{
		contract.Principal(owner),
		contract.Uint(assetID),
	})
	if err != nil {
		return rec, fmt.Errorf("asset_service: get-asset: %w", err)
	}
	inner, ok := clarity.UnwrapResponse(v)
	if !ok {
		s.logger.DebugContext(ctx, "asset_service: get-asset returned err",
			slog.String("owner", owner),
			slog.Uint64("asset_id", assetID),
			slog.String("result", v.String()),
		)
		return rec, nil
	}
	inner, present := clarity.UnwrapOptional(inner)
	if !present {
		return rec, nil
	}

	rec.Found = true
	switch n := clarity.ToNative(inner).(type) {
	case map[string]any:
		rec.Fields = n
	default:
		rec.Fields = map[string]any{"value": n}
	}
	return rec, nil
}
