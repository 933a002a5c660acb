package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/propertyx/internal/config"
	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/crypto"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks"
	"github.com/alanyoungcy/propertyx/internal/service"
	"github.com/alanyoungcy/propertyx/internal/wallet"
)

// services is the domain graph shared by every mode. Tokenization is nil
// unless both Postgres and S3 are wired.
type services struct {
	Contracts    service.Contracts
	Wallet       *wallet.Manager
	Adapter      *contract.Adapter
	Aggregator   *service.Aggregator
	View         *service.MarketplaceView
	Marketplace  *service.MarketplaceService
	Staking      *service.StakingService
	Tokenization *service.TokenizationService
	Admin        *service.AdminService
	Assets       *service.AssetService
}

// parseContracts resolves the configured contract ids.
func parseContracts(cfg config.ContractsConfig) (service.Contracts, error) {
	var out service.Contracts
	for _, c := range []struct {
		id  string
		dst *domain.ContractRef
	}{
		{cfg.Marketplace, &out.Marketplace},
		{cfg.MarketplaceFulfill, &out.MarketplaceFulfill},
		{cfg.RWS, &out.RWS},
		{cfg.NFT, &out.NFT},
		{cfg.Asset, &out.Asset},
	} {
		ref, err := domain.ParseContractRef(c.id)
		if err != nil {
			return out, err
		}
		*c.dst = ref
	}
	return out, nil
}

// newProvider returns the key-backed wallet provider, or the keyless one
// when no key is configured.
func newProvider(cfg *config.Config, chain wallet.TxChain) (wallet.Provider, error) {
	if !cfg.HasKey() {
		return wallet.NoKey(), nil
	}
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}
	return wallet.NewKeyProvider(signer, chain, stacks.Network(cfg.Stacks.Network), cfg.Stacks.DefaultFee), nil
}

func buildServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*services, error) {
	contracts, err := parseContracts(cfg.Contracts)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg, deps.Stacks)
	if err != nil {
		return nil, err
	}

	manager := wallet.NewManager(wallet.ManagerConfig{
		Provider: provider,
		Chain:    deps.Stacks,
		RWS:      contracts.RWS,
		Sessions: deps.Sessions,
		Events:   deps.Events,
		Logger:   logger,
	})

	sender := cfg.Stacks.DefaultSender
	if sender == "" {
		sender = provider.Account()
	}
	if sender == "" {
		sender = contracts.Marketplace.Address
	}

	adapter := contract.NewAdapter(contract.AdapterConfig{
		Sessions:      manager,
		Submitter:     provider,
		Chain:         deps.Stacks,
		Locks:         deps.Locks,
		Transactions:  deps.Transactions,
		Audit:         deps.Audit,
		Events:        deps.Events,
		Observer:      deps.Metrics,
		DefaultSender: sender,
		DedupWindow:   cfg.Marketplace.DedupWindow.Duration,
		Logger:        logger,
	})

	aggCfg := service.AggregatorConfig{
		Chain:              deps.Stacks,
		IPFS:               deps.IPFS,
		Metadata:           deps.Metadata,
		Events:             deps.Events,
		Observer:           deps.Metrics,
		Marketplace:        contracts.Marketplace,
		MaxConcurrentReads: cfg.Marketplace.MaxConcurrentReads,
		MaxListings:        cfg.Marketplace.MaxListings,
		Logger:             logger.With(slog.String("component", "aggregator")),
	}
	if deps.Documents != nil {
		aggCfg.Documents = deps.Documents
	}
	agg := service.NewAggregator(aggCfg)
	view := service.NewMarketplaceView(agg, deps.Snapshots, cfg.Marketplace.SnapshotTTL.Duration, logger).
		WithTxStatus(adapter).
		WithPendingTTL(cfg.Marketplace.PendingTTL.Duration)

	svc := &services{
		Contracts:  contracts,
		Wallet:     manager,
		Adapter:    adapter,
		Aggregator: agg,
		View:       view,
		Marketplace: service.NewMarketplaceService(adapter, manager, deps.Stacks, view, contracts,
			logger.With(slog.String("component", "marketplace_service"))),
		Staking: service.NewStakingService(adapter, manager, deps.Stacks, view, contracts,
			cfg.Marketplace.StakeDenylist, logger.With(slog.String("component", "staking_service"))),
		Admin:  service.NewAdminService(adapter, manager, contracts, logger.With(slog.String("component", "admin_service"))),
		Assets: service.NewAssetService(adapter, contracts, logger.With(slog.String("component", "asset_service"))),
	}

	if deps.Proposals != nil && deps.Documents != nil {
		svc.Tokenization = service.NewTokenizationService(service.TokenizationConfig{
			Caller:     adapter,
			Sessions:   manager,
			Documents:  deps.Documents,
			Proposals:  deps.Proposals,
			Events:     deps.Events,
			Notifier:   deps.Events,
			Contracts:  contracts,
			VotePeriod: cfg.Marketplace.VotePeriod.Duration,
			Logger:     logger.With(slog.String("component", "tokenization_service")),
		})
	}
	return svc, nil
}

// startWallet connects the configured key, or restores a session persisted
// by an earlier run.
func (a *App) startWallet(ctx context.Context, svc *services) error {
	if a.cfg.Wallet.AutoConnect {
		s, err := svc.Wallet.Connect(ctx)
		if err != nil {
			return fmt.Errorf("wallet auto-connect: %w", err)
		}
		a.logger.InfoContext(ctx, "wallet auto-connected", slog.String("address", s.Address))
		return nil
	}
	restored, err := svc.Wallet.Restore(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "wallet session restore failed", slog.String("error", err.Error()))
		return nil
	}
	if restored {
		a.logger.InfoContext(ctx, "wallet session restored", slog.String("address", svc.Wallet.Session().Address))
	}
	return nil
}
