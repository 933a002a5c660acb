package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/propertyx/internal/pipeline"
	"github.com/alanyoungcy/propertyx/internal/server"
	"github.com/alanyoungcy/propertyx/internal/server/handler"
	"github.com/alanyoungcy/propertyx/internal/server/ws"
)

// ServerMode serves the HTTP API and websocket events. Index runs requested
// through the API are refused because no indexer runs in this process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if err := a.startWallet(ctx, svc); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, svc, false, false, nil)
	a.startHTTPServer(ctx, g, deps, svc, nil)
	return g.Wait()
}

// IndexerMode keeps the listing store in step with the marketplace contract.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting indexer mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, svc, true, false, nil)
	return g.Wait()
}

// ArchiverMode snapshots the watched addresses to object storage on the
// archive schedule.
func (a *App) ArchiverMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting archiver mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, svc, false, true, nil)
	return g.Wait()
}

// AllMode runs the HTTP server, the indexer, and the archiver in one
// process. POST /api/pipeline/index requests an immediate index run.
func (a *App) AllMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting all mode")

	if err := a.startWallet(ctx, svc); err != nil {
		return fmt.Errorf("all mode: %w", err)
	}

	trigger := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, svc, true, true, trigger)
	a.startHTTPServer(ctx, g, deps, svc, trigger)
	return g.Wait()
}

// startPipeline adds the background orchestrator to g. The call-dedup
// cleanup always runs; the indexer and archiver only when requested.
func (a *App) startPipeline(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *services,
	withIndexer, withArchiver bool,
	trigger <-chan struct{},
) {
	logger := a.logger.With(slog.String("component", "pipeline"))

	var indexer *pipeline.Indexer
	if withIndexer && deps.Listings != nil {
		indexer = pipeline.NewIndexer(svc.Aggregator, deps.Listings, deps.Metrics, logger)
	}
	var archiver *pipeline.Archiver
	if withArchiver && deps.Archive != nil {
		archiver = pipeline.NewArchiver(svc.Aggregator, deps.Archive, a.cfg.Pipeline.WatchAddresses, deps.Metrics, logger)
	}

	orch := pipeline.NewOrchestrator(indexer, archiver, svc.Adapter.Dedup(), trigger, pipeline.Config{
		IndexInterval: a.cfg.Pipeline.IndexInterval.Duration,
		ArchiveCron:   a.cfg.Pipeline.ArchiveCron,
	}, logger)

	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server, and the websocket hub when a signal
// bus is wired, to g. The server is shut down gracefully when the context is
// cancelled. trigger is optional; when non-nil, POST /api/pipeline/index
// sends on it to request one index run.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *services,
	trigger chan<- struct{},
) {
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger, deps.Pingers),
		Status:      handler.NewStatusHandler(a.cfg.Mode, a.cfg.Stacks.Network),
		Session:     handler.NewSessionHandler(svc.Wallet, a.logger),
		Marketplace: handler.NewMarketplaceHandler(svc.Marketplace, deps.Listings, deps.Stacks, a.logger),
		Staking:     handler.NewStakingHandler(svc.Staking, a.logger),
		Admin:       handler.NewAdminHandler(svc.Admin, a.logger),
		Contracts:   handler.NewContractHandler(svc.Adapter, deps.Transactions, a.logger),
		Assets:      handler.NewAssetHandler(svc.Assets, a.logger),
		Pipeline:    handler.NewPipelineHandler(a.logger),
	}
	if svc.Tokenization != nil {
		handlers.Proposals = handler.NewProposalHandler(svc.Tokenization, a.logger)
	} else {
		a.logger.WarnContext(ctx, "HTTP server: tokenization endpoints disabled (needs postgres and s3)")
	}
	if trigger != nil {
		handlers.Pipeline = handlers.Pipeline.WithTriggerChannel(trigger)
	}

	opts := server.Options{
		Limiter: deps.Limiter,
		Metrics: deps.Metrics,
	}
	if deps.Bus != nil {
		hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			Network:        a.cfg.Stacks.Network,
			StartedAt:      time.Now().UTC(),
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		})
		opts.Hub = hub
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "HTTP server: websocket events disabled (needs redis)")
	}

	srv := server.NewServer(server.Config{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, opts, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
