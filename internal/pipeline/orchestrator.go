package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Cleaner drops expired in-memory entries.
type Cleaner interface {
	Cleanup()
}

// Config holds the pipeline schedule.
type Config struct {
	IndexInterval   time.Duration
	ArchiveCron     string
	CleanupInterval time.Duration
}

// Orchestrator runs the background jobs: listing indexing, snapshot
// archival, and call-dedup cleanup. Any of them may be nil.
type Orchestrator struct {
	indexer  *Indexer
	archiver *Archiver
	cleaner  Cleaner
	trigger  <-chan struct{}
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. trigger feeds on-demand index
// runs and may be nil.
func NewOrchestrator(indexer *Indexer, archiver *Archiver, cleaner Cleaner, trigger <-chan struct{}, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.IndexInterval <= 0 {
		cfg.IndexInterval = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &Orchestrator{
		indexer:  indexer,
		archiver: archiver,
		cleaner:  cleaner,
		trigger:  trigger,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run starts the configured jobs as concurrent goroutines using an errgroup.
// If any job returns a non-context error, the errgroup cancels the shared
// context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline: orchestrator starting",
		slog.Bool("indexer", o.indexer != nil),
		slog.Bool("archiver", o.archiver != nil),
		slog.Duration("index_interval", o.cfg.IndexInterval),
		slog.String("archive_cron", o.cfg.ArchiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.indexer != nil {
		g.Go(func() error {
			err := o.indexer.RunLoop(ctx, o.cfg.IndexInterval, o.trigger)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("indexer: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.cfg.ArchiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if o.cleaner != nil {
		g.Go(func() error {
			ticker := time.NewTicker(o.cfg.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					o.cleaner.Cleanup()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline: orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline: orchestrator stopped cleanly")
	return nil
}
