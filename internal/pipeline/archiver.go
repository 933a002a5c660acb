package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// SnapshotSource assembles a marketplace snapshot for an address.
type SnapshotSource interface {
	FetchMarketplaceData(ctx context.Context, address string) (domain.MarketplaceData, error)
}

// SnapshotArchive writes a batch of snapshots to cold storage.
type SnapshotArchive interface {
	Archive(ctx context.Context, snaps []domain.MarketplaceData, at time.Time) (string, error)
}

// ArchiveObserver records the outcome of an archive run.
type ArchiveObserver interface {
	ObserveArchive(outcome string)
}

// Archiver snapshots the marketplace as seen by a set of watched addresses
// and writes the batch to object storage on a cron schedule.
type Archiver struct {
	source    SnapshotSource
	archive   SnapshotArchive
	addresses []string
	observer  ArchiveObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiver creates an Archiver. observer may be nil.
func NewArchiver(source SnapshotSource, archive SnapshotArchive, addresses []string, observer ArchiveObserver, logger *slog.Logger) *Archiver {
	return &Archiver{
		source:    source,
		archive:   archive,
		addresses: addresses,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes a single archive run. An address whose snapshot fails is
// skipped; the run fails only when nothing could be archived.
func (a *Archiver) Run(ctx context.Context) (string, error) {
	at := a.now().UTC()
	a.logger.InfoContext(ctx, "archiver: starting run",
		slog.Int("addresses", len(a.addresses)),
	)

	snaps := make([]domain.MarketplaceData, 0, len(a.addresses))
	var lastErr error
	for _, addr := range a.addresses {
		snap, err := a.source.FetchMarketplaceData(ctx, addr)
		if err != nil {
			lastErr = err
			a.logger.WarnContext(ctx, "archiver: snapshot failed",
				slog.String("address", addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 && lastErr != nil {
		a.observe("failed")
		return "", fmt.Errorf("archiver: no snapshots: %w", lastErr)
	}

	path, err := a.archive.Archive(ctx, snaps, at)
	if err != nil {
		a.observe("failed")
		return path, fmt.Errorf("archiver: %w", err)
	}
	if path == "" {
		a.observe("empty")
		return "", nil
	}

	a.observe("ok")
	a.logger.InfoContext(ctx, "archiver: run complete",
		slog.String("path", path),
		slog.Int("snapshots", len(snaps)),
	)
	return path, nil
}

// RunCron runs the archiver on a standard 5-field cron schedule (UTC) until
// ctx is cancelled. A run still in progress when the next one is due causes
// that one to be skipped.
//
// Example: "0 3 * * *" runs at 03:00 every day.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(expr, func() {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("archiver: parse cron %q: %w", expr, err)
	}

	a.logger.Info("archiver: cron started", slog.String("cron", expr))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("archiver: cron stopped")
	return ctx.Err()
}

// ValidateCron reports whether expr is a valid 5-field schedule.
func ValidateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

func (a *Archiver) observe(outcome string) {
	if a.observer != nil {
		a.observer.ObserveArchive(outcome)
	}
}
