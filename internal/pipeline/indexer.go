package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/service"
)

// ListingScanner reads every entry of the listings map.
type ListingScanner interface {
	ScanListings(ctx context.Context, sender string) (service.ListingScan, error)
}

// IndexObserver records the outcome of an index run.
type IndexObserver interface {
	ObserveIndex(outcome string, present int)
}

// Indexer copies the marketplace listings map into the listing store so
// the API can page through listings without a chain read per entry.
type Indexer struct {
	scanner  ListingScanner
	store    domain.ListingStore
	observer IndexObserver
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. observer may be nil.
func NewIndexer(scanner ListingScanner, store domain.ListingStore, observer IndexObserver, logger *slog.Logger) *Indexer {
	return &Indexer{scanner: scanner, store: store, observer: observer, logger: logger}
}

// IndexResult summarises one run.
type IndexResult struct {
	TipHeight uint64
	Upserted  int
	Deleted   int
}

// Run performs one full pass: upsert every present entry, then delete ids
// the map no longer holds, including any stored beyond the current nonce.
func (ix *Indexer) Run(ctx context.Context) (IndexResult, error) {
	scan, err := ix.scanner.ScanListings(ctx, "")
	if err != nil {
		ix.observe("failed", 0)
		return IndexResult{}, fmt.Errorf("indexer: scan: %w", err)
	}

	if err := ix.store.UpsertBatch(ctx, scan.Present, scan.TipHeight); err != nil {
		ix.observe("failed", 0)
		return IndexResult{}, fmt.Errorf("indexer: %w", err)
	}

	stale := scan.Missing
	nonce := uint64(len(scan.Present) + len(scan.Missing))
	maxID, err := ix.store.MaxID(ctx)
	if err != nil {
		ix.observe("failed", 0)
		return IndexResult{}, fmt.Errorf("indexer: %w", err)
	}
	for id := int64(nonce); id <= maxID; id++ {
		stale = append(stale, uint64(id))
	}
	if err := ix.store.DeleteIDs(ctx, stale); err != nil {
		ix.observe("failed", 0)
		return IndexResult{}, fmt.Errorf("indexer: %w", err)
	}

	res := IndexResult{TipHeight: scan.TipHeight, Upserted: len(scan.Present), Deleted: len(stale)}
	ix.observe("ok", len(scan.Active()))
	ix.logger.InfoContext(ctx, "indexer: run complete",
		slog.Uint64("tip_height", res.TipHeight),
		slog.Int("upserted", res.Upserted),
		slog.Int("deleted", res.Deleted),
	)
	return res, nil
}

// RunLoop runs once immediately, then on every tick and every trigger,
// until ctx is cancelled. Failed runs are logged and retried on the next
// tick.
func (ix *Indexer) RunLoop(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	run := func() {
		if _, err := ix.Run(ctx); err != nil && ctx.Err() == nil {
			ix.logger.ErrorContext(ctx, "indexer: run failed", slog.String("error", err.Error()))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ix.logger.Info("indexer: loop stopped")
			return ctx.Err()
		case <-ticker.C:
			run()
		case <-trigger:
			ix.logger.InfoContext(ctx, "indexer: triggered run")
			run()
		}
	}
}

func (ix *Indexer) observe(outcome string, present int) {
	if ix.observer != nil {
		ix.observer.ObserveIndex(outcome, present)
	}
}
