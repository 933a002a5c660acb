package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// ListingStore implements domain.ListingStore: the indexer's copy of the
// listings-ft map.
type ListingStore struct {
	db DB
}

// NewListingStore creates a new ListingStore.
func NewListingStore(db DB) *ListingStore {
	return &ListingStore{db: db}
}

// UpsertBatch writes every listing in one round trip, stamping each with
// the tip height it was read at.
func (s *ListingStore) UpsertBatch(ctx context.Context, listings []domain.Listing, tipHeight uint64) error {
	if len(listings) == 0 {
		return nil
	}

	const query = `
		INSERT INTO listings (
			id, maker, taker, asset_contract, amount, price,
			payment_asset_contract, expiry, indexed_tip, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			maker = EXCLUDED.maker,
			taker = EXCLUDED.taker,
			asset_contract = EXCLUDED.asset_contract,
			amount = EXCLUDED.amount,
			price = EXCLUDED.price,
			payment_asset_contract = EXCLUDED.payment_asset_contract,
			expiry = EXCLUDED.expiry,
			indexed_tip = EXCLUDED.indexed_tip,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(query,
			int64(l.ID), l.Maker, l.Taker, l.AssetContract, int64(l.Amount), int64(l.Price),
			l.PaymentAssetContract, int64(l.Expiry), int64(tipHeight))
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := range listings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert listing %d: %w", listings[i].ID, err)
		}
	}
	return nil
}

// ListActive returns listings still open at tipHeight, ordered by id.
func (s *ListingStore) ListActive(ctx context.Context, tipHeight uint64, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `
		SELECT id, maker, taker, asset_contract, amount, price, payment_asset_contract, expiry
		FROM listings WHERE expiry > $1 ORDER BY id`
	args := []any{int64(tipHeight)}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	out := []domain.Listing{}
	for rows.Next() {
		var l domain.Listing
		var id, amount, price, expiry int64
		if err := rows.Scan(&id, &l.Maker, &l.Taker, &l.AssetContract,
			&amount, &price, &l.PaymentAssetContract, &expiry); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		l.ID, l.Amount, l.Price, l.Expiry = uint64(id), uint64(amount), uint64(price), uint64(expiry)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	return out, nil
}

// MaxID returns the highest indexed listing id, or -1 when none are stored.
func (s *ListingStore) MaxID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), -1) FROM listings`).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: max listing id: %w", err)
	}
	return id, nil
}

// DeleteIDs removes listings that no longer exist in the contract map.
func (s *ListingStore) DeleteIDs(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM listings WHERE id = ANY($1)`, keys); err != nil {
		return fmt.Errorf("postgres: delete listings: %w", err)
	}
	return nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
