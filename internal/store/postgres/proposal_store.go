package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for a unique-constraint failure.
const pgUniqueViolation = "23505"

// ProposalStore implements domain.ProposalStore.
type ProposalStore struct {
	db  DB
	now func() time.Time
}

// NewProposalStore creates a new ProposalStore.
func NewProposalStore(db DB) *ProposalStore {
	return &ProposalStore{db: db, now: time.Now}
}

const proposalCols = `id, asset_owner, asset_id, asset_name, description,
	requested_value, ipfs_data, votes_yes, votes_no, vote_ends, tx_id, created_at`

// Create inserts p. A second proposal for the same owner and asset id
// returns domain.ErrAlreadyExists.
func (s *ProposalStore) Create(ctx context.Context, p domain.TokenizationProposal) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO proposals (`+proposalCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.AssetOwner, int64(p.AssetID), p.AssetName, p.Description,
		int64(p.RequestedValue), p.IPFSData, int64(p.Votes.Yes), int64(p.Votes.No),
		p.VoteEnds, p.TxID, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("postgres: create proposal %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create proposal %s: %w", p.ID, err)
	}
	return nil
}

func scanProposal(row pgx.Row) (domain.TokenizationProposal, error) {
	var p domain.TokenizationProposal
	var assetID, requested, yes, no int64
	err := row.Scan(&p.ID, &p.AssetOwner, &assetID, &p.AssetName, &p.Description,
		&requested, &p.IPFSData, &yes, &no, &p.VoteEnds, &p.TxID, &p.CreatedAt)
	if err != nil {
		return domain.TokenizationProposal{}, err
	}
	p.AssetID = uint64(assetID)
	p.RequestedValue = uint64(requested)
	p.Votes = domain.Votes{Yes: uint64(yes), No: uint64(no)}
	return p, nil
}

// GetByID returns domain.ErrNotFound for an unknown id.
func (s *ProposalStore) GetByID(ctx context.Context, id string) (domain.TokenizationProposal, error) {
	p, err := scanProposal(s.db.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, domain.ErrNotFound
		}
		return p, fmt.Errorf("postgres: get proposal %s: %w", id, err)
	}
	return p, nil
}

// GetByAsset looks a proposal up by the (owner, asset id) pair the
// vote-tokenize call is keyed on.
func (s *ProposalStore) GetByAsset(ctx context.Context, owner string, assetID uint64) (domain.TokenizationProposal, error) {
	p, err := scanProposal(s.db.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE asset_owner = $1 AND asset_id = $2`,
		owner, int64(assetID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, domain.ErrNotFound
		}
		return p, fmt.Errorf("postgres: get proposal %s/%d: %w", owner, assetID, err)
	}
	return p, nil
}

// List returns proposals newest first; activeOnly keeps those whose vote
// has not ended.
func (s *ProposalStore) List(ctx context.Context, activeOnly bool, opts domain.ListOpts) ([]domain.TokenizationProposal, error) {
	query := `SELECT ` + proposalCols + ` FROM proposals WHERE TRUE`
	var args []any
	next := 1
	if activeOnly {
		query += " AND vote_ends > $1"
		args = append(args, s.now())
		next++
	}
	query, args = appendListOpts(query, args, next, "created_at", opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	defer rows.Close()

	out := []domain.TokenizationProposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	return out, nil
}

// RecordVote stores voter's vote and bumps the tally in one transaction.
// Each voter counts once per proposal; a repeat returns
// domain.ErrAlreadyExists.
func (s *ProposalStore) RecordVote(ctx context.Context, id, voter string, yes bool, txID string) error {
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT TRUE FROM proposals WHERE id = $1 FOR UPDATE`, id,
		).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO proposal_votes (proposal_id, voter, vote, tx_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (proposal_id, voter) DO NOTHING`,
			id, voter, yes, txID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyExists
		}

		col := "votes_no"
		if yes {
			col = "votes_yes"
		}
		_, err = tx.Exec(ctx, `UPDATE proposals SET `+col+` = `+col+` + 1 WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: record vote on %s: %w", id, err)
	}
	return nil
}

var _ domain.ProposalStore = (*ProposalStore)(nil)
