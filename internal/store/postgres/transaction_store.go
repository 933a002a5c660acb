package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// TransactionStore implements domain.TransactionStore.
type TransactionStore struct {
	db DB
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const txCols = `tx_id, sender, contract, function, args, nonce, fee, status, submitted_at`

// Insert records a submitted transaction.
func (s *TransactionStore) Insert(ctx context.Context, t domain.Transaction) error {
	args := t.Args
	if args == nil {
		args = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (`+txCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.TxID, t.Sender, t.Contract, t.Function, args,
		int64(t.Nonce), int64(t.Fee), string(t.Status), t.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert tx %s: %w", t.TxID, err)
	}
	return nil
}

// UpdateStatus returns domain.ErrNotFound for an unknown txID.
func (s *TransactionStore) UpdateStatus(ctx context.Context, txID string, status domain.TxStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE tx_id = $2`,
		string(status), txID)
	if err != nil {
		return fmt.Errorf("postgres: update tx status %s: %w", txID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var t domain.Transaction
	var nonce, fee int64
	var status string
	if err := row.Scan(&t.TxID, &t.Sender, &t.Contract, &t.Function, &t.Args,
		&nonce, &fee, &status, &t.SubmittedAt); err != nil {
		return domain.Transaction{}, err
	}
	t.Nonce = uint64(nonce)
	t.Fee = uint64(fee)
	t.Status = domain.TxStatus(status)
	return t, nil
}

// GetByID returns domain.ErrNotFound for an unknown txID.
func (s *TransactionStore) GetByID(ctx context.Context, txID string) (domain.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+txCols+` FROM transactions WHERE tx_id = $1`, txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, domain.ErrNotFound
		}
		return t, fmt.Errorf("postgres: get tx %s: %w", txID, err)
	}
	return t, nil
}

// ListBySender returns sender's transactions, newest first.
func (s *TransactionStore) ListBySender(ctx context.Context, sender string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query, args := appendListOpts(
		`SELECT `+txCols+` FROM transactions WHERE sender = $1`,
		[]any{sender}, 2, "submitted_at", opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list txs for %s: %w", sender, err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan tx: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list txs for %s: %w", sender, err)
	}
	return out, nil
}

var _ domain.TransactionStore = (*TransactionStore)(nil)
