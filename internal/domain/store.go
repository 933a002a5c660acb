package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ProposalStore persists tokenization proposals and their vote tallies.
type ProposalStore interface {
	Create(ctx context.Context, p TokenizationProposal) error
	GetByID(ctx context.Context, id string) (TokenizationProposal, error)
	GetByAsset(ctx context.Context, owner string, assetID uint64) (TokenizationProposal, error)
	List(ctx context.Context, activeOnly bool, opts ListOpts) ([]TokenizationProposal, error)
	RecordVote(ctx context.Context, id, voter string, yes bool, txID string) error
}

// TransactionStore persists submitted contract calls.
type TransactionStore interface {
	Insert(ctx context.Context, tx Transaction) error
	UpdateStatus(ctx context.Context, txID string, status TxStatus) error
	GetByID(ctx context.Context, txID string) (Transaction, error)
	ListBySender(ctx context.Context, sender string, opts ListOpts) ([]Transaction, error)
}

// ListingStore keeps the latest indexed copy of every marketplace listing.
type ListingStore interface {
	UpsertBatch(ctx context.Context, listings []Listing, tipHeight uint64) error
	ListActive(ctx context.Context, tipHeight uint64, opts ListOpts) ([]Listing, error)
	MaxID(ctx context.Context) (int64, error)
	DeleteIDs(ctx context.Context, ids []uint64) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
