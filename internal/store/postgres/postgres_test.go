package postgres

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/px?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "px", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	mock := newMock(t)
	fsys := fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("CREATE TABLE a (id INT)")},
		"migrations/002_b.sql": {Data: []byte("CREATE TABLE b (id INT)")},
		"migrations/README":    {Data: []byte("not sql")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_a.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("002_b.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_b.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, runMigrations(context.Background(), mock, fsys))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"proposals", "proposal_votes", "transactions", "listings", "audit_log"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func proposalRow(p domain.TokenizationProposal) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "asset_owner", "asset_id", "asset_name", "description",
		"requested_value", "ipfs_data", "votes_yes", "votes_no", "vote_ends", "tx_id", "created_at",
	}).AddRow(p.ID, p.AssetOwner, int64(p.AssetID), p.AssetName, p.Description,
		int64(p.RequestedValue), p.IPFSData, int64(p.Votes.Yes), int64(p.Votes.No),
		p.VoteEnds, p.TxID, p.CreatedAt)
}

func TestProposalStoreGetByID(t *testing.T) {
	mock := newMock(t)
	store := NewProposalStore(mock)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	want := domain.TokenizationProposal{
		ID: "p1", AssetOwner: "ST1", AssetID: 7, AssetName: "Villa",
		RequestedValue: 5_000_000, IPFSData: "ipfs://bafy", Votes: domain.Votes{Yes: 2, No: 1},
		VoteEnds: now.Add(time.Hour), TxID: "0xab", CreatedAt: now,
	}
	mock.ExpectQuery("SELECT .* FROM proposals WHERE id = \\$1").WithArgs("p1").
		WillReturnRows(proposalRow(want))
	mock.ExpectQuery("SELECT .* FROM proposals WHERE id = \\$1").WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProposalStoreCreateDuplicate(t *testing.T) {
	mock := newMock(t)
	store := NewProposalStore(mock)

	mock.ExpectExec("INSERT INTO proposals").
		WithArgs("p1", "ST1", int64(7), "Villa", "", int64(0), "", int64(0), int64(0),
			pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	err := store.Create(context.Background(), domain.TokenizationProposal{
		ID: "p1", AssetOwner: "ST1", AssetID: 7, AssetName: "Villa",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestProposalStoreRecordVote(t *testing.T) {
	mock := newMock(t)
	store := NewProposalStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT TRUE FROM proposals").WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"bool"}).AddRow(true))
	mock.ExpectExec("INSERT INTO proposal_votes").WithArgs("p1", "ST2", true, "0xcd").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE proposals SET votes_yes").WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.RecordVote(context.Background(), "p1", "ST2", true, "0xcd"))
}

func TestProposalStoreRecordVoteOncePerVoter(t *testing.T) {
	mock := newMock(t)
	store := NewProposalStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT TRUE FROM proposals").WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"bool"}).AddRow(true))
	mock.ExpectExec("INSERT INTO proposal_votes").WithArgs("p1", "ST2", false, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	err := store.RecordVote(context.Background(), "p1", "ST2", false, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestProposalStoreRecordVoteUnknownProposal(t *testing.T) {
	mock := newMock(t)
	store := NewProposalStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT TRUE FROM proposals").WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.RecordVote(context.Background(), "nope", "ST2", true, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionStoreUpdateStatusNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewTransactionStore(mock)

	mock.ExpectExec("UPDATE transactions SET status").WithArgs("success", "0xab").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateStatus(context.Background(), "0xab", domain.TxStatusSuccess)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionStoreInsert(t *testing.T) {
	mock := newMock(t)
	store := NewTransactionStore(mock)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("0xab", "ST1", "ST2.marketplace", "cancel-listing-ft", []string{"u1", "'ST3.token"},
			int64(4), int64(2000), "submitted", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), domain.Transaction{
		TxID: "0xab", Sender: "ST1", Contract: "ST2.marketplace", Function: "cancel-listing-ft",
		Args: []string{"u1", "'ST3.token"}, Nonce: 4, Fee: 2000,
		Status: domain.TxStatusSubmitted, SubmittedAt: at,
	}))
}

func TestListingStoreMaxIDAndListActive(t *testing.T) {
	mock := newMock(t)
	store := NewListingStore(mock)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(id\\), -1\\) FROM listings").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(int64(-1)))
	mock.ExpectQuery("FROM listings WHERE expiry > \\$1 ORDER BY id LIMIT \\$2").
		WithArgs(int64(100), 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "maker", "taker", "asset_contract", "amount", "price", "payment_asset_contract", "expiry",
		}).AddRow(int64(3), "ST1", "", "ST2.token", int64(50), int64(9), "", int64(150)))

	id, err := store.MaxID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), id)

	ls, err := store.ListActive(context.Background(), 100, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, domain.Listing{ID: 3, Maker: "ST1", AssetContract: "ST2.token", Amount: 50, Price: 9, Expiry: 150}, ls[0])
}

func TestListingStoreUpsertBatchEmpty(t *testing.T) {
	mock := newMock(t)
	require.NoError(t, NewListingStore(mock).UpsertBatch(context.Background(), nil, 10))
}

func TestListingStoreDeleteIDs(t *testing.T) {
	mock := newMock(t)
	store := NewListingStore(mock)

	mock.ExpectExec("DELETE FROM listings WHERE id = ANY").WithArgs([]int64{4, 9}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, store.DeleteIDs(context.Background(), []uint64{4, 9}))
	require.NoError(t, store.DeleteIDs(context.Background(), nil))
}
