package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

type memBlobs struct {
	mu   sync.Mutex
	objs map[string][]byte
	puts int
}

func newMemBlobs() *memBlobs { return &memBlobs{objs: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[path] = b
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[path]
	return ok, nil
}

type memAudit struct {
	events []string
	detail []map[string]any
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func rawCID(t *testing.T, data []byte) string {
	t.Helper()
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, mh).String()
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}

func TestSnapshotArchiverWritesJSONL(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewSnapshotArchiver(blobs, audit)
	at := time.Date(2026, 10, 19, 13, 5, 9, 0, time.UTC)

	snaps := []domain.MarketplaceData{
		{Address: "ST1", TipHeight: 10, Browse: []domain.Listing{{ID: 1}}},
		{Address: "ST2", TipHeight: 10},
	}
	path, err := a.Archive(context.Background(), snaps, at)
	require.NoError(t, err)
	assert.Equal(t, "archive/marketplace/2026-10-19/130509.jsonl", path)

	sc := bufio.NewScanner(bytes.NewReader(blobs.objs[path]))
	var addrs []string
	for sc.Scan() {
		var got domain.MarketplaceData
		require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
		addrs = append(addrs, got.Address)
	}
	assert.Equal(t, []string{"ST1", "ST2"}, addrs)

	require.Equal(t, []string{"archive.marketplace"}, audit.events)
	assert.Equal(t, 2, audit.detail[0]["count"])
}

func TestSnapshotArchiverEmptyBatch(t *testing.T) {
	blobs := newMemBlobs()
	path, err := NewSnapshotArchiver(blobs, nil).Archive(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Zero(t, blobs.puts)
}

func TestDocumentStorePutIsIdempotent(t *testing.T) {
	blobs := newMemBlobs()
	store := NewDocumentStore(blobs, blobs)
	ctx := context.Background()

	doc := []byte(`{"name":"Villa"}`)
	id := rawCID(t, doc)

	require.NoError(t, store.Put(ctx, id, doc))
	require.NoError(t, store.Put(ctx, id, doc))
	assert.Equal(t, 1, blobs.puts)

	_, ok := blobs.objs["metadata/"+id+".json"]
	assert.True(t, ok)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestDocumentStoreRejectsBadCID(t *testing.T) {
	store := NewDocumentStore(newMemBlobs(), newMemBlobs())
	err := store.Put(context.Background(), "../../etc/passwd", []byte("{}"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Get(context.Background(), "not-a-cid")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStoreMissing(t *testing.T) {
	blobs := newMemBlobs()
	store := NewDocumentStore(blobs, blobs)
	_, err := store.Get(context.Background(), rawCID(t, []byte("absent")))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
