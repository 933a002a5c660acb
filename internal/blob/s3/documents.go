package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// maxDocumentSize bounds metadata documents read back from storage.
const maxDocumentSize = 1 << 20

// DocumentStore keeps tokenization metadata documents addressed by their
// CID under metadata/{cid}.json. Writes are idempotent: a CID that already
// exists is not uploaded again.
type DocumentStore struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(writer domain.BlobWriter, reader domain.BlobReader) *DocumentStore {
	return &DocumentStore{writer: writer, reader: reader}
}

// Put stores doc under id, which must be a valid CID.
func (d *DocumentStore) Put(ctx context.Context, id string, doc []byte) error {
	path, err := documentPath(id)
	if err != nil {
		return err
	}
	exists, err := d.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: put document %s: %w", id, err)
	}
	if exists {
		return nil
	}
	if err := d.writer.Put(ctx, path, bytes.NewReader(doc), "application/json"); err != nil {
		return fmt.Errorf("s3blob: put document %s: %w", id, err)
	}
	return nil
}

// Get returns the document stored under id, or domain.ErrNotFound.
func (d *DocumentStore) Get(ctx context.Context, id string) ([]byte, error) {
	path, err := documentPath(id)
	if err != nil {
		return nil, err
	}
	rc, err := d.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read document %s: %w", id, err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("s3blob: document %s: %w: larger than %d bytes", id, domain.ErrInvalidInput, maxDocumentSize)
	}
	return data, nil
}

// documentPath validates id and renders it in its canonical string form.
func documentPath(id string) (string, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return "", fmt.Errorf("s3blob: document id %q: %w", id, errors.Join(domain.ErrInvalidInput, err))
	}
	return "metadata/" + c.String() + ".json", nil
}
