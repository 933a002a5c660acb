package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// multipartThreshold is the batch size above which archives are uploaded in
// parts.
const multipartThreshold = 16 << 20

// SnapshotArchiver writes batches of marketplace snapshots to object
// storage as JSONL, one file per run, and records each run in the audit
// log. Snapshots are never read back by the service.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewSnapshotArchiver creates a SnapshotArchiver. audit may be nil.
func NewSnapshotArchiver(writer domain.BlobWriter, audit domain.AuditStore) *SnapshotArchiver {
	return &SnapshotArchiver{writer: writer, audit: audit}
}

// Archive uploads snaps to archive/marketplace/YYYY-MM-DD/HHMMSS.jsonl for
// the time at and returns the object path. An empty batch writes nothing
// and returns "".
func (a *SnapshotArchiver) Archive(ctx context.Context, snaps []domain.MarketplaceData, at time.Time) (string, error) {
	if len(snaps) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshots: %w", err)
	}

	path := snapshotArchivePath(at)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold/2)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshots: %w", err)
	}

	if a.audit != nil {
		addrs := make([]string, len(snaps))
		for i, s := range snaps {
			addrs[i] = s.Address
		}
		if err := a.audit.Log(ctx, "archive.marketplace", map[string]any{
			"path":      path,
			"count":     len(snaps),
			"addresses": addrs,
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive snapshots audit: %w", err)
		}
	}
	return path, nil
}

func snapshotArchivePath(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("archive/marketplace/%s/%s.jsonl", at.Format("2006-01-02"), at.Format("150405"))
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
