package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// AuditStream implements domain.AuditStore on the capped audit stream. It
// backs the audit log when no database is configured, so only the most
// recent entries are retained.
type AuditStream struct {
	bus *SignalBus
	now func() time.Time
}

// NewAuditStream creates an AuditStream writing to domain.StreamAudit.
func NewAuditStream(bus *SignalBus) *AuditStream {
	return &AuditStream{bus: bus, now: time.Now}
}

type auditRecord struct {
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Log appends an entry.
func (a *AuditStream) Log(ctx context.Context, event string, detail map[string]any) error {
	payload, err := json.Marshal(auditRecord{Event: event, Detail: detail, CreatedAt: a.now().UTC()})
	if err != nil {
		return fmt.Errorf("redis: encode audit %s: %w", event, err)
	}
	return a.bus.StreamAppend(ctx, domain.StreamAudit, payload)
}

// List returns entries newest first. Entry ids are the millisecond part of
// the stream id.
func (a *AuditStream) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	msgs, err := a.bus.StreamRead(ctx, domain.StreamAudit, "0", int(streamMaxLen))
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(msgs))
	for _, m := range msgs {
		var rec auditRecord
		if err := json.Unmarshal(m.Payload, &rec); err != nil {
			continue
		}
		if opts.Since != nil && rec.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && rec.CreatedAt.After(*opts.Until) {
			continue
		}
		ms, _, _ := strings.Cut(m.ID, "-")
		id, _ := strconv.ParseInt(ms, 10, 64)
		entries = append(entries, domain.AuditEntry{
			ID:        id,
			Event:     rec.Event,
			Detail:    rec.Detail,
			CreatedAt: rec.CreatedAt,
		})
	}
	slices.Reverse(entries)

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return []domain.AuditEntry{}, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStream)(nil)
