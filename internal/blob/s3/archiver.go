package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// auditPageSize caps how many audit rows are pulled per query while
// assembling an export.
const auditPageSize = 500

// MarketArchiveStore provides the read access the archiver needs. The
// Postgres store satisfies it; the archiver never touches write paths.
type MarketArchiveStore interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListClaims(ctx context.Context, marketID string) ([]domain.Claim, error)
}

// MarketSnapshot is the exported form of a settled market: the resolved
// record plus every claim paid against it. Encrypted tallies are excluded
// from the market's JSON form, so snapshots carry only revealed totals.
type MarketSnapshot struct {
	Market     domain.Market  `json:"market"`
	Claims     []domain.Claim `json:"claims"`
	ExportedAt time.Time      `json:"exportedAt"`
}

// Archiver exports resolved markets and the audit log to object storage.
// Exports are additive; nothing is deleted from the primary store here.
type Archiver struct {
	writer  BlobWriter
	markets MarketArchiveStore
	audit   domain.AuditReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer BlobWriter, markets MarketArchiveStore, audit domain.AuditReader, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		markets: markets,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveMarket snapshots one resolved market and its claims to
// archive/markets/<id>.json. Unresolved markets are refused so exports
// never capture in-flight state.
func (a *Archiver) ArchiveMarket(ctx context.Context, id string) error {
	market, err := a.markets.GetMarket(ctx, id)
	if err != nil {
		return fmt.Errorf("s3blob: archive market query: %w", err)
	}
	if !market.Resolved {
		return fmt.Errorf("s3blob: archive market %s: %w", id, domain.ErrNotResolved)
	}

	claims, err := a.markets.ListClaims(ctx, id)
	if err != nil {
		return fmt.Errorf("s3blob: archive market claims: %w", err)
	}

	snapshot := MarketSnapshot{
		Market:     market,
		Claims:     claims,
		ExportedAt: a.now(),
	}

	buf, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: archive market marshal: %w", err)
	}

	path := fmt.Sprintf("archive/markets/%s.json", id)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive market upload: %w", err)
	}

	a.logger.Info("market snapshot exported",
		slog.String("marketID", id),
		slog.String("path", path),
		slog.Int("claims", len(claims)),
	)
	return nil
}

// ArchiveAudit exports all audit entries with an ID greater than sinceID as
// one JSONL object under archive/audit/, partitioned by export month. It
// returns the number of entries written and the highest ID included, which
// the caller persists as the next cursor.
func (a *Archiver) ArchiveAudit(ctx context.Context, sinceID int64) (int64, int64, error) {
	var entries []domain.AuditEntry
	cursor := sinceID

	for {
		page, err := a.audit.ListAudit(ctx, cursor, auditPageSize)
		if err != nil {
			return 0, sinceID, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		if len(page) == 0 {
			break
		}
		entries = append(entries, page...)
		cursor = page[len(page)-1].ID
		if len(page) < auditPageSize {
			break
		}
	}

	if len(entries) == 0 {
		return 0, sinceID, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, sinceID, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := auditPath(a.now(), sinceID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, sinceID, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))
	a.logger.Info("audit log exported",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("lastID", cursor),
	)
	return count, cursor, nil
}

// auditPath builds the object key for an audit export, partitioned by the
// export month and disambiguated by the starting cursor.
//
//	archive/audit/2025-06/after-000000000120.jsonl
func auditPath(at time.Time, sinceID int64) string {
	return fmt.Sprintf("archive/audit/%s/after-%012d.jsonl", at.Format("2006-01"), sinceID)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
