package domain

import (
	"context"
	"time"
)

// LedgerTx is the mutation surface available inside one atomic ledger
// transaction. Implementations guarantee all-or-nothing application: if the
// transaction function returns an error, none of the writes are visible.
type LedgerTx interface {
	// Markets.
	GetMarket(ctx context.Context, id string) (Market, error)
	InsertMarket(ctx context.Context, m Market) error
	UpdateMarket(ctx context.Context, m Market) error
	MarketByRequestID(ctx context.Context, requestID string) (Market, error)

	// Votes.
	GetVote(ctx context.Context, marketID, voter string) (Vote, error)
	InsertVote(ctx context.Context, v Vote) error

	// Claims.
	HasClaimed(ctx context.Context, marketID, voter string) (bool, error)
	InsertClaim(ctx context.Context, c Claim) error

	// Treasury.
	GetTreasury(ctx context.Context) (Treasury, error)
	SetTreasury(ctx context.Context, t Treasury) error

	// Audit trail, append-only.
	AppendAudit(ctx context.Context, event string, detail map[string]any) error
}

// LedgerStore persists the full ledger state and provides the transaction
// boundary that makes every operation atomic.
type LedgerStore interface {
	// ExecTx runs fn inside a transaction. Any error from fn aborts the
	// transaction and is returned unwrapped so sentinel errors survive.
	ExecTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// Read-only queries outside the transaction boundary.
	GetMarket(ctx context.Context, id string) (Market, error)
	MarketIDs(ctx context.Context) ([]string, error)
	CountMarkets(ctx context.Context) (int64, error)
	HasVoted(ctx context.Context, marketID, voter string) (bool, error)
	HasClaimed(ctx context.Context, marketID, voter string) (bool, error)
	GetTreasury(ctx context.Context) (Treasury, error)
	ListClaims(ctx context.Context, marketID string) ([]Claim, error)
}

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditReader lists audit entries for export. Implemented by stores that
// retain the log (the archiver reads through this).
type AuditReader interface {
	ListAudit(ctx context.Context, sinceID int64, limit int) ([]AuditEntry, error)
}
