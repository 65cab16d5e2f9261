// Package ledger implements the belief market settlement core: market
// creation, encrypted vote bookkeeping, the decryption bridge to the external
// oracle, prize and refund settlement, and the platform treasury.
//
// Every operation executes inside the store's transaction boundary, so a
// returned error always means no state changed. Lifecycle events are emitted
// only after the transaction has committed.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// Ledger owns all market state transitions. Markets are independent units;
// no operation reads one market to decide another's transition.
type Ledger struct {
	store   domain.LedgerStore
	cipher  domain.Cipher
	gateway domain.DecryptionGateway
	rules   Rules
	owner   string
	sink    domain.EventSink
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures optional Ledger behaviour.
type Option func(*Ledger)

// WithEventSink attaches a sink that receives events after commit.
func WithEventSink(sink domain.EventSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger. The owner address is normalized once here; owner
// checks later are plain string comparisons.
func New(
	store domain.LedgerStore,
	cipher domain.Cipher,
	gateway domain.DecryptionGateway,
	rules Rules,
	owner string,
	logger *slog.Logger,
	opts ...Option,
) (*Ledger, error) {
	normOwner, err := domain.NormalizeAddress(owner)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		store:   store,
		cipher:  cipher,
		gateway: gateway,
		rules:   rules,
		owner:   normOwner,
		logger:  logger.With(slog.String("component", "ledger")),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Owner returns the normalized owner address.
func (l *Ledger) Owner() string { return l.owner }

// emit delivers an event to the sink, if one is attached. Called only after
// the transaction producing the event has committed.
func (l *Ledger) emit(eventType domain.EventType, marketID string, data map[string]any) {
	if l.sink == nil {
		return
	}
	l.sink.Emit(domain.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		MarketID: marketID,
		Data:     data,
		At:       l.now(),
	})
}

// GetMarket returns the market record, or the zero record when the ID is
// unknown. Lookups never fail so UIs can poll freely.
func (l *Ledger) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := l.store.GetMarket(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Market{ID: id}, nil
	}
	return m, err
}

// RevealStatus returns the decryption bridge state for a market. Unknown IDs
// report the zero status.
func (l *Ledger) RevealStatus(ctx context.Context, id string) (domain.RevealStatus, error) {
	m, err := l.GetMarket(ctx, id)
	if err != nil {
		return domain.RevealStatus{}, err
	}
	return m.Reveal(), nil
}

// MarketIDs returns every market identifier in creation order.
func (l *Ledger) MarketIDs(ctx context.Context) ([]string, error) {
	return l.store.MarketIDs(ctx)
}

// CountMarkets returns the number of markets ever created.
func (l *Ledger) CountMarkets(ctx context.Context) (int64, error) {
	return l.store.CountMarkets(ctx)
}

// HasVoted reports whether the participant has voted on the market.
func (l *Ledger) HasVoted(ctx context.Context, marketID, voter string) (bool, error) {
	norm, err := domain.NormalizeAddress(voter)
	if err != nil {
		return false, err
	}
	return l.store.HasVoted(ctx, marketID, norm)
}

// HasClaimed reports whether the participant has withdrawn for the market.
func (l *Ledger) HasClaimed(ctx context.Context, marketID, voter string) (bool, error) {
	norm, err := domain.NormalizeAddress(voter)
	if err != nil {
		return false, err
	}
	return l.store.HasClaimed(ctx, marketID, norm)
}

// PlatformStake returns the fee currently required to create a market.
func (l *Ledger) PlatformStake(ctx context.Context) (uint64, error) {
	t, err := l.store.GetTreasury(ctx)
	if err != nil {
		return 0, err
	}
	return t.PlatformStake, nil
}

// TreasuryBalance returns the accumulated creation fees.
func (l *Ledger) TreasuryBalance(ctx context.Context) (uint64, error) {
	t, err := l.store.GetTreasury(ctx)
	if err != nil {
		return 0, err
	}
	return t.Balance, nil
}
