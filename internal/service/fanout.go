package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/notify"
)

const fanoutTimeout = 5 * time.Second

// Broadcaster pushes events to locally connected clients.
type Broadcaster interface {
	Broadcast(event domain.Event)
}

// MarketArchiver exports a resolved market to long-term storage.
type MarketArchiver interface {
	ArchiveMarket(ctx context.Context, marketID string) error
}

// Fanout is the ledger's event sink. On every committed event it invalidates
// the market cache, publishes to the cross-instance bus, pushes to local
// websocket clients, and alerts operators; resolution additionally snapshots
// the market to blob storage. Delivery is best effort; the ledger transaction
// has already committed and is never rolled back here.
type Fanout struct {
	cache       domain.MarketCache
	bus         domain.EventBus
	broadcaster Broadcaster
	notifier    *notify.Notifier
	archiver    MarketArchiver
	logger      *slog.Logger
}

// NewFanout creates a Fanout. Any of the destinations may be nil.
func NewFanout(
	cache domain.MarketCache,
	bus domain.EventBus,
	broadcaster Broadcaster,
	notifier *notify.Notifier,
	archiver MarketArchiver,
	logger *slog.Logger,
) *Fanout {
	return &Fanout{
		cache:       cache,
		bus:         bus,
		broadcaster: broadcaster,
		notifier:    notifier,
		archiver:    archiver,
		logger:      logger.With(slog.String("component", "fanout")),
	}
}

// Emit implements domain.EventSink.
func (f *Fanout) Emit(event domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()

	if f.cache != nil && event.MarketID != "" {
		if err := f.cache.Invalidate(ctx, event.MarketID); err != nil {
			f.logger.Warn("cache invalidate failed",
				slog.String("market_id", event.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}

	if f.bus != nil {
		if err := f.bus.Publish(ctx, event); err != nil {
			f.logger.Warn("bus publish failed",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if f.broadcaster != nil {
		f.broadcaster.Broadcast(event)
	}

	if f.notifier != nil {
		if err := f.notifier.NotifyEvent(ctx, event); err != nil {
			f.logger.Warn("notify failed",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if f.archiver != nil && event.Type == domain.EventMarketResolved {
		if err := f.archiver.ArchiveMarket(ctx, event.MarketID); err != nil {
			f.logger.Warn("market archive failed",
				slog.String("market_id", event.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*Fanout)(nil)
