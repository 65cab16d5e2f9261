// Package service composes the ledger core with the cache, event bus, push
// channels, and notifiers.
package service

import (
	"context"
	"log/slog"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/ledger"
)

// MarketReader serves the public read path, checking the cache before hitting
// the ledger store. Cached records carry only the public view of a market;
// ciphertext accumulators never leave the store.
type MarketReader struct {
	ledger *ledger.Ledger
	cache  domain.MarketCache
	logger *slog.Logger
}

// NewMarketReader creates a MarketReader. A nil cache disables caching.
func NewMarketReader(l *ledger.Ledger, cache domain.MarketCache, logger *slog.Logger) *MarketReader {
	return &MarketReader{
		ledger: l,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_reader")),
	}
}

// GetMarket retrieves a market by ID, cache first. Unknown IDs return the
// zero record, matching the ledger's lookup semantics.
func (r *MarketReader) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if r.cache != nil {
		if m, err := r.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := r.ledger.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	// Back-fill only records that exist; log but do not fail on cache errors.
	if r.cache != nil && m.Exists() {
		if cacheErr := r.cache.Set(ctx, m); cacheErr != nil {
			r.logger.WarnContext(ctx, "cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// RevealStatus returns the decryption bridge state, going through the same
// cache as GetMarket.
func (r *MarketReader) RevealStatus(ctx context.Context, id string) (domain.RevealStatus, error) {
	m, err := r.GetMarket(ctx, id)
	if err != nil {
		return domain.RevealStatus{}, err
	}
	return m.Reveal(), nil
}

// MarketIDs lists every market identifier in creation order.
func (r *MarketReader) MarketIDs(ctx context.Context) ([]string, error) {
	return r.ledger.MarketIDs(ctx)
}

// CountMarkets returns the number of markets ever created.
func (r *MarketReader) CountMarkets(ctx context.Context) (int64, error) {
	return r.ledger.CountMarkets(ctx)
}
