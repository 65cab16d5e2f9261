package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// RequestReveal parks the market in the awaiting-reveal state and then submits
// its ciphertext accumulators to the decryption oracle. The correlation token
// is minted here and committed before the oracle learns it, so even a callback
// that races the submission finds the pending market. The reveal itself
// arrives later via HandleRevealCallback; there is no timeout path, so a
// silent oracle leaves the market pending.
func (l *Ledger) RequestReveal(ctx context.Context, marketID, caller string) (string, error) {
	normCaller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return "", err
	}

	now := l.now()
	requestID := uuid.NewString()
	var yesHandle, noHandle []byte

	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnknownMarket
		}
		if err != nil {
			return fmt.Errorf("ledger: lookup market %q: %w", marketID, err)
		}

		if !m.Expired(now) {
			return domain.ErrNotExpired
		}
		if m.Resolved {
			return domain.ErrAlreadyResolved
		}
		if m.RevealPending() {
			return domain.ErrAlreadyPending
		}
		if l.rules.CreatorOnlyReveal && normCaller != m.Creator {
			return domain.ErrNotCreator
		}

		m.DecryptionRequestID = requestID
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("ledger: update market %q: %w", marketID, err)
		}
		yesHandle, noHandle = m.EncryptedYes, m.EncryptedNo

		return tx.AppendAudit(ctx, string(domain.EventRevealRequested), map[string]any{
			"market_id":  marketID,
			"request_id": requestID,
			"caller":     normCaller,
		})
	})
	if err != nil {
		return "", err
	}

	if err := l.gateway.RequestDecryption(ctx, requestID, marketID, yesHandle, noHandle); err != nil {
		l.clearPendingRequest(ctx, marketID, requestID)
		return "", fmt.Errorf("ledger: request decryption for %q: %w", marketID, err)
	}

	l.logger.InfoContext(ctx, "reveal requested",
		slog.String("market_id", marketID),
		slog.String("request_id", requestID),
	)
	l.emit(domain.EventRevealRequested, marketID, map[string]any{
		"requestId": requestID,
	})
	return requestID, nil
}

// clearPendingRequest rolls the correlation token back after a failed oracle
// submission so the reveal can be retried. A callback that resolved the market
// in the meantime wins; the token is only cleared while it still matches an
// unresolved market.
func (l *Ledger) clearPendingRequest(ctx context.Context, marketID, requestID string) {
	err := l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("ledger: lookup market %q: %w", marketID, err)
		}
		if m.Resolved || m.DecryptionRequestID != requestID {
			return nil
		}
		m.DecryptionRequestID = ""
		return tx.UpdateMarket(ctx, m)
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "clear pending reveal request",
			slog.String("market_id", marketID),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

// HandleRevealCallback applies the oracle's decrypted tallies. The caller is
// trusted; transport-level authentication of the oracle happens before this
// point. A token that matches no market is rejected without touching any
// state, and a callback for an already-resolved market is an exact no-op so
// replays cannot double-apply.
func (l *Ledger) HandleRevealCallback(ctx context.Context, requestID string, plainYes, plainNo uint64) error {
	var (
		resolved  domain.Market
		duplicate bool
	)

	err := l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.MarketByRequestID(ctx, requestID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnknownRequest
		}
		if err != nil {
			return fmt.Errorf("ledger: lookup request %q: %w", requestID, err)
		}

		if m.Resolved {
			duplicate = true
			return nil
		}

		m.RevealedYes = plainYes
		m.RevealedNo = plainNo
		m.Resolved = true
		m.YesWon = plainYes > plainNo // equality is a tie, not a yes win

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("ledger: resolve market %q: %w", m.ID, err)
		}
		resolved = m

		return tx.AppendAudit(ctx, string(domain.EventMarketResolved), map[string]any{
			"market_id":    m.ID,
			"request_id":   requestID,
			"revealed_yes": plainYes,
			"revealed_no":  plainNo,
			"yes_won":      m.YesWon,
		})
	})
	if err != nil {
		return err
	}
	if duplicate {
		l.logger.WarnContext(ctx, "duplicate reveal callback ignored",
			slog.String("request_id", requestID),
		)
		return nil
	}

	l.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", resolved.ID),
		slog.Uint64("revealed_yes", plainYes),
		slog.Uint64("revealed_no", plainNo),
		slog.Bool("yes_won", resolved.YesWon),
	)
	l.emit(domain.EventMarketResolved, resolved.ID, map[string]any{
		"yesWon":      resolved.YesWon,
		"revealedYes": plainYes,
		"revealedNo":  plainNo,
		"totalPrize":  resolved.PrizePool,
	})
	return nil
}
