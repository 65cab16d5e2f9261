package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// ClaimPrize pays a winning voter their share of the prize pool:
// floor(prizePool / winningVoterCount). Integer division dust stays in the
// pool and is unclaimable. The claim row makes repeat payment impossible.
func (l *Ledger) ClaimPrize(ctx context.Context, marketID, voter string) (uint64, error) {
	normVoter, err := domain.NormalizeAddress(voter)
	if err != nil {
		return 0, err
	}

	now := l.now()
	var share uint64

	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnknownMarket
		}
		if err != nil {
			return fmt.Errorf("ledger: lookup market %q: %w", marketID, err)
		}

		if !m.Resolved {
			return domain.ErrNotResolved
		}

		vote, err := tx.GetVote(ctx, marketID, normVoter)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrDidNotVote
		}
		if err != nil {
			return fmt.Errorf("ledger: lookup vote: %w", err)
		}

		claimed, err := tx.HasClaimed(ctx, marketID, normVoter)
		if err != nil {
			return fmt.Errorf("ledger: lookup claim: %w", err)
		}
		if claimed {
			return domain.ErrAlreadyClaimed
		}

		if m.Tied() {
			return domain.ErrTiedOutcome
		}
		if (vote.Side == domain.VoteYes) != m.YesWon {
			return domain.ErrNotAWinner
		}

		winners := m.WinningVoterCount()
		if winners == 0 {
			// Unreachable when the tallies came from real votes, but the
			// oracle is external input; never divide by zero on its word.
			return domain.ErrNotAWinner
		}
		share = m.PrizePool / uint64(winners)

		if err := tx.InsertClaim(ctx, domain.Claim{
			MarketID:  marketID,
			Voter:     normVoter,
			Kind:      domain.ClaimPrize,
			Amount:    share,
			ClaimedAt: now,
		}); err != nil {
			return fmt.Errorf("ledger: insert claim: %w", err)
		}

		return tx.AppendAudit(ctx, "prize_claimed", map[string]any{
			"market_id": marketID,
			"voter":     normVoter,
			"amount":    share,
		})
	})
	if err != nil {
		return 0, err
	}

	l.logger.InfoContext(ctx, "prize claimed",
		slog.String("market_id", marketID),
		slog.String("voter", normVoter),
		slog.Uint64("amount", share),
	)
	return share, nil
}

// ClaimRefund returns a voter's original stake. Only valid on a resolved
// market whose revealed totals are exactly equal.
func (l *Ledger) ClaimRefund(ctx context.Context, marketID, voter string) (uint64, error) {
	normVoter, err := domain.NormalizeAddress(voter)
	if err != nil {
		return 0, err
	}

	now := l.now()
	var refund uint64

	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnknownMarket
		}
		if err != nil {
			return fmt.Errorf("ledger: lookup market %q: %w", marketID, err)
		}

		if !m.Resolved {
			return domain.ErrNotResolved
		}
		if !m.Tied() {
			return domain.ErrNotATie
		}

		if _, err := tx.GetVote(ctx, marketID, normVoter); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrDidNotVote
		} else if err != nil {
			return fmt.Errorf("ledger: lookup vote: %w", err)
		}

		claimed, err := tx.HasClaimed(ctx, marketID, normVoter)
		if err != nil {
			return fmt.Errorf("ledger: lookup claim: %w", err)
		}
		if claimed {
			return domain.ErrAlreadyClaimed
		}

		refund = m.VoteStake
		if err := tx.InsertClaim(ctx, domain.Claim{
			MarketID:  marketID,
			Voter:     normVoter,
			Kind:      domain.ClaimRefund,
			Amount:    refund,
			ClaimedAt: now,
		}); err != nil {
			return fmt.Errorf("ledger: insert claim: %w", err)
		}

		return tx.AppendAudit(ctx, "refund_claimed", map[string]any{
			"market_id": marketID,
			"voter":     normVoter,
			"amount":    refund,
		})
	})
	if err != nil {
		return 0, err
	}

	l.logger.InfoContext(ctx, "refund claimed",
		slog.String("market_id", marketID),
		slog.String("voter", normVoter),
		slog.Uint64("amount", refund),
	)
	return refund, nil
}
