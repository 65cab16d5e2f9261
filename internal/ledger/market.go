package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// CreateMarket opens a new market. The attached fee must equal the current
// platform stake and is credited to the treasury, never to the prize pool.
func (l *Ledger) CreateMarket(ctx context.Context, id, creator string, voteStake uint64, duration time.Duration, fee uint64) (domain.Market, error) {
	normCreator, err := domain.NormalizeAddress(creator)
	if err != nil {
		return domain.Market{}, err
	}

	now := l.now()
	var created domain.Market

	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		existing, err := tx.GetMarket(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ledger: lookup market %q: %w", id, err)
		}

		treasury, err := tx.GetTreasury(ctx)
		if err != nil {
			return fmt.Errorf("ledger: load treasury: %w", err)
		}

		if err := l.rules.validateCreate(existing, treasury.PlatformStake, voteStake, fee, duration); err != nil {
			return err
		}

		created = domain.Market{
			ID:            id,
			Creator:       normCreator,
			CreationStake: fee,
			VoteStake:     voteStake,
			ExpiryTime:    now.Add(duration),
			CreatedAt:     now,
		}
		if err := tx.InsertMarket(ctx, created); err != nil {
			return fmt.Errorf("ledger: insert market %q: %w", id, err)
		}

		treasury.Balance += fee
		if err := tx.SetTreasury(ctx, treasury); err != nil {
			return fmt.Errorf("ledger: credit treasury: %w", err)
		}

		return tx.AppendAudit(ctx, string(domain.EventMarketCreated), map[string]any{
			"market_id":  id,
			"creator":    normCreator,
			"fee":        fee,
			"vote_stake": voteStake,
			"expiry":     created.ExpiryTime,
		})
	})
	if err != nil {
		return domain.Market{}, err
	}

	l.logger.InfoContext(ctx, "market created",
		slog.String("market_id", id),
		slog.String("creator", normCreator),
		slog.Uint64("vote_stake", voteStake),
		slog.Time("expiry", created.ExpiryTime),
	)
	l.emit(domain.EventMarketCreated, id, map[string]any{
		"creator":   normCreator,
		"fee":       fee,
		"voteStake": voteStake,
		"expiry":    created.ExpiryTime,
	})
	return created, nil
}

// CastVote records one participant's encrypted vote. The weight handle is
// folded homomorphically into the chosen side's accumulator; the vote event
// carries the market ID only, leaking neither side nor weight.
func (l *Ledger) CastVote(ctx context.Context, marketID, voter string, side domain.VoteSide, weight, proof []byte, stake uint64) error {
	normVoter, err := domain.NormalizeAddress(voter)
	if err != nil {
		return err
	}
	if !side.Valid() {
		return domain.ErrInvalidSide
	}

	now := l.now()

	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, marketID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnknownMarket
		}
		if err != nil {
			return fmt.Errorf("ledger: lookup market %q: %w", marketID, err)
		}

		if m.Expired(now) {
			return domain.ErrMarketExpired
		}

		if _, err := tx.GetVote(ctx, marketID, normVoter); err == nil {
			return domain.ErrAlreadyVoted
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ledger: lookup vote: %w", err)
		}

		if stake != m.VoteStake {
			return domain.ErrIncorrectStake
		}

		if err := l.cipher.VerifyInput(ctx, weight, proof); err != nil {
			return err
		}

		switch side {
		case domain.VoteYes:
			m.EncryptedYes, err = l.cipher.Add(ctx, m.EncryptedYes, weight)
			m.YesVoters++
		case domain.VoteNo:
			m.EncryptedNo, err = l.cipher.Add(ctx, m.EncryptedNo, weight)
			m.NoVoters++
		}
		if err != nil {
			return fmt.Errorf("ledger: combine tally: %w", err)
		}
		m.PrizePool += stake

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("ledger: update market %q: %w", marketID, err)
		}
		if err := tx.InsertVote(ctx, domain.Vote{
			MarketID: marketID,
			Voter:    normVoter,
			Side:     side,
			Weight:   weight,
			CastAt:   now,
		}); err != nil {
			return fmt.Errorf("ledger: insert vote: %w", err)
		}

		// The audit trail records participation, not the choice.
		return tx.AppendAudit(ctx, string(domain.EventVoteCast), map[string]any{
			"market_id": marketID,
			"voter":     normVoter,
		})
	})
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "vote cast", slog.String("market_id", marketID))
	l.emit(domain.EventVoteCast, marketID, nil)
	return nil
}
