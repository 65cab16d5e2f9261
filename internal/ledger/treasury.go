package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// SetPlatformStake updates the fee required to create future markets.
// Existing markets keep the fee they were created with.
func (l *Ledger) SetPlatformStake(ctx context.Context, caller string, amount uint64) error {
	normCaller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return err
	}
	if normCaller != l.owner {
		return domain.ErrNotOwner
	}

	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		treasury, err := tx.GetTreasury(ctx)
		if err != nil {
			return fmt.Errorf("ledger: load treasury: %w", err)
		}
		treasury.PlatformStake = amount
		if err := tx.SetTreasury(ctx, treasury); err != nil {
			return fmt.Errorf("ledger: update treasury: %w", err)
		}
		return tx.AppendAudit(ctx, "platform_stake_set", map[string]any{
			"amount": amount,
		})
	})
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "platform stake updated", slog.Uint64("amount", amount))
	return nil
}

// WithdrawPlatformFees drains the entire accumulated fee balance to the
// destination account and resets the accumulator.
func (l *Ledger) WithdrawPlatformFees(ctx context.Context, caller, to string) (uint64, error) {
	normCaller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return 0, err
	}
	if normCaller != l.owner {
		return 0, domain.ErrNotOwner
	}
	normTo, err := domain.NormalizeAddress(to)
	if err != nil {
		return 0, err
	}

	var amount uint64
	err = l.store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		treasury, err := tx.GetTreasury(ctx)
		if err != nil {
			return fmt.Errorf("ledger: load treasury: %w", err)
		}
		if treasury.Balance == 0 {
			return domain.ErrNoFees
		}

		amount = treasury.Balance
		treasury.Balance = 0
		if err := tx.SetTreasury(ctx, treasury); err != nil {
			return fmt.Errorf("ledger: update treasury: %w", err)
		}
		return tx.AppendAudit(ctx, string(domain.EventFeesWithdrawn), map[string]any{
			"to":     normTo,
			"amount": amount,
		})
	})
	if err != nil {
		return 0, err
	}

	l.logger.InfoContext(ctx, "platform fees withdrawn",
		slog.String("to", normTo),
		slog.Uint64("amount", amount),
	)
	l.emit(domain.EventFeesWithdrawn, "", map[string]any{
		"to":     normTo,
		"amount": amount,
	})
	return amount, nil
}
