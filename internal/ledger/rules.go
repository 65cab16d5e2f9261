package ledger

import (
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// Default market economics, matching the deployed contract parameters.
const (
	DefaultPlatformStake = 20_000_000_000_000_000 // 0.02 in smallest units
	DefaultMinVoteStake  = 10_000_000_000_000_000 // 0.01 in smallest units
	DefaultMinDuration   = 5 * time.Minute
	DefaultMaxDuration   = 30 * 24 * time.Hour
)

// Rules are the market creation parameters enforced by the validator. The
// platform stake itself lives in the treasury record because the owner can
// change it at runtime; these bounds are fixed at startup.
type Rules struct {
	MinVoteStake uint64
	MinDuration  time.Duration
	MaxDuration  time.Duration

	// CreatorOnlyReveal restricts RequestReveal to the market creator.
	CreatorOnlyReveal bool
}

// DefaultRules returns the production rule set.
func DefaultRules() Rules {
	return Rules{
		MinVoteStake: DefaultMinVoteStake,
		MinDuration:  DefaultMinDuration,
		MaxDuration:  DefaultMaxDuration,
	}
}

// validateCreate gates market creation. It is a pure check with no side
// effects; check order is stable so callers always see the first violation.
func (r Rules) validateCreate(existing domain.Market, platformStake, voteStake, fee uint64, duration time.Duration) error {
	if existing.Exists() {
		return domain.ErrDuplicateMarket
	}
	if fee != platformStake {
		return domain.ErrFeeMismatch
	}
	if voteStake < r.MinVoteStake {
		return domain.ErrStakeTooLow
	}
	if duration < r.MinDuration || duration > r.MaxDuration {
		return domain.ErrInvalidDuration
	}
	return nil
}
