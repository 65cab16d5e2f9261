package domain

import "errors"

// Ledger operation errors. Every failed operation returns one of these with
// no partial effect; the transaction that produced it is discarded whole.
var (
	// Market creation.
	ErrDuplicateMarket = errors.New("market already exists")
	ErrFeeMismatch     = errors.New("must stake the current platform fee")
	ErrStakeTooLow     = errors.New("vote stake too low")
	ErrInvalidDuration = errors.New("invalid duration")

	// Voting.
	ErrUnknownMarket     = errors.New("unknown market")
	ErrMarketExpired     = errors.New("market expired")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrIncorrectStake    = errors.New("incorrect vote stake")
	ErrInvalidSide       = errors.New("invalid vote side")
	ErrInvalidCiphertext = errors.New("invalid encrypted input")

	// Reveal.
	ErrNotExpired      = errors.New("market not expired")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrAlreadyPending  = errors.New("reveal already pending")
	ErrUnknownRequest  = errors.New("unknown decryption request")

	// Settlement.
	ErrNotResolved    = errors.New("market not resolved")
	ErrTiedOutcome    = errors.New("tied outcome, use refund")
	ErrNotATie        = errors.New("not a tie")
	ErrDidNotVote     = errors.New("did not vote")
	ErrNotAWinner     = errors.New("not a winner")
	ErrAlreadyClaimed = errors.New("already claimed")

	// Authorization.
	ErrNotOwner     = errors.New("not owner")
	ErrNotCreator   = errors.New("not creator")
	ErrBadAddress   = errors.New("invalid account address")
	ErrBadSignature = errors.New("invalid callback signature")

	// Treasury.
	ErrNoFees = errors.New("no fees to withdraw")

	// Storage.
	ErrNotFound = errors.New("not found")
)
