package domain

import "time"

// Vote is one participant's sealed contribution to a market's tally. The
// row's existence is the permanent has-voted flag; a participant casts at
// most one vote per market, strictly before expiry.
type Vote struct {
	MarketID string    `json:"marketId"`
	Voter    string    `json:"voter"`
	Side     VoteSide  `json:"side"`
	Weight   []byte    `json:"-"` // ciphertext handle folded into the tally
	CastAt   time.Time `json:"castAt"`
}

// ClaimKind distinguishes the two settlement paths.
type ClaimKind string

const (
	ClaimPrize  ClaimKind = "prize"
	ClaimRefund ClaimKind = "refund"
)

// Claim records a completed withdrawal for one (market, participant) pair.
// The row's existence is the permanent has-claimed flag.
type Claim struct {
	MarketID  string    `json:"marketId"`
	Voter     string    `json:"voter"`
	Kind      ClaimKind `json:"kind"`
	Amount    uint64    `json:"amount"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Treasury is the singleton platform account: accumulated creation fees and
// the stake currently required to open a market.
type Treasury struct {
	Balance       uint64 `json:"balance"`
	PlatformStake uint64 `json:"platformStake"`
}
