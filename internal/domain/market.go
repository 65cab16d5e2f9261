// Package domain holds the core types, sentinel errors, and interfaces of the
// belief market ledger. It has no dependencies on storage, transport, or
// crypto backends; those packages implement the interfaces declared here.
package domain

import (
	"strings"
	"time"
)

// VoteSide is the binary outcome a participant backs.
type VoteSide uint8

const (
	VoteNo  VoteSide = 0
	VoteYes VoteSide = 1
)

// String returns "yes" or "no".
func (s VoteSide) String() string {
	if s == VoteYes {
		return "yes"
	}
	return "no"
}

// Valid reports whether s is one of the two defined sides.
func (s VoteSide) Valid() bool {
	return s == VoteYes || s == VoteNo
}

// ParseVoteSide converts "yes" or "no" (any case) into a VoteSide.
func ParseVoteSide(s string) (VoteSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return VoteYes, nil
	case "no":
		return VoteNo, nil
	}
	return 0, ErrInvalidSide
}

// Market is one binary prediction market and its full lifecycle state. A
// market occupies its ledger slot forever once created; records are mutated,
// never deleted.
type Market struct {
	ID            string    `json:"id"`
	Creator       string    `json:"creator"`
	CreationStake uint64    `json:"creationStake"`
	VoteStake     uint64    `json:"voteStake"`
	ExpiryTime    time.Time `json:"expiryTime"`
	Resolved      bool      `json:"isResolved"`

	// Ciphertext accumulators. Opaque handles combined homomorphically by
	// the configured cipher backend; never inspected before the reveal.
	EncryptedYes []byte `json:"-"`
	EncryptedNo  []byte `json:"-"`

	// Plaintext totals, populated only by a successful decryption callback.
	RevealedYes uint64 `json:"revealedYes"`
	RevealedNo  uint64 `json:"revealedNo"`

	PrizePool uint64 `json:"prizePool"`
	YesWon    bool   `json:"yesWon"`

	// Per-side voter counts. The weighted tally is private until the
	// reveal, but the count of votes is not, and prize division needs it.
	YesVoters uint32 `json:"yesVoters"`
	NoVoters  uint32 `json:"noVoters"`

	// DecryptionRequestID is the correlation token of the outstanding
	// oracle request, empty when none is pending.
	DecryptionRequestID string `json:"decryptionRequestId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Exists reports whether the record occupies a ledger slot. Lookups of
// unknown IDs return the zero record rather than an error.
func (m Market) Exists() bool {
	return m.Creator != ""
}

// Expired reports whether voting has closed as of now.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.ExpiryTime)
}

// RevealPending reports whether a decryption request is outstanding.
func (m Market) RevealPending() bool {
	return !m.Resolved && m.DecryptionRequestID != ""
}

// Tied reports whether the revealed totals are exactly equal. Valid only
// once the market is resolved.
func (m Market) Tied() bool {
	return m.Resolved && m.RevealedYes == m.RevealedNo
}

// WinningVoterCount returns the number of voters on the winning side.
// Valid only once the market is resolved and not tied.
func (m Market) WinningVoterCount() uint32 {
	if m.YesWon {
		return m.YesVoters
	}
	return m.NoVoters
}

// RevealStatus is the read-model of the decryption bridge for one market.
type RevealStatus struct {
	Resolved            bool   `json:"isResolved"`
	Pending             bool   `json:"pending"`
	RevealedYes         uint64 `json:"revealedYes"`
	RevealedNo          uint64 `json:"revealedNo"`
	DecryptionRequestID string `json:"decryptionRequestId,omitempty"`
}

// Reveal returns the market's reveal status snapshot.
func (m Market) Reveal() RevealStatus {
	return RevealStatus{
		Resolved:            m.Resolved,
		Pending:             m.RevealPending(),
		RevealedYes:         m.RevealedYes,
		RevealedNo:          m.RevealedNo,
		DecryptionRequestID: m.DecryptionRequestID,
	}
}
