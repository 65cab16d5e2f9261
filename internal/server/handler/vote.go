package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// VoteLedger defines the vote operations the handler requires.
type VoteLedger interface {
	CastVote(ctx context.Context, marketID, voter string, side domain.VoteSide, weight, proof []byte, stake uint64) error
	HasVoted(ctx context.Context, marketID, voter string) (bool, error)
}

// VoteHandler serves the encrypted vote endpoints.
type VoteHandler struct {
	ledger VoteLedger
	logger *slog.Logger
}

// NewVoteHandler creates a VoteHandler.
func NewVoteHandler(ledger VoteLedger, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{ledger: ledger, logger: logger}
}

// castVoteRequest is the JSON body for casting a vote. The encrypted weight
// and its proof are base64 in transit; the side is "yes" or "no".
type castVoteRequest struct {
	Voter           string `json:"voter"`
	Side            string `json:"side"`
	EncryptedWeight []byte `json:"encryptedWeight"`
	Proof           []byte `json:"proof"`
	Stake           uint64 `json:"stake"`
}

// CastVote records an encrypted vote on a market.
// POST /api/markets/{id}/votes
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req castVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, err := domain.ParseVoteSide(req.Side)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	err = h.ledger.CastVote(r.Context(), id, req.Voter, side, req.EncryptedWeight, req.Proof, req.Stake)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"marketId": id})
}

// GetVoteStatus reports whether an address has voted on a market.
// GET /api/markets/{id}/votes/{addr}
func (h *VoteHandler) GetVoteStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	addr := pathParam(r, "addr")
	if id == "" || addr == "" {
		writeError(w, http.StatusBadRequest, "missing market id or address")
		return
	}

	voted, err := h.ledger.HasVoted(r.Context(), id, addr)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"hasVoted": voted})
}
