package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// ClaimLedger defines the settlement operations the handler requires.
type ClaimLedger interface {
	ClaimPrize(ctx context.Context, marketID, voter string) (uint64, error)
	ClaimRefund(ctx context.Context, marketID, voter string) (uint64, error)
	HasClaimed(ctx context.Context, marketID, voter string) (bool, error)
}

// ClaimHandler serves the prize and refund settlement endpoints.
type ClaimHandler struct {
	ledger ClaimLedger
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(ledger ClaimLedger, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{ledger: ledger, logger: logger}
}

// claimRequest is the JSON body for both claim endpoints.
type claimRequest struct {
	Voter string `json:"voter"`
}

// ClaimPrize pays out a winning voter's share of the prize pool.
// POST /api/markets/{id}/claims/prize
func (h *ClaimHandler) ClaimPrize(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, h.ledger.ClaimPrize)
}

// ClaimRefund returns a voter's stake after a tied outcome.
// POST /api/markets/{id}/claims/refund
func (h *ClaimHandler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, h.ledger.ClaimRefund)
}

func (h *ClaimHandler) claim(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, marketID, voter string) (uint64, error),
) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := op(r.Context(), id, req.Voter)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": id,
		"amount":   amount,
	})
}

// GetClaimStatus reports whether an address has claimed for a market.
// GET /api/markets/{id}/claims/{addr}
func (h *ClaimHandler) GetClaimStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	addr := pathParam(r, "addr")
	if id == "" || addr == "" {
		writeError(w, http.StatusBadRequest, "missing market id or address")
		return
	}

	claimed, err := h.ledger.HasClaimed(r.Context(), id, addr)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"hasClaimed": claimed})
}
