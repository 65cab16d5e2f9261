package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// PlatformLedger defines the treasury operations the handler requires.
type PlatformLedger interface {
	Owner() string
	PlatformStake(ctx context.Context) (uint64, error)
	TreasuryBalance(ctx context.Context) (uint64, error)
	SetPlatformStake(ctx context.Context, caller string, amount uint64) error
	WithdrawPlatformFees(ctx context.Context, caller, to string) (uint64, error)
}

// PlatformHandler serves the treasury admin endpoints. These routes sit
// behind the API key middleware; the owner address check in the ledger is a
// second, independent gate.
type PlatformHandler struct {
	ledger PlatformLedger
	logger *slog.Logger
}

// NewPlatformHandler creates a PlatformHandler.
func NewPlatformHandler(ledger PlatformLedger, logger *slog.Logger) *PlatformHandler {
	return &PlatformHandler{ledger: ledger, logger: logger}
}

// GetStake returns the current platform stake and accumulated balance.
// GET /api/platform/stake
func (h *PlatformHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	stake, err := h.ledger.PlatformStake(r.Context())
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}
	balance, err := h.ledger.TreasuryBalance(r.Context())
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{
		"platformStake": stake,
		"balance":       balance,
	})
}

// setStakeRequest is the JSON body for updating the platform stake.
type setStakeRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

// SetStake updates the fee required to create a market. Existing markets are
// unaffected.
// PUT /api/platform/stake
func (h *PlatformHandler) SetStake(w http.ResponseWriter, r *http.Request) {
	var req setStakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ledger.SetPlatformStake(r.Context(), req.Caller, req.Amount); err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"platformStake": req.Amount})
}

// withdrawRequest is the JSON body for withdrawing platform fees.
type withdrawRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

// Withdraw drains the accumulated creation fees to the given address.
// POST /api/platform/withdraw
func (h *PlatformHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := h.ledger.WithdrawPlatformFees(r.Context(), req.Caller, req.To)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"amount": amount,
		"to":     req.To,
	})
}
