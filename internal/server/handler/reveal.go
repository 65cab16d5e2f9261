package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/beliefmarket/beliefd/internal/oracle"
)

// RevealLedger defines the reveal operations the handler requires.
type RevealLedger interface {
	RequestReveal(ctx context.Context, marketID, caller string) (string, error)
	HandleRevealCallback(ctx context.Context, requestID string, plainYes, plainNo uint64) error
}

// RevealHandler serves the reveal request endpoint and the oracle callback.
// The callback is the trust boundary: every delivery must carry a signature
// from the configured oracle signer.
type RevealHandler struct {
	ledger   RevealLedger
	verifier *oracle.CallbackVerifier
	logger   *slog.Logger
}

// NewRevealHandler creates a RevealHandler.
func NewRevealHandler(ledger RevealLedger, verifier *oracle.CallbackVerifier, logger *slog.Logger) *RevealHandler {
	return &RevealHandler{
		ledger:   ledger,
		verifier: verifier,
		logger:   logger,
	}
}

// requestRevealRequest is the JSON body for requesting a reveal.
type requestRevealRequest struct {
	Caller string `json:"caller"`
}

// RequestReveal submits an expired market's tallies for decryption.
// POST /api/markets/{id}/reveal
func (h *RevealHandler) RequestReveal(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req requestRevealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requestID, err := h.ledger.RequestReveal(r.Context(), id, req.Caller)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"marketId":  id,
		"requestId": requestID,
	})
}

// OracleCallback receives a signed reveal from the decryption oracle.
// POST /api/oracle/callback
func (h *RevealHandler) OracleCallback(w http.ResponseWriter, r *http.Request) {
	var cb oracle.Callback
	if err := decodeJSON(r, &cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.verifier.Verify(cb); err != nil {
		h.logger.WarnContext(r.Context(), "handler: rejected oracle callback",
			slog.String("request_id", cb.RequestID),
		)
		writeLedgerError(w, h.logger, r, err)
		return
	}

	if err := h.ledger.HandleRevealCallback(r.Context(), cb.RequestID, cb.Yes, cb.No); err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"requestId": cb.RequestID})
}
