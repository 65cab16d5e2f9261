package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// MarketLedger defines the write operations the market handler requires.
// Declared locally so the handler package does not depend on the concrete
// ledger implementation.
type MarketLedger interface {
	CreateMarket(ctx context.Context, id, creator string, voteStake uint64, duration time.Duration, fee uint64) (domain.Market, error)
}

// MarketReader defines the read path for market records.
type MarketReader interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	RevealStatus(ctx context.Context, id string) (domain.RevealStatus, error)
	MarketIDs(ctx context.Context) ([]string, error)
	CountMarkets(ctx context.Context) (int64, error)
}

// MarketHandler serves market creation and lookup endpoints.
type MarketHandler struct {
	ledger MarketLedger
	reader MarketReader
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(ledger MarketLedger, reader MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		ledger: ledger,
		reader: reader,
		logger: logger,
	}
}

// createMarketRequest is the JSON body for market creation. Duration is in
// seconds; fee must equal the current platform stake.
type createMarketRequest struct {
	ID              string `json:"id"`
	Creator         string `json:"creator"`
	VoteStake       uint64 `json:"voteStake"`
	DurationSeconds int64  `json:"duration"`
	Fee             uint64 `json:"fee"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.ledger.CreateMarket(r.Context(), req.ID, req.Creator,
		req.VoteStake, time.Duration(req.DurationSeconds)*time.Second, req.Fee)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output.
type listMarketsResponse struct {
	IDs   []string `json:"ids"`
	Total int64    `json:"total"`
}

// ListMarkets returns every market ID in creation order.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	ids, err := h.reader.MarketIDs(r.Context())
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	total, err := h.reader.CountMarkets(r.Context())
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{IDs: ids, Total: total})
}

// GetMarket returns a single market record. Unknown IDs return the zero
// record rather than 404, matching the ledger's lookup semantics.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.reader.GetMarket(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// GetRevealStatus returns the decryption bridge state for a market.
// GET /api/markets/{id}/reveal
func (h *MarketHandler) GetRevealStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	status, err := h.reader.RevealStatus(r.Context(), id)
	if err != nil {
		writeLedgerError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
