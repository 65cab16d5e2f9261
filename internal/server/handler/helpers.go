// Package handler contains the HTTP handlers for the belief market API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// maxBodySize caps request bodies; vote payloads carry one ciphertext handle
// and a proof, nothing larger.
const maxBodySize = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLedgerError maps a ledger error onto an HTTP status and writes it.
// Known sentinels keep their message; anything else becomes an opaque 500.
func writeLedgerError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// statusFor maps ledger sentinel errors to HTTP status codes. Bad input maps
// to 400, auth failures to 401/403, unknown resources to 404, and state
// preconditions to 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadAddress),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrStakeTooLow),
		errors.Is(err, domain.ErrFeeMismatch),
		errors.Is(err, domain.ErrIncorrectStake),
		errors.Is(err, domain.ErrInvalidCiphertext):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrBadSignature):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotCreator):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrUnknownMarket),
		errors.Is(err, domain.ErrUnknownRequest),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrDuplicateMarket),
		errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrNotExpired),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyPending),
		errors.Is(err, domain.ErrNotResolved),
		errors.Is(err, domain.ErrTiedOutcome),
		errors.Is(err, domain.ErrNotATie),
		errors.Is(err, domain.ErrDidNotVote),
		errors.Is(err, domain.ErrNotAWinner),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrNoFees):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
