package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
)

const requestTimeout = 10 * time.Second

// Gateway submits decryption requests to a remote oracle relayer over HTTP.
// The correlation token is minted and persisted by the ledger before the
// submission and echoed back by the oracle in its callback, so the ledger
// never trusts oracle-chosen identifiers.
type Gateway struct {
	baseURL     string
	callbackURL string
	client      *http.Client
	logger      *slog.Logger
}

// NewGateway creates a Gateway that posts to baseURL and asks the oracle to
// deliver reveals to callbackURL.
func NewGateway(baseURL, callbackURL string, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL:     baseURL,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: requestTimeout},
		logger:      logger.With(slog.String("component", "oracle_gateway")),
	}
}

type decryptRequest struct {
	RequestID   string `json:"requestId"`
	MarketID    string `json:"marketId"`
	YesHandle   string `json:"yesHandle"`
	NoHandle    string `json:"noHandle"`
	CallbackURL string `json:"callbackUrl"`
}

// RequestDecryption submits both accumulators for decryption under the given
// correlation token; the callback must carry the same token.
func (g *Gateway) RequestDecryption(ctx context.Context, requestID, marketID string, yesHandle, noHandle []byte) error {
	body, err := json.Marshal(decryptRequest{
		RequestID:   requestID,
		MarketID:    marketID,
		YesHandle:   base64.StdEncoding.EncodeToString(yesHandle),
		NoHandle:    base64.StdEncoding.EncodeToString(noHandle),
		CallbackURL: g.callbackURL,
	})
	if err != nil {
		return fmt.Errorf("oracle: marshal decrypt request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/decrypt", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("oracle: build decrypt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: submit decrypt request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("oracle: decrypt request rejected: status %d", resp.StatusCode)
	}

	g.logger.Info("decryption requested",
		slog.String("market_id", marketID),
		slog.String("request_id", requestID))
	return nil
}

// Compile-time interface check.
var _ domain.DecryptionGateway = (*Gateway)(nil)
