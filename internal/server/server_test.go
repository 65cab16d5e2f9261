package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/fhe"
	"github.com/beliefmarket/beliefd/internal/ledger"
	"github.com/beliefmarket/beliefd/internal/oracle"
	"github.com/beliefmarket/beliefd/internal/server/handler"
	"github.com/beliefmarket/beliefd/internal/service"
	"github.com/beliefmarket/beliefd/internal/store/memory"
)

const (
	testOwner = "0x0000000000000000000000000000000000000001"
	testAlice = "0x0000000000000000000000000000000000000aaa"
	testBob   = "0x0000000000000000000000000000000000000bbb"

	testPlatformStake = 2000
	testVoteStake     = 100
	testAPIKey        = "test-admin-key"
)

type recordingGateway struct {
	lastID  string
	yes, no []byte
}

func (g *recordingGateway) RequestDecryption(ctx context.Context, requestID, marketID string, yesHandle, noHandle []byte) error {
	g.lastID = requestID
	g.yes, g.no = yesHandle, noHandle
	return nil
}

type apiFixture struct {
	srv    *httptest.Server
	cipher *fhe.Sealed
	signer *oracle.CallbackSigner
	gw     *recordingGateway
	now    time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &apiFixture{
		cipher: fhe.NewSealed("test"),
		signer: oracle.NewCallbackSigner(key),
		gw:     &recordingGateway{},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	rules := ledger.Rules{
		MinVoteStake: 10,
		MinDuration:  5 * time.Minute,
		MaxDuration:  30 * 24 * time.Hour,
	}

	logger := slog.New(slog.DiscardHandler)

	l, err := ledger.New(
		memory.New(testPlatformStake), f.cipher, f.gw, rules, testOwner, logger,
		ledger.WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)

	verifier, err := oracle.NewCallbackVerifier(f.signer.Address())
	require.NoError(t, err)

	reader := service.NewMarketReader(l, nil, logger)

	srv := NewServer(
		Config{AdminAPIKey: testAPIKey},
		Handlers{
			Health:   handler.NewHealthHandler(logger),
			Markets:  handler.NewMarketHandler(l, reader, logger),
			Votes:    handler.NewVoteHandler(l, logger),
			Reveals:  handler.NewRevealHandler(l, verifier, logger),
			Claims:   handler.NewClaimHandler(l, logger),
			Platform: handler.NewPlatformHandler(l, logger),
		},
		nil, nil, logger,
	)

	f.srv = httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (f *apiFixture) createMarket(t *testing.T, id string) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPost, "/api/markets", map[string]any{
		"id": id, "creator": testOwner,
		"voteStake": testVoteStake, "duration": 600, "fee": testPlatformStake,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (f *apiFixture) castVote(t *testing.T, id, voter, side string) (*http.Response, map[string]any) {
	t.Helper()
	weight, err := f.cipher.EncryptUint64(1)
	require.NoError(t, err)
	return f.do(t, http.MethodPost, "/api/markets/"+id+"/votes", map[string]any{
		"voter": voter, "side": side,
		"encryptedWeight": weight, "stake": testVoteStake,
	}, nil)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMarketEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("create returns 201 with the record", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/markets", map[string]any{
			"id": "m1", "creator": testOwner,
			"voteStake": testVoteStake, "duration": 600, "fee": testPlatformStake,
		}, nil)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "m1", body["id"])
		assert.Equal(t, false, body["isResolved"])
	})

	t.Run("duplicate id is 409", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/markets", map[string]any{
			"id": "m1", "creator": testOwner,
			"voteStake": testVoteStake, "duration": 600, "fee": testPlatformStake,
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "market already exists", body["error"])
	})

	t.Run("wrong fee is 400", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/markets", map[string]any{
			"id": "m2", "creator": testOwner,
			"voteStake": testVoteStake, "duration": 600, "fee": 1,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad creator address is 400", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/markets", map[string]any{
			"id": "m3", "creator": "not-an-address",
			"voteStake": testVoteStake, "duration": 600, "fee": testPlatformStake,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown id reads as the zero record", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/markets/ghost", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ghost", body["id"])
		assert.Equal(t, "", body["creator"])
	})

	t.Run("list returns ids and total", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/markets", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []any{"m1"}, body["ids"])
		assert.Equal(t, float64(1), body["total"])
	})
}

func TestVoteEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.createMarket(t, "m")

	t.Run("cast vote succeeds", func(t *testing.T) {
		resp, _ := f.castVote(t, "m", testAlice, "yes")
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("vote status reflects it", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/markets/m/votes/"+testAlice, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["hasVoted"])
	})

	t.Run("double vote is 409", func(t *testing.T) {
		resp, _ := f.castVote(t, "m", testAlice, "no")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid side is 400", func(t *testing.T) {
		resp, _ := f.castVote(t, "m", testBob, "maybe")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown market is 404", func(t *testing.T) {
		resp, _ := f.castVote(t, "ghost", testBob, "yes")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRevealAndClaimFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.createMarket(t, "m")

	resp, _ := f.castVote(t, "m", testAlice, "yes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = f.castVote(t, "m", testBob, "no")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("reveal before expiry is 409", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/markets/m/reveal",
			map[string]any{"caller": testOwner}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	f.now = f.now.Add(11 * time.Minute)

	var requestID string
	t.Run("reveal after expiry is 202", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/markets/m/reveal",
			map[string]any{"caller": testOwner}, nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		requestID, _ = body["requestId"].(string)
		require.NotEmpty(t, requestID)
	})

	yes, err := f.cipher.Open(f.gw.yes)
	require.NoError(t, err)
	no, err := f.cipher.Open(f.gw.no)
	require.NoError(t, err)
	require.Equal(t, uint64(1), yes)
	require.Equal(t, uint64(1), no)

	t.Run("callback with a bad signature is 401", func(t *testing.T) {
		sig, err := f.signer.Sign(requestID, 9, 9)
		require.NoError(t, err)
		resp, _ := f.do(t, http.MethodPost, "/api/oracle/callback", map[string]any{
			"requestId": requestID, "yes": yes, "no": no, "signature": sig,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("signed callback resolves the market", func(t *testing.T) {
		sig, err := f.signer.Sign(requestID, yes, no)
		require.NoError(t, err)
		resp, _ := f.do(t, http.MethodPost, "/api/oracle/callback", map[string]any{
			"requestId": requestID, "yes": yes, "no": no, "signature": sig,
		}, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := f.do(t, http.MethodGet, "/api/markets/m/reveal", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["isResolved"])
		assert.Equal(t, false, body["pending"])
	})

	t.Run("tie blocks prizes and pays refunds", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/markets/m/claims/prize",
			map[string]any{"voter": testAlice}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, domain.ErrTiedOutcome.Error(), body["error"])

		resp, body = f.do(t, http.MethodPost, "/api/markets/m/claims/refund",
			map[string]any{"voter": testAlice}, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(testVoteStake), body["amount"])

		resp, body = f.do(t, http.MethodGet,
			fmt.Sprintf("/api/markets/m/claims/%s", testAlice), nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["hasClaimed"])
	})
}

func TestPlatformEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	auth := map[string]string{"X-API-Key": testAPIKey}

	t.Run("stake is readable without a key", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/platform/stake", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(testPlatformStake), body["platformStake"])
	})

	t.Run("set stake without a key is 401", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPut, "/api/platform/stake",
			map[string]any{"caller": testOwner, "amount": 5000}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("set stake by non-owner is 403", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPut, "/api/platform/stake",
			map[string]any{"caller": testAlice, "amount": 5000}, auth)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("owner updates the stake", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPut, "/api/platform/stake",
			map[string]any{"caller": testOwner, "amount": 5000}, auth)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("withdraw with empty treasury is 409", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/platform/withdraw",
			map[string]any{"caller": testOwner, "to": testBob}, auth)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
