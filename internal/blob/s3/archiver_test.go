package s3blob

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/store/memory"
)

type captureWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (w *captureWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	w.types[path] = contentType
	return nil
}

func seedResolvedMarket(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()

	err := store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		market := domain.Market{
			ID:          "m",
			Creator:     "0x0000000000000000000000000000000000000aaa",
			VoteStake:   100,
			ExpiryTime:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Resolved:    true,
			RevealedYes: 2,
			RevealedNo:  1,
			PrizePool:   300,
			YesWon:      true,
			YesVoters:   2,
			NoVoters:    1,
		}
		if err := tx.InsertMarket(ctx, market); err != nil {
			return err
		}
		return tx.InsertClaim(ctx, domain.Claim{
			MarketID: "m",
			Voter:    "0x0000000000000000000000000000000000000aaa",
			Kind:     domain.ClaimPrize,
			Amount:   150,
		})
	})
	require.NoError(t, err)
}

func TestArchiveMarket(t *testing.T) {
	ctx := context.Background()
	store := memory.New(2000)
	writer := newCaptureWriter()
	archiver := NewArchiver(writer, store, store, slog.New(slog.DiscardHandler))

	seedResolvedMarket(t, store)

	t.Run("resolved market is snapshotted", func(t *testing.T) {
		require.NoError(t, archiver.ArchiveMarket(ctx, "m"))

		payload, ok := writer.objects["archive/markets/m.json"]
		require.True(t, ok)
		assert.Equal(t, "application/json", writer.types["archive/markets/m.json"])

		var snapshot MarketSnapshot
		require.NoError(t, json.Unmarshal(payload, &snapshot))
		assert.Equal(t, "m", snapshot.Market.ID)
		assert.True(t, snapshot.Market.YesWon)
		assert.Equal(t, uint64(2), snapshot.Market.RevealedYes)
		require.Len(t, snapshot.Claims, 1)
		assert.Equal(t, uint64(150), snapshot.Claims[0].Amount)
		assert.False(t, snapshot.ExportedAt.IsZero())
	})

	t.Run("unresolved market is refused", func(t *testing.T) {
		err := store.ExecTx(ctx, func(tx domain.LedgerTx) error {
			return tx.InsertMarket(ctx, domain.Market{ID: "open", Creator: "0x0000000000000000000000000000000000000bbb"})
		})
		require.NoError(t, err)

		err = archiver.ArchiveMarket(ctx, "open")
		assert.ErrorIs(t, err, domain.ErrNotResolved)
		assert.NotContains(t, writer.objects, "archive/markets/open.json")
	})
}

func TestArchiveAudit(t *testing.T) {
	ctx := context.Background()
	store := memory.New(2000)
	writer := newCaptureWriter()
	archiver := NewArchiver(writer, store, store, slog.New(slog.DiscardHandler))

	err := store.ExecTx(ctx, func(tx domain.LedgerTx) error {
		for _, event := range []string{"market_created", "vote_cast", "market_resolved"} {
			if err := tx.AppendAudit(ctx, event, map[string]any{"marketId": "m"}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	count, lastID, err := archiver.ArchiveAudit(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, int64(3), lastID)
	require.Len(t, writer.objects, 1)

	for path, payload := range writer.objects {
		assert.Equal(t, "application/x-ndjson", writer.types[path])
		lines := 0
		for _, b := range payload {
			if b == '\n' {
				lines++
			}
		}
		assert.Equal(t, 3, lines)
	}

	// Resuming from the returned cursor finds nothing new and uploads nothing.
	count, lastID, err = archiver.ArchiveAudit(ctx, lastID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, int64(3), lastID)
	require.Len(t, writer.objects, 1)
}
