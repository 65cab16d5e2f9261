package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/fhe"
	"github.com/beliefmarket/beliefd/internal/ledger"
	"github.com/beliefmarket/beliefd/internal/store/memory"
)

const (
	owner  = "0x0000000000000000000000000000000000000001"
	alice  = "0x0000000000000000000000000000000000000aaa"
	bob    = "0x0000000000000000000000000000000000000bbb"
	carol  = "0x0000000000000000000000000000000000000ccc"
	payout = "0x0000000000000000000000000000000000000fee"

	platformStake = 2000
	voteStake     = 100
)

// stubGateway records decryption requests made by the ledger. An optional
// submit hook lets tests fail the submission or answer it inline.
type stubGateway struct {
	requests int
	lastID   string
	yes, no  []byte
	submit   func(requestID string, yesHandle, noHandle []byte) error
}

func (g *stubGateway) RequestDecryption(ctx context.Context, requestID, marketID string, yesHandle, noHandle []byte) error {
	g.requests++
	g.lastID = requestID
	g.yes, g.no = yesHandle, noHandle
	if g.submit != nil {
		return g.submit(requestID, yesHandle, noHandle)
	}
	return nil
}

type fixture struct {
	ledger *ledger.Ledger
	store  *memory.Store
	cipher *fhe.Sealed
	gw     *stubGateway
	now    time.Time
	events []domain.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  memory.New(platformStake),
		cipher: fhe.NewSealed("test"),
		gw:     &stubGateway{},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	rules := ledger.Rules{
		MinVoteStake: 10,
		MinDuration:  5 * time.Minute,
		MaxDuration:  30 * 24 * time.Hour,
	}

	l, err := ledger.New(
		f.store, f.cipher, f.gw, rules, owner,
		slog.New(slog.DiscardHandler),
		ledger.WithClock(func() time.Time { return f.now }),
		ledger.WithEventSink(domain.EventSinkFunc(func(ev domain.Event) {
			f.events = append(f.events, ev)
		})),
	)
	require.NoError(t, err)
	f.ledger = l
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) create(t *testing.T, id string) domain.Market {
	t.Helper()
	m, err := f.ledger.CreateMarket(context.Background(), id, owner, voteStake, 10*time.Minute, platformStake)
	require.NoError(t, err)
	return m
}

func (f *fixture) vote(t *testing.T, id, voter string, side domain.VoteSide) {
	t.Helper()
	require.NoError(t, f.castVote(id, voter, side))
}

func (f *fixture) castVote(id, voter string, side domain.VoteSide) error {
	weight, err := f.cipher.EncryptUint64(1)
	if err != nil {
		return err
	}
	return f.ledger.CastVote(context.Background(), id, voter, side, weight, nil, voteStake)
}

// reveal runs the full expiry-request-callback round trip, decrypting the
// submitted accumulators the way the sim oracle does.
func (f *fixture) reveal(t *testing.T, id string) {
	t.Helper()
	f.advance(11 * time.Minute)

	_, err := f.ledger.RequestReveal(context.Background(), id, owner)
	require.NoError(t, err)

	yes, err := f.cipher.Open(f.gw.yes)
	require.NoError(t, err)
	no, err := f.cipher.Open(f.gw.no)
	require.NoError(t, err)

	require.NoError(t, f.ledger.HandleRevealCallback(context.Background(), f.gw.lastID, yes, no))
}

func TestCreateMarket(t *testing.T) {
	ctx := context.Background()

	t.Run("creates with expiry and credits treasury", func(t *testing.T) {
		f := newFixture(t)
		m := f.create(t, "btc-100k")

		assert.Equal(t, f.now.Add(10*time.Minute), m.ExpiryTime)
		assert.Equal(t, uint64(0), m.PrizePool)
		assert.False(t, m.Resolved)

		balance, err := f.ledger.TreasuryBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(platformStake), balance)

		require.Len(t, f.events, 1)
		assert.Equal(t, domain.EventMarketCreated, f.events[0].Type)
	})

	t.Run("duplicate id always fails", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "dup")

		_, err := f.ledger.CreateMarket(ctx, "dup", owner, voteStake, 10*time.Minute, platformStake)
		assert.ErrorIs(t, err, domain.ErrDuplicateMarket)
	})

	t.Run("fee must match the current platform stake", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.CreateMarket(ctx, "m", owner, voteStake, 10*time.Minute, platformStake-1)
		assert.ErrorIs(t, err, domain.ErrFeeMismatch)

		// Failed creation leaves no trace.
		ids, err := f.ledger.MarketIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
		balance, err := f.ledger.TreasuryBalance(ctx)
		require.NoError(t, err)
		assert.Zero(t, balance)
	})

	t.Run("vote stake below minimum fails", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.CreateMarket(ctx, "m", owner, 9, 10*time.Minute, platformStake)
		assert.ErrorIs(t, err, domain.ErrStakeTooLow)
	})

	t.Run("duration boundaries", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.ledger.CreateMarket(ctx, "min", owner, voteStake, 5*time.Minute, platformStake)
		assert.NoError(t, err)

		_, err = f.ledger.CreateMarket(ctx, "too-short", owner, voteStake, 5*time.Minute-time.Second, platformStake)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration)

		_, err = f.ledger.CreateMarket(ctx, "max", owner, voteStake, 30*24*time.Hour, platformStake)
		assert.NoError(t, err)

		_, err = f.ledger.CreateMarket(ctx, "too-long", owner, voteStake, 30*24*time.Hour+time.Second, platformStake)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	})

	t.Run("ids enumerate in creation order", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m1")
		f.create(t, "m2")
		f.create(t, "m3")

		ids, err := f.ledger.MarketIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2", "m3"}, ids)

		count, err := f.ledger.CountMarkets(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}

func TestGetMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("unknown id returns zero record, not an error", func(t *testing.T) {
		m, err := f.ledger.GetMarket(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, m.Exists())
		assert.Equal(t, "nope", m.ID)
	})

	t.Run("empty id is handled gracefully", func(t *testing.T) {
		m, err := f.ledger.GetMarket(ctx, "")
		require.NoError(t, err)
		assert.False(t, m.Exists())
	})
}

func TestCastVote(t *testing.T) {
	ctx := context.Background()

	t.Run("prize pool grows by exactly voteStake per vote", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")

		f.vote(t, "m", alice, domain.VoteYes)
		f.vote(t, "m", bob, domain.VoteYes)
		f.vote(t, "m", carol, domain.VoteNo)

		m, err := f.ledger.GetMarket(ctx, "m")
		require.NoError(t, err)
		assert.Equal(t, uint64(3*voteStake), m.PrizePool)
		assert.Equal(t, uint32(2), m.YesVoters)
		assert.Equal(t, uint32(1), m.NoVoters)
	})

	t.Run("second vote always fails regardless of side", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)

		assert.ErrorIs(t, f.castVote("m", alice, domain.VoteYes), domain.ErrAlreadyVoted)
		assert.ErrorIs(t, f.castVote("m", alice, domain.VoteNo), domain.ErrAlreadyVoted)

		voted, err := f.ledger.HasVoted(ctx, "m", alice)
		require.NoError(t, err)
		assert.True(t, voted)
	})

	t.Run("unknown market", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.castVote("ghost", alice, domain.VoteYes), domain.ErrUnknownMarket)
	})

	t.Run("expired market", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.advance(10 * time.Minute) // voting closes exactly at expiry
		assert.ErrorIs(t, f.castVote("m", alice, domain.VoteYes), domain.ErrMarketExpired)
	})

	t.Run("incorrect stake", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")

		weight, err := f.cipher.EncryptUint64(1)
		require.NoError(t, err)
		err = f.ledger.CastVote(ctx, "m", alice, domain.VoteYes, weight, nil, voteStake-1)
		assert.ErrorIs(t, err, domain.ErrIncorrectStake)

		m, err := f.ledger.GetMarket(ctx, "m")
		require.NoError(t, err)
		assert.Zero(t, m.PrizePool)
	})

	t.Run("malformed ciphertext is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")

		err := f.ledger.CastVote(ctx, "m", alice, domain.VoteYes, []byte("garbage"), nil, voteStake)
		assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)

		voted, err := f.ledger.HasVoted(ctx, "m", alice)
		require.NoError(t, err)
		assert.False(t, voted)
	})

	t.Run("vote event never carries the choice", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)

		ev := f.events[len(f.events)-1]
		assert.Equal(t, domain.EventVoteCast, ev.Type)
		assert.Equal(t, "m", ev.MarketID)
		assert.Empty(t, ev.Data)
	})
}

func TestRequestReveal(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions to awaiting reveal", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.advance(11 * time.Minute)

		reqID, err := f.ledger.RequestReveal(ctx, "m", owner)
		require.NoError(t, err)
		assert.NotEmpty(t, reqID)
		assert.Equal(t, 1, f.gw.requests)

		status, err := f.ledger.RevealStatus(ctx, "m")
		require.NoError(t, err)
		assert.True(t, status.Pending)
		assert.False(t, status.Resolved)
		assert.Equal(t, reqID, status.DecryptionRequestID)
	})

	t.Run("before expiry", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		_, err := f.ledger.RequestReveal(ctx, "m", owner)
		assert.ErrorIs(t, err, domain.ErrNotExpired)
	})

	t.Run("second request while pending", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.advance(11 * time.Minute)

		_, err := f.ledger.RequestReveal(ctx, "m", owner)
		require.NoError(t, err)
		_, err = f.ledger.RequestReveal(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrAlreadyPending)
		assert.Equal(t, 1, f.gw.requests)
	})

	t.Run("already resolved", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.reveal(t, "m")

		_, err := f.ledger.RequestReveal(ctx, "m", owner)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})

	t.Run("unknown market", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.RequestReveal(ctx, "ghost", owner)
		assert.ErrorIs(t, err, domain.ErrUnknownMarket)
	})

	// The token is committed before the oracle is called, so a callback that
	// arrives while the submission is still in flight must already match.
	t.Run("callback racing the submission resolves the market", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.advance(11 * time.Minute)

		f.gw.submit = func(requestID string, yesHandle, noHandle []byte) error {
			yes, err := f.cipher.Open(yesHandle)
			require.NoError(t, err)
			no, err := f.cipher.Open(noHandle)
			require.NoError(t, err)
			return f.ledger.HandleRevealCallback(ctx, requestID, yes, no)
		}

		reqID, err := f.ledger.RequestReveal(ctx, "m", owner)
		require.NoError(t, err)
		assert.NotEmpty(t, reqID)

		m, err := f.ledger.GetMarket(ctx, "m")
		require.NoError(t, err)
		assert.True(t, m.Resolved)
		assert.True(t, m.YesWon)
	})

	t.Run("failed submission leaves the market retryable", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.advance(11 * time.Minute)

		f.gw.submit = func(string, []byte, []byte) error { return errors.New("relayer unavailable") }
		_, err := f.ledger.RequestReveal(ctx, "m", owner)
		require.Error(t, err)

		status, err := f.ledger.RevealStatus(ctx, "m")
		require.NoError(t, err)
		assert.False(t, status.Pending)

		f.gw.submit = nil
		_, err = f.ledger.RequestReveal(ctx, "m", owner)
		require.NoError(t, err)
		assert.Equal(t, 2, f.gw.requests)
	})
}

func TestRevealCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves with strict majority", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.vote(t, "m", bob, domain.VoteYes)
		f.vote(t, "m", carol, domain.VoteNo)
		f.reveal(t, "m")

		m, err := f.ledger.GetMarket(ctx, "m")
		require.NoError(t, err)
		assert.True(t, m.Resolved)
		assert.True(t, m.YesWon)
		assert.Equal(t, uint64(2), m.RevealedYes)
		assert.Equal(t, uint64(1), m.RevealedNo)

		ev := f.events[len(f.events)-1]
		assert.Equal(t, domain.EventMarketResolved, ev.Type)
		assert.Equal(t, uint64(3*voteStake), ev.Data["totalPrize"])
	})

	t.Run("unknown token mutates nothing", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.advance(11 * time.Minute)
		_, err := f.ledger.RequestReveal(ctx, "m", owner)
		require.NoError(t, err)

		err = f.ledger.HandleRevealCallback(ctx, "spoofed-token", 9, 9)
		assert.ErrorIs(t, err, domain.ErrUnknownRequest)

		status, err := f.ledger.RevealStatus(ctx, "m")
		require.NoError(t, err)
		assert.True(t, status.Pending)
		assert.False(t, status.Resolved)
	})

	t.Run("replay with different numbers is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.reveal(t, "m")

		require.NoError(t, f.ledger.HandleRevealCallback(ctx, f.gw.lastID, 999, 0))

		m, err := f.ledger.GetMarket(ctx, "m")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), m.RevealedYes)
		assert.Equal(t, uint64(0), m.RevealedNo)
		assert.True(t, m.YesWon)
	})
}

func TestSettlement(t *testing.T) {
	ctx := context.Background()

	// 2 yes, 1 no, stake 100 each. Yes wins; each yes voter
	// receives floor(300/2) = 150.
	t.Run("winners split the pool", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m1")
		f.vote(t, "m1", alice, domain.VoteYes)
		f.vote(t, "m1", bob, domain.VoteYes)
		f.vote(t, "m1", carol, domain.VoteNo)
		f.reveal(t, "m1")

		got, err := f.ledger.ClaimPrize(ctx, "m1", alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), got)

		got, err = f.ledger.ClaimPrize(ctx, "m1", bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), got)

		_, err = f.ledger.ClaimPrize(ctx, "m1", carol)
		assert.ErrorIs(t, err, domain.ErrNotAWinner)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.vote(t, "m", carol, domain.VoteNo)
		f.vote(t, "m", bob, domain.VoteYes)
		f.reveal(t, "m")

		_, err := f.ledger.ClaimPrize(ctx, "m", alice)
		require.NoError(t, err)
		_, err = f.ledger.ClaimPrize(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

		claimed, err := f.ledger.HasClaimed(ctx, "m", alice)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("not resolved", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)

		_, err := f.ledger.ClaimPrize(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrNotResolved)
		_, err = f.ledger.ClaimRefund(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrNotResolved)
	})

	t.Run("non-voter cannot claim", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.reveal(t, "m")

		_, err := f.ledger.ClaimPrize(ctx, "m", bob)
		assert.ErrorIs(t, err, domain.ErrDidNotVote)
	})

	// 1 yes, 1 no is a tie; prizes are blocked and each
	// voter gets exactly their stake back.
	t.Run("tie pays refunds, never prizes", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.vote(t, "m", bob, domain.VoteNo)
		f.reveal(t, "m")

		m, err := f.ledger.GetMarket(ctx, "m")
		require.NoError(t, err)
		require.True(t, m.Tied())

		_, err = f.ledger.ClaimPrize(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrTiedOutcome)
		_, err = f.ledger.ClaimPrize(ctx, "m", bob)
		assert.ErrorIs(t, err, domain.ErrTiedOutcome)

		got, err := f.ledger.ClaimRefund(ctx, "m", alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(voteStake), got)

		got, err = f.ledger.ClaimRefund(ctx, "m", bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(voteStake), got)

		_, err = f.ledger.ClaimRefund(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})

	t.Run("refund requires a tie", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m")
		f.vote(t, "m", alice, domain.VoteYes)
		f.reveal(t, "m")

		_, err := f.ledger.ClaimRefund(ctx, "m", alice)
		assert.ErrorIs(t, err, domain.ErrNotATie)
	})
}

func TestTreasury(t *testing.T) {
	ctx := context.Background()

	t.Run("set platform stake affects future creations only", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "before")

		require.NoError(t, f.ledger.SetPlatformStake(ctx, owner, 5000))

		stake, err := f.ledger.PlatformStake(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5000), stake)

		_, err = f.ledger.CreateMarket(ctx, "after", owner, voteStake, 10*time.Minute, platformStake)
		assert.ErrorIs(t, err, domain.ErrFeeMismatch)
		_, err = f.ledger.CreateMarket(ctx, "after", owner, voteStake, 10*time.Minute, 5000)
		assert.NoError(t, err)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.ledger.SetPlatformStake(ctx, alice, 1), domain.ErrNotOwner)
		_, err := f.ledger.WithdrawPlatformFees(ctx, alice, payout)
		assert.ErrorIs(t, err, domain.ErrNotOwner)
	})

	t.Run("withdraw drains the whole balance once", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "m1")
		f.create(t, "m2")

		amount, err := f.ledger.WithdrawPlatformFees(ctx, owner, payout)
		require.NoError(t, err)
		assert.Equal(t, uint64(2*platformStake), amount)

		balance, err := f.ledger.TreasuryBalance(ctx)
		require.NoError(t, err)
		assert.Zero(t, balance)

		_, err = f.ledger.WithdrawPlatformFees(ctx, owner, payout)
		assert.ErrorIs(t, err, domain.ErrNoFees)
	})
}

func TestCreatorOnlyRevealPolicy(t *testing.T) {
	ctx := context.Background()

	store := memory.New(platformStake)
	cipher := fhe.NewSealed("test")
	gw := &stubGateway{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rules := ledger.DefaultRules()
	rules.MinVoteStake = 10
	rules.CreatorOnlyReveal = true

	l, err := ledger.New(store, cipher, gw, rules, owner,
		slog.New(slog.DiscardHandler),
		ledger.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	_, err = l.CreateMarket(ctx, "m", alice, voteStake, 10*time.Minute, platformStake)
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)

	_, err = l.RequestReveal(ctx, "m", bob)
	assert.ErrorIs(t, err, domain.ErrNotCreator)

	_, err = l.RequestReveal(ctx, "m", alice)
	assert.NoError(t, err)
}
