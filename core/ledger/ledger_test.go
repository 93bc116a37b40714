package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FlowCash/core/token"
	"FlowCash/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	admin         = "0xadmin"
	ledgerAccount = "0xledger"
	artist        = "0xartist"
	fan           = "0xfan"
	listener      = "0xlistener"
)

var errJournalDown = errors.New("journal unavailable")

type memJournal struct {
	mu     sync.Mutex
	events []model.LedgerEvent
	fail   bool
}

func (j *memJournal) Append(_ context.Context, ev *model.LedgerEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errJournalDown
	}
	j.events = append(j.events, *ev)
	return nil
}

// ListAfter 实现 JournalReader，供跟随者同步
func (j *memJournal) ListAfter(_ context.Context, seq uint64, limit int) ([]model.LedgerEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.LedgerEvent
	for _, ev := range j.events {
		if ev.Seq > seq && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

type recorder struct {
	events []model.LedgerEvent
}

func (r *recorder) Notify(ev model.LedgerEvent) {
	r.events = append(r.events, ev)
}

// flakyToken fails pushes to one account.
type flakyToken struct {
	*token.Memory
	failTo string
}

func (f *flakyToken) Transfer(ctx context.Context, from, to string, amount model.Amount) error {
	if to == f.failTo {
		return errors.New("recipient rejected transfer")
	}
	return f.Memory.Transfer(ctx, from, to, amount)
}

type fixture struct {
	l       *Ledger
	tok     *token.Memory
	journal *memJournal
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	tok := token.NewMemory("USDT")
	return newFixtureWithToken(t, tok, tok, opts...)
}

func newFixtureWithToken(t *testing.T, tok *token.Memory, provider token.Provider, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	for _, acct := range []string{fan, listener} {
		require.NoError(t, tok.Mint(ctx, acct, model.MustParseAmount("1000")))
	}

	j := &memJournal{}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := []Option{
		WithJournal(j),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	}
	l, err := New(DefaultConfig(admin, ledgerAccount), provider, append(base, opts...)...)
	require.NoError(t, err)
	return &fixture{l: l, tok: tok, journal: j}
}

func (f *fixture) mint(t *testing.T, price string) uint64 {
	t.Helper()
	id, err := f.l.MintTrack(context.Background(), artist, MintParams{
		Title:          "Test Track",
		AudioHash:      "QmTestAudioHash123",
		CoverArtHash:   "QmTestCoverHash456",
		MetadataURI:    "ipfs://QmTestMetadata789",
		PricePerStream: model.MustParseAmount(price),
		Duration:       180,
		Genre:          "Brazilian Hip Hop",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) approve(t *testing.T, owner, amount string) {
	t.Helper()
	require.NoError(t, f.tok.Approve(context.Background(), owner, ledgerAccount, model.MustParseAmount(amount)))
}

func (f *fixture) allowance(t *testing.T, owner string) model.Amount {
	t.Helper()
	a, err := f.tok.Allowance(context.Background(), owner, ledgerAccount)
	require.NoError(t, err)
	return a
}

func (f *fixture) balance(t *testing.T, owner string) model.Amount {
	t.Helper()
	b, err := f.tok.BalanceOf(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.mint(t, "0.05")
	require.Equal(t, uint64(1), id)
	require.Equal(t, uint64(1), f.l.CurrentTrackID())

	f.approve(t, fan, "100")
	receipt, err := f.l.PurchaseStreams(ctx, fan, id, 10)
	require.NoError(t, err)
	require.Equal(t, model.MustParseAmount("0.50"), receipt.TotalCost)
	require.Equal(t, model.MustParseAmount("0.4875"), receipt.ArtistShare)
	require.Equal(t, model.MustParseAmount("0.0125"), receipt.PlatformShare)

	require.Equal(t, model.MustParseAmount("999.5"), f.balance(t, fan))
	require.Equal(t, model.MustParseAmount("0.4875"), f.balance(t, artist))
	require.Equal(t, model.MustParseAmount("0.0125"), f.balance(t, ledgerAccount))

	track, err := f.l.GetTrack(id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), track.TotalStreams)
	require.Equal(t, model.MustParseAmount("0.5"), track.TotalEarnings)

	history, err := f.l.GetTrackStreamHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, uint64(10), history[0].StreamCount)
	require.Equal(t, fan, history[0].Listener)

	require.NoError(t, f.l.LikeTrack(ctx, fan, id))
	require.NoError(t, f.l.LikeTrack(ctx, listener, id))
	require.NoError(t, f.l.UnlikeTrack(ctx, fan, id))

	require.NoError(t, f.l.UpdateTrackPrice(ctx, artist, id, model.MustParseAmount("0.08")))
	active, err := f.l.ToggleTrackStatus(ctx, artist, id)
	require.NoError(t, err)
	require.False(t, active)
	active, err = f.l.ToggleTrackStatus(ctx, artist, id)
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, f.l.VerifyArtist(ctx, admin, artist, true))

	stats := f.l.GetArtistStats(artist)
	require.Equal(t, model.ArtistStats{
		TotalTracks:   1,
		TotalStreams:  10,
		TotalEarnings: model.MustParseAmount("0.5"),
		TotalLikes:    1,
		IsVerified:    true,
	}, stats)
	require.Equal(t, []uint64{id}, f.l.GetArtistTracks(artist))

	platform := f.l.GetPlatformStats()
	require.Equal(t, model.PlatformStats{
		TotalTracks:     1,
		TotalStreams:    10,
		TotalEarnings:   model.MustParseAmount("0.5"),
		PlatformBalance: model.MustParseAmount("0.0125"),
	}, platform)

	withdrawn, err := f.l.WithdrawPlatformFees(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, model.MustParseAmount("0.0125"), withdrawn)
	require.Equal(t, model.MustParseAmount("0.0125"), f.balance(t, admin))
	require.Zero(t, f.l.GetPlatformStats().PlatformBalance)
}

func TestMintTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("sequential ids with zero counters", func(t *testing.T) {
		f := newFixture(t)
		for want := uint64(1); want <= 3; want++ {
			id := f.mint(t, "0.05")
			require.Equal(t, want, id)

			track, err := f.l.GetTrack(id)
			require.NoError(t, err)
			require.True(t, track.IsActive)
			require.Zero(t, track.TotalStreams)
			require.Zero(t, track.TotalEarnings)
			require.Zero(t, track.Likes)
			require.Equal(t, artist, track.Artist)
		}
		require.Equal(t, []uint64{1, 2, 3}, f.l.GetArtistTracks(artist))
		require.Equal(t, uint64(3), f.l.GetPlatformStats().TotalTracks)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newFixture(t)
		valid := MintParams{
			Title: "t", AudioHash: "a", CoverArtHash: "c",
			PricePerStream: model.MustParseAmount("0.05"), Duration: 1,
		}

		cases := map[string]struct {
			mutate func(*MintParams)
			want   error
		}{
			"price below min": {func(p *MintParams) { p.PricePerStream = 999 }, ErrInvalidPrice},
			"price above max": {func(p *MintParams) { p.PricePerStream = 1_000_001 }, ErrInvalidPrice},
			"zero duration":   {func(p *MintParams) { p.Duration = 0 }, ErrInvalidInput},
			"empty title":     {func(p *MintParams) { p.Title = "" }, ErrInvalidInput},
			"empty audio":     {func(p *MintParams) { p.AudioHash = "" }, ErrInvalidInput},
			"empty cover":     {func(p *MintParams) { p.CoverArtHash = "" }, ErrInvalidInput},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				p := valid
				tc.mutate(&p)
				_, err := f.l.MintTrack(ctx, artist, p)
				require.ErrorIs(t, err, tc.want)
			})
		}
		require.Zero(t, f.l.CurrentTrackID())
		require.Empty(t, f.journal.events)
	})

	t.Run("minting for another artist", func(t *testing.T) {
		f := newFixture(t)
		p := MintParams{
			Artist: artist, Title: "t", AudioHash: "a", CoverArtHash: "c",
			PricePerStream: model.MustParseAmount("0.05"), Duration: 1,
		}

		_, err := f.l.MintTrack(ctx, fan, p)
		require.ErrorIs(t, err, ErrUnauthorized)

		id, err := f.l.MintTrack(ctx, admin, p)
		require.NoError(t, err)
		track, _ := f.l.GetTrack(id)
		require.Equal(t, artist, track.Artist)

		_, err = f.l.MintTrack(ctx, "", p)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestUpdateTrackPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.mint(t, "0.05")

	err := f.l.UpdateTrackPrice(ctx, fan, id, model.MustParseAmount("0.08"))
	require.ErrorIs(t, err, ErrUnauthorized)
	track, _ := f.l.GetTrack(id)
	require.Equal(t, model.MustParseAmount("0.05"), track.PricePerStream)

	require.ErrorIs(t, f.l.UpdateTrackPrice(ctx, artist, id, model.MustParseAmount("2")), ErrInvalidPrice)
	require.ErrorIs(t, f.l.UpdateTrackPrice(ctx, artist, 99, model.MustParseAmount("0.08")), ErrNotFound)

	require.NoError(t, f.l.UpdateTrackPrice(ctx, artist, id, model.MustParseAmount("0.08")))
	track, _ = f.l.GetTrack(id)
	require.Equal(t, model.MustParseAmount("0.08"), track.PricePerStream)
}

func TestToggleTrackStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.mint(t, "0.05")

	_, err := f.l.ToggleTrackStatus(ctx, fan, id)
	require.ErrorIs(t, err, ErrUnauthorized)

	active, err := f.l.ToggleTrackStatus(ctx, artist, id)
	require.NoError(t, err)
	require.False(t, active)

	t.Run("inactive track rejects purchases without effects", func(t *testing.T) {
		f.approve(t, fan, "10")
		seq := f.l.Seq()

		_, err := f.l.PurchaseStreams(ctx, fan, id, 5)
		require.ErrorIs(t, err, ErrTrackInactive)
		require.ErrorIs(t, err, ErrInvalidInput)

		require.Equal(t, model.MustParseAmount("1000"), f.balance(t, fan))
		require.Zero(t, f.balance(t, ledgerAccount))
		track, _ := f.l.GetTrack(id)
		require.Zero(t, track.TotalStreams)
		history, _ := f.l.GetTrackStreamHistory(id)
		require.Empty(t, history)
		require.Equal(t, seq, f.l.Seq())
	})

	t.Run("inactive track still accepts likes and price updates", func(t *testing.T) {
		require.NoError(t, f.l.LikeTrack(ctx, fan, id))
		require.NoError(t, f.l.UpdateTrackPrice(ctx, artist, id, model.MustParseAmount("0.1")))
	})
}

func TestLikes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.mint(t, "0.05")

	require.NoError(t, f.l.LikeTrack(ctx, fan, id))
	require.ErrorIs(t, f.l.LikeTrack(ctx, fan, id), ErrAlreadyLiked)
	require.True(t, f.l.HasLiked(id, fan))

	track, _ := f.l.GetTrack(id)
	require.Equal(t, uint64(1), track.Likes)

	require.ErrorIs(t, f.l.UnlikeTrack(ctx, listener, id), ErrNotLiked)
	require.NoError(t, f.l.UnlikeTrack(ctx, fan, id))
	require.ErrorIs(t, f.l.UnlikeTrack(ctx, fan, id), ErrNotLiked)

	track, _ = f.l.GetTrack(id)
	require.Zero(t, track.Likes)
	require.False(t, f.l.HasLiked(id, fan))

	require.ErrorIs(t, f.l.LikeTrack(ctx, fan, 42), ErrNotFound)
}

func TestPurchaseStreamsAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.mint(t, "0.05")
	f.approve(t, fan, "100")
	f.approve(t, listener, "100")

	_, err := f.l.PurchaseStreams(ctx, fan, id, 3)
	require.NoError(t, err)
	require.NoError(t, f.l.UpdateTrackPrice(ctx, artist, id, model.MustParseAmount("0.08")))
	_, err = f.l.PurchaseStreams(ctx, listener, id, 7)
	require.NoError(t, err)

	want := model.MustParseAmount("0.15") + model.MustParseAmount("0.56")
	track, _ := f.l.GetTrack(id)
	require.Equal(t, uint64(10), track.TotalStreams)
	require.Equal(t, want, track.TotalEarnings)

	history, _ := f.l.GetTrackStreamHistory(id)
	require.Len(t, history, 2)
	require.Equal(t, fan, history[0].Listener)
	require.Equal(t, listener, history[1].Listener)
	require.True(t, history[0].Timestamp.Before(history[1].Timestamp))

	p := f.l.GetPlatformStats()
	require.Equal(t, want, p.TotalEarnings)
	require.Equal(t, f.balance(t, ledgerAccount), p.PlatformBalance)
	require.Equal(t, want, f.balance(t, artist)+p.PlatformBalance)
}

func TestPurchaseStreamsFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("zero count", func(t *testing.T) {
		f := newFixture(t)
		id := f.mint(t, "0.05")
		_, err := f.l.PurchaseStreams(ctx, fan, id, 0)
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown track", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.l.PurchaseStreams(ctx, fan, 7, 1)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("insufficient allowance", func(t *testing.T) {
		f := newFixture(t)
		id := f.mint(t, "0.05")
		f.approve(t, fan, "0.1")

		_, err := f.l.PurchaseStreams(ctx, fan, id, 10)
		require.ErrorIs(t, err, ErrInsufficientAllowance)
		require.Equal(t, model.MustParseAmount("1000"), f.balance(t, fan))
		track, _ := f.l.GetTrack(id)
		require.Zero(t, track.TotalStreams)
		require.Len(t, f.journal.events, 1)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f := newFixture(t)
		id := f.mint(t, "1")
		f.approve(t, fan, "5000")

		_, err := f.l.PurchaseStreams(ctx, fan, id, 2000)
		require.ErrorIs(t, err, ErrTransferFailed)
		require.Zero(t, f.l.GetPlatformStats().TotalStreams)
	})

	t.Run("cost overflow", func(t *testing.T) {
		f := newFixture(t)
		id := f.mint(t, "1")
		_, err := f.l.PurchaseStreams(ctx, fan, id, ^uint64(0))
		require.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("journal failure refunds the buyer", func(t *testing.T) {
		f := newFixture(t)
		id := f.mint(t, "0.05")
		f.approve(t, fan, "10")
		f.journal.fail = true

		_, err := f.l.PurchaseStreams(ctx, fan, id, 10)
		require.ErrorIs(t, err, errJournalDown)
		require.Equal(t, model.MustParseAmount("1000"), f.balance(t, fan))
		require.Zero(t, f.balance(t, ledgerAccount))
		require.Equal(t, model.MustParseAmount("10"), f.allowance(t, fan))
		history, _ := f.l.GetTrackStreamHistory(id)
		require.Empty(t, history)
	})

	t.Run("artist payout failure reverts the purchase", func(t *testing.T) {
		mem := token.NewMemory("USDT")
		f := newFixtureWithToken(t, mem, &flakyToken{Memory: mem, failTo: artist})
		id := f.mint(t, "0.05")
		f.approve(t, fan, "10")

		_, err := f.l.PurchaseStreams(ctx, fan, id, 10)
		require.ErrorIs(t, err, ErrTransferFailed)
		require.Equal(t, model.MustParseAmount("1000"), f.balance(t, fan))
		require.Zero(t, f.balance(t, ledgerAccount))
		require.Equal(t, model.MustParseAmount("10"), f.allowance(t, fan))
		require.Zero(t, f.l.GetPlatformStats().TotalEarnings)

		// 恢复的额度足够再次购买
		f.l.token = mem
		_, err = f.l.PurchaseStreams(ctx, fan, id, 10)
		require.NoError(t, err)
		require.Equal(t, model.MustParseAmount("9.5"), f.allowance(t, fan))

		require.Len(t, f.journal.events, 3)
		require.Equal(t, model.EventStreamsPurchased, f.journal.events[1].Type)
		require.Equal(t, model.EventPurchaseReverted, f.journal.events[2].Type)
		require.Equal(t, f.journal.events[1].Seq, f.journal.events[2].Reverts)
	})
}

func TestPurchaseAccumulatorOverflow(t *testing.T) {
	ctx := context.Background()
	const whale = "0xwhale"
	tok := token.NewMemory("USDT")
	require.NoError(t, tok.Mint(ctx, whale, ^model.Amount(0)))
	require.NoError(t, tok.Approve(ctx, whale, ledgerAccount, ^model.Amount(0)))
	j := &memJournal{}
	l, err := New(DefaultConfig(admin, ledgerAccount), tok, WithJournal(j), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	id, err := l.MintTrack(ctx, artist, MintParams{
		Title: "t", AudioHash: "a", CoverArtHash: "c",
		PricePerStream: model.MustParseAmount("1"), Duration: 1,
	})
	require.NoError(t, err)

	// 单笔成本不溢出，但累计收入接近上限
	count := uint64(^model.Amount(0) / model.MustParseAmount("1"))
	_, err = l.PurchaseStreams(ctx, whale, id, count)
	require.NoError(t, err)
	before, _ := l.GetTrack(id)
	balance, _ := tok.BalanceOf(ctx, whale)

	_, err = l.PurchaseStreams(ctx, whale, id, 1)
	require.ErrorIs(t, err, ErrOverflow)

	after, _ := l.GetTrack(id)
	require.Equal(t, before, after)
	left, _ := tok.BalanceOf(ctx, whale)
	require.Equal(t, balance, left)
	require.Len(t, j.events, 2)
}

func TestArtistStatsAcrossTracks(t *testing.T) {
	ctx := context.Background()
	const other = "0xother"
	f := newFixture(t)
	first := f.mint(t, "0.05")
	second := f.mint(t, "0.2")
	foreign, err := f.l.MintTrack(ctx, other, MintParams{
		Title: "t", AudioHash: "a", CoverArtHash: "c",
		PricePerStream: model.MustParseAmount("0.1"), Duration: 1,
	})
	require.NoError(t, err)
	f.approve(t, fan, "100")
	f.approve(t, listener, "100")

	purchases := []struct {
		buyer string
		id    uint64
		count uint64
	}{
		{fan, first, 10}, {listener, first, 3}, {fan, second, 7}, {listener, foreign, 5},
	}
	for _, p := range purchases {
		_, err := f.l.PurchaseStreams(ctx, p.buyer, p.id, p.count)
		require.NoError(t, err)
	}
	require.NoError(t, f.l.LikeTrack(ctx, fan, first))
	require.NoError(t, f.l.LikeTrack(ctx, listener, first))
	require.NoError(t, f.l.LikeTrack(ctx, fan, second))
	require.NoError(t, f.l.LikeTrack(ctx, fan, foreign))
	require.NoError(t, f.l.UnlikeTrack(ctx, listener, first))

	// 艺术家统计等于其名下曲目计数之和
	sum := func(ids []uint64) model.ArtistStats {
		var s model.ArtistStats
		for _, id := range ids {
			track, err := f.l.GetTrack(id)
			require.NoError(t, err)
			s.TotalTracks++
			s.TotalStreams += track.TotalStreams
			s.TotalEarnings += track.TotalEarnings
			s.TotalLikes += track.Likes
		}
		return s
	}
	mine := f.l.GetArtistStats(artist)
	require.Equal(t, sum([]uint64{first, second}), mine)
	require.Equal(t, model.ArtistStats{
		TotalTracks:   2,
		TotalStreams:  20,
		TotalEarnings: model.MustParseAmount("2.05"),
		TotalLikes:    2,
	}, mine)

	theirs := f.l.GetArtistStats(other)
	require.Equal(t, sum([]uint64{foreign}), theirs)

	platform := f.l.GetPlatformStats()
	require.Equal(t, platform.TotalStreams, mine.TotalStreams+theirs.TotalStreams)
	require.Equal(t, platform.TotalEarnings, mine.TotalEarnings+theirs.TotalEarnings)
	require.Zero(t, f.l.GetArtistStats("0xnobody"))
}

func TestSplitFee(t *testing.T) {
	totals := []model.Amount{0, 1, 3, 7, 9_999, 10_001, 500_000, 123_456_789, ^model.Amount(0)}
	for _, fee := range []uint64{0, 1, 250, 3_333, 9_999, 10_000} {
		for _, total := range totals {
			a, p := SplitFee(total, fee)
			require.Equal(t, total, a+p, "fee %d total %d", fee, total)
			require.LessOrEqual(t, a, total)
		}
	}

	a, p := SplitFee(500_000, 250)
	require.Equal(t, model.Amount(487_500), a)
	require.Equal(t, model.Amount(12_500), p)

	// 3 * 9750 / 10000 = 2.925 -> artist 2, platform 1
	a, p = SplitFee(3, 250)
	require.Equal(t, model.Amount(2), a)
	require.Equal(t, model.Amount(1), p)
}

func TestWithdrawPlatformFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	amount, err := f.l.WithdrawPlatformFees(ctx, admin)
	require.NoError(t, err)
	require.Zero(t, amount)
	require.Empty(t, f.journal.events)

	id := f.mint(t, "0.05")
	f.approve(t, fan, "100")
	_, err = f.l.PurchaseStreams(ctx, fan, id, 10)
	require.NoError(t, err)

	_, err = f.l.WithdrawPlatformFees(ctx, artist)
	require.ErrorIs(t, err, ErrUnauthorized)

	amount, err = f.l.WithdrawPlatformFees(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, model.MustParseAmount("0.0125"), amount)
	require.Equal(t, amount, f.balance(t, admin))
	require.Zero(t, f.l.GetPlatformStats().PlatformBalance)

	amount, err = f.l.WithdrawPlatformFees(ctx, admin)
	require.NoError(t, err)
	require.Zero(t, amount)
	require.Equal(t, model.MustParseAmount("0.0125"), f.balance(t, admin))
}

func TestWithdrawTransferFailure(t *testing.T) {
	ctx := context.Background()
	mem := token.NewMemory("USDT")
	f := newFixtureWithToken(t, mem, &flakyToken{Memory: mem, failTo: admin})
	id := f.mint(t, "0.05")
	f.approve(t, fan, "100")
	_, err := f.l.PurchaseStreams(ctx, fan, id, 10)
	require.NoError(t, err)

	_, err = f.l.WithdrawPlatformFees(ctx, admin)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.Equal(t, model.MustParseAmount("0.0125"), f.l.GetPlatformStats().PlatformBalance)

	last := f.journal.events[len(f.journal.events)-1]
	require.Equal(t, model.EventWithdrawReverted, last.Type)
}

func TestVerifyArtist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.ErrorIs(t, f.l.VerifyArtist(ctx, artist, artist, true), ErrUnauthorized)
	require.ErrorIs(t, f.l.VerifyArtist(ctx, admin, "", true), ErrInvalidInput)

	require.NoError(t, f.l.VerifyArtist(ctx, admin, artist, true))
	require.NoError(t, f.l.VerifyArtist(ctx, admin, artist, true))
	require.True(t, f.l.GetArtistStats(artist).IsVerified)
	require.Len(t, f.journal.events, 1)

	require.NoError(t, f.l.VerifyArtist(ctx, admin, artist, false))
	require.False(t, f.l.GetArtistStats(artist).IsVerified)
}

func TestConcurrentPurchases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.mint(t, "0.01")
	f.approve(t, fan, "100")
	f.approve(t, listener, "100")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		buyer := fan
		if i%2 == 1 {
			buyer = listener
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.PurchaseStreams(ctx, buyer, id, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	track, _ := f.l.GetTrack(id)
	require.Equal(t, uint64(100), track.TotalStreams)
	require.Equal(t, model.MustParseAmount("1"), track.TotalEarnings)

	history, _ := f.l.GetTrackStreamHistory(id)
	require.Len(t, history, 50)
	require.Equal(t, uint64(51), f.l.Seq())
}

func TestNotifiers(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, WithNotifier(rec))

	id := f.mint(t, "0.05")
	require.NoError(t, f.l.LikeTrack(ctx, fan, id))
	require.ErrorIs(t, f.l.LikeTrack(ctx, fan, id), ErrAlreadyLiked)

	require.Len(t, rec.events, 2)
	require.Equal(t, model.EventTrackMinted, rec.events[0].Type)
	require.Equal(t, model.EventTrackLiked, rec.events[1].Type)
	require.Equal(t, uint64(2), rec.events[1].Seq)
}

func TestNewValidatesConfig(t *testing.T) {
	tok := token.NewMemory("USDT")

	_, err := New(DefaultConfig("", ledgerAccount), tok)
	require.ErrorIs(t, err, ErrInvalidInput)

	cfg := DefaultConfig(admin, ledgerAccount)
	cfg.FeeBasisPoints = 10_001
	_, err = New(cfg, tok)
	require.ErrorIs(t, err, ErrInvalidInput)

	cfg = DefaultConfig(admin, ledgerAccount)
	cfg.MinPrice, cfg.MaxPrice = 10, 5
	_, err = New(cfg, tok)
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = New(DefaultConfig(admin, ledgerAccount), nil)
	require.Error(t, err)
}
