package reserve

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/pricing"
	"MemberReserve/internal/registry"
	"MemberReserve/internal/yield"
)

var (
	deployer  = ledger.MustParseAddress("0x00000000000000000000000000000000000000d1")
	reserveAt = ledger.MustParseAddress("0x00000000000000000000000000000000000000f0")
	dao       = ledger.MustParseAddress("0x00000000000000000000000000000000000000da")
	s1        = ledger.MustParseAddress("0x00000000000000000000000000000000000000a1")
	s2        = ledger.MustParseAddress("0x00000000000000000000000000000000000000b2")

	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, *ledger.Journal) error { return nil }

type fixture struct {
	reg   *registry.Registry
	res   *Reserve
	yield *yield.Accumulator
	book  *ledger.Book
	seq   *ledger.Sequencer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	seq := ledger.NewSequencer(nopCommitter{}, 0)
	reg, err := registry.New(seq, registry.Config{
		Owner:   deployer,
		Reserve: reserveAt,
		Pricing: pricing.Params{
			TargetPrice:   ledger.MustParseEther("0.01"),
			Decay:         decimal.RequireFromString("0.31"),
			PerDay:        decimal.NewFromInt(3),
			ReferenceTime: start,
		},
		FloorEnabled: true,
	}, log)
	require.NoError(t, err)

	acc := yield.NewAccumulator(log)
	book := ledger.NewBook(nil)
	res, err := New(seq, Config{Address: reserveAt, Owner: deployer}, reg, acc, book, log)
	require.NoError(t, err)
	reg.AttachVault(res)
	return &fixture{reg: reg, res: res, yield: acc, book: book, seq: seq}
}

func (f *fixture) mint(t *testing.T, who ledger.Address, now time.Time) (uint64, ledger.Amount) {
	t.Helper()
	price := f.reg.Price(now)
	id, err := f.reg.Join(context.Background(), who, price, now)
	require.NoError(t, err)
	return id, price
}

func (f *fixture) paidTo(who ledger.Address) ledger.Amount {
	var a ledger.Amount
	f.seq.View(func() { a = f.book.BalanceOf(who) })
	return a
}

func TestQuit_ProRataAlternatingMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var s1IDs, s2IDs []uint64
	now := start
	for i := 0; i < 5; i++ {
		id, _ := f.mint(t, s1, now)
		s1IDs = append(s1IDs, id)
		now = now.Add(time.Second)
		id, _ = f.mint(t, s2, now)
		s2IDs = append(s2IDs, id)
		now = now.Add(time.Second)
	}
	require.Equal(t, uint64(10), f.reg.AdjustedTotalSupply())

	s1Got, s2Got := new(big.Int), new(big.Int)
	for i := 4; i >= 0; i-- {
		paid, err := f.res.Quit(ctx, s2, []uint64{s2IDs[i]})
		require.NoError(t, err)
		s2Got.Add(s2Got, paid.Big())

		paid, err = f.res.Quit(ctx, s1, []uint64{s1IDs[i]})
		require.NoError(t, err)
		s1Got.Add(s1Got, paid.Big())
	}

	assert.Equal(t, 0, s1Got.Cmp(s2Got), "s1 %s, s2 %s", s1Got, s2Got)

	st := f.res.State()
	assert.True(t, st.Balance.IsZero(), "reserve left with %s", st.Balance)
	assert.Equal(t, uint64(0), st.AdjustedSupply)
	assert.Equal(t, uint64(10), f.reg.BalanceOf(reserveAt))
	assert.Equal(t, 0, f.paidTo(s1).Big().Cmp(s1Got))
}

func TestQuit_BatchPaysBookValueFromPreTransferSupply(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.mint(t, s1, start)
	}
	f.mint(t, s2, start)

	before := f.res.State()
	want, err := before.BookValue.MulUint64(2)
	require.NoError(t, err)

	paid, err := f.res.Quit(context.Background(), s1, []uint64{0, 1})
	require.NoError(t, err)
	assert.True(t, want.Equal(paid), "paid %s, want %s", paid, want)

	after := f.res.State()
	left, err := before.Balance.Sub(paid)
	require.NoError(t, err)
	assert.True(t, left.Equal(after.Balance))
	assert.Equal(t, uint64(2), after.AdjustedSupply)
}

func TestQuit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, s1, start)
	f.mint(t, s1, start)
	f.mint(t, s2, start)
	before := f.res.State()

	_, err := f.res.Quit(ctx, s1, []uint64{0, 0, 0})
	assert.ErrorIs(t, err, model.ErrNotOwner)
	assert.ErrorIs(t, err, model.ErrDuplicateID)

	_, err = f.res.Quit(ctx, s1, []uint64{1, 2})
	assert.ErrorIs(t, err, model.ErrNotOwner)

	_, err = f.res.Quit(ctx, s1, nil)
	assert.ErrorIs(t, err, model.ErrEmptyBatch)

	_, err = f.res.Quit(ctx, reserveAt, []uint64{0})
	assert.ErrorIs(t, err, model.ErrReserveCaller)

	after := f.res.State()
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, uint64(2), f.reg.BalanceOf(s1))
	assert.True(t, f.paidTo(s1).IsZero())

	_, err = f.res.Quit(ctx, s1, []uint64{0})
	require.NoError(t, err)
	_, err = f.res.Quit(ctx, s1, []uint64{0})
	assert.ErrorIs(t, err, model.ErrNotOwner)
}

func TestSetGovernor_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.res.SetGovernor(ctx, s1, ledger.ZeroAddress)
	assert.ErrorIs(t, err, model.ErrNotOwner)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	require.NoError(t, f.res.SetGovernor(ctx, deployer, dao))
	assert.Equal(t, dao, f.res.Governor())
	assert.True(t, f.res.State().YieldRecipientLocked)

	require.NoError(t, f.res.SetGovernor(ctx, deployer, ledger.ZeroAddress))
	assert.False(t, f.res.State().YieldRecipientLocked)
}

func TestClaimAllYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, s1, start)
	base := f.res.State().Balance

	claimed, err := f.res.ClaimAllYield(ctx)
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())

	require.NoError(t, f.yield.Accrue(ledger.MustParseEther("0.5")))
	claimed, err = f.res.ClaimAllYield(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.5", claimed.Ether())
	grown, err := base.Add(claimed)
	require.NoError(t, err)
	assert.True(t, grown.Equal(f.res.State().Balance))

	require.NoError(t, f.res.SetGovernor(ctx, deployer, dao))
	require.NoError(t, f.yield.Accrue(ledger.MustParseEther("0.25")))
	_, err = f.res.ClaimAllYield(ctx)
	require.NoError(t, err)
	assert.True(t, grown.Equal(f.res.State().Balance), "sale proceeds must stay in the reserve")
	assert.Equal(t, "0.25", f.paidTo(dao).Ether())

	pending, err := f.yield.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, pending.IsZero())
}

func TestAccrueYield_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, s1, start)
	base := f.res.State().Balance

	_, err := f.res.AccrueYield(ctx, s1, ledger.MustParseEther("1000"))
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	claimed, err := f.res.ClaimAllYield(ctx)
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())

	paid, err := f.res.Quit(ctx, s1, []uint64{0})
	require.NoError(t, err)
	assert.True(t, paid.Equal(base), "exit pays only what was paid in")

	pending, err := f.res.AccrueYield(ctx, deployer, ledger.NewAmount(7))
	require.NoError(t, err)
	assert.Equal(t, "7", pending.String())
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.res.TransferOwnership(ctx, s1, s1), model.ErrUnauthorized)
	require.NoError(t, f.res.TransferOwnership(ctx, deployer, dao))
	assert.Equal(t, dao, f.res.Owner())
	assert.ErrorIs(t, f.res.SetGovernor(ctx, deployer, dao), model.ErrUnauthorized)
}
