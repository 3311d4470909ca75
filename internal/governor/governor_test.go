package governor

import (
	"context"
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
	"MemberReserve/internal/reserve"
	"MemberReserve/internal/yield"
)

var (
	deployer  = ledger.MustParseAddress("0x00000000000000000000000000000000000000d1")
	govAt     = ledger.MustParseAddress("0x00000000000000000000000000000000000000c0")
	reserveAt = ledger.MustParseAddress("0x00000000000000000000000000000000000000f0")

	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func signer(i int) ledger.Address {
	var a ledger.Address
	a[19] = byte(0x10 + i)
	return a
}

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, *ledger.Journal) error { return nil }

type fixture struct {
	reg *registry.Registry
	res *reserve.Reserve
	gov *Governor
}

type option func(*Config, *reserve.Config)

func withMode(m WeightMode) option {
	return func(c *Config, _ *reserve.Config) { c.WeightMode = m }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	log := zap.NewNop()
	seq := ledger.NewSequencer(nopCommitter{}, 0)

	reg, err := registry.New(seq, registry.Config{
		Owner:   govAt,
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

	gcfg := Config{Address: govAt, Proposer: deployer, QuorumBps: 1000}
	rcfg := reserve.Config{Address: reserveAt, Owner: govAt}
	for _, o := range opts {
		o(&gcfg, &rcfg)
	}

	res, err := reserve.New(seq, rcfg, reg, yield.NewAccumulator(log), ledger.NewBook(nil), log)
	require.NoError(t, err)
	reg.AttachVault(res)

	gov, err := New(seq, gcfg, reg, []Controlled{reg, res}, log)
	require.NoError(t, err)
	return &fixture{reg: reg, res: res, gov: gov}
}

func (f *fixture) mint(t *testing.T, who ledger.Address, n int, now time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.reg.Join(context.Background(), who, f.reg.Price(now), now)
		require.NoError(t, err)
	}
}

func TestPropose_OnlyProposerOnePerPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1, s2 := signer(1), signer(2)

	_, err := f.gov.Propose(ctx, s1, deployer, start)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	p, err := f.gov.Propose(ctx, deployer, s1, start)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Period)
	assert.Equal(t, model.StateProposalOpen, f.gov.State())

	_, err = f.gov.Propose(ctx, deployer, s2, start)
	assert.ErrorIs(t, err, model.ErrProposalActive)

	period := f.gov.ProposalPeriod()
	prop, ok := f.gov.Proposal(s1, period)
	require.True(t, ok)
	settled, err := f.gov.Settle(ctx, s1, prop.EndTime.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, model.ProposalFailed, settled.Status)
	assert.Equal(t, model.StateSettled, f.gov.State())

	require.NoError(t, f.gov.TransferProposer(ctx, deployer, s1))
	_, err = f.gov.Propose(ctx, s1, deployer, prop.EndTime.Add(time.Minute))
	require.NoError(t, err)
	_, err = f.gov.Propose(ctx, deployer, s2, prop.EndTime.Add(time.Minute))
	assert.ErrorIs(t, err, model.ErrProposalActive)
}

func TestVote_PassingProposalLocksAndTransfersControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.mint(t, signer(i), 3, start)
	}
	newOwner := signer(1)

	now := start.Add(time.Hour)
	prop, err := f.gov.Propose(ctx, deployer, newOwner, now)
	require.NoError(t, err)
	assert.Greater(t, prop.Quorum, uint64(0))
	assert.Equal(t, now.Add(7*24*time.Hour), prop.EndTime)

	for i := 0; i < 5; i++ {
		_, err := f.gov.Vote(ctx, signer(i), newOwner, model.For, now)
		require.NoError(t, err)
	}

	_, err = f.gov.Settle(ctx, newOwner, prop.EndTime.Add(-time.Second))
	assert.ErrorIs(t, err, model.ErrVotingNotEnded)

	settled, err := f.gov.Settle(ctx, newOwner, prop.EndTime.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPassed, settled.Status)
	assert.Equal(t, uint64(15), settled.ForVotes)

	assert.True(t, f.gov.Locked())
	assert.Equal(t, model.StateLocked, f.gov.State())
	assert.Equal(t, newOwner, f.reg.Owner())
	assert.Equal(t, newOwner, f.res.Owner())

	_, err = f.gov.Propose(ctx, deployer, signer(0), prop.EndTime.Add(time.Hour))
	assert.ErrorIs(t, err, model.ErrGovernanceLocked)
	_, err = f.gov.Propose(ctx, signer(3), signer(0), prop.EndTime.Add(time.Hour))
	assert.ErrorIs(t, err, model.ErrGovernanceLocked)

	// the new owner has full control of both components
	require.NoError(t, f.res.TransferOwnership(ctx, newOwner, signer(0)))
	require.NoError(t, f.reg.TransferOwnership(ctx, newOwner, signer(0)))
}

func TestQuorum_FiftyRecordsAtTenPercent(t *testing.T) {
	f := newFixture(t)
	now := start
	for i := 0; i < 5; i++ {
		for k := 0; k < 10; k++ {
			f.mint(t, signer(i), 1, now)
			now = now.Add(time.Hour)
		}
	}
	prop, err := f.gov.Propose(context.Background(), deployer, signer(1), now)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), prop.Quorum)
}

func TestQuorum_RoundsUpAndNeverZero(t *testing.T) {
	f := newFixture(t)
	q, err := f.gov.quorum(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), q)

	q, err = f.gov.quorum(51)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), q)
}

func TestRepropose_AfterFailedProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.mint(t, signer(i), 3, start)
	}
	newOwner := signer(1)

	prop, err := f.gov.Propose(ctx, deployer, newOwner, start)
	require.NoError(t, err)

	// zero weight votes are accepted but add nothing
	v, err := f.gov.Vote(ctx, signer(6), newOwner, model.For, start)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.Weight)
	prop, _ = f.gov.Proposal(newOwner, prop.Period)
	assert.Equal(t, uint64(0), prop.ForVotes)
	assert.True(t, f.gov.HasVoted(prop.Period, signer(6)))

	for i := 0; i < 5; i++ {
		_, err := f.gov.Vote(ctx, signer(i), newOwner, model.Against, start)
		require.NoError(t, err)
	}

	end := prop.EndTime.Add(10 * time.Second)
	settled, err := f.gov.Settle(ctx, newOwner, end)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalFailed, settled.Status)
	assert.Equal(t, uint64(15), settled.AgainstVotes)
	assert.False(t, f.gov.Locked())
	assert.Equal(t, govAt, f.reg.Owner())

	second, err := f.gov.Propose(ctx, deployer, newOwner, end)
	require.NoError(t, err)
	assert.Equal(t, prop.Period+1, second.Period)
	_, err = f.gov.Settle(ctx, newOwner, second.EndTime.Add(1000*time.Second))
	require.NoError(t, err)

	end = second.EndTime.Add(2000 * time.Second)
	third, err := f.gov.Propose(ctx, deployer, newOwner, end)
	require.NoError(t, err)
	assert.Equal(t, second.Period+1, third.Period)
	for i := 0; i < 5; i++ {
		_, err := f.gov.Vote(ctx, signer(i), newOwner, model.For, end)
		require.NoError(t, err)
	}
	_, err = f.gov.Settle(ctx, newOwner, third.EndTime.Add(10*time.Second))
	require.NoError(t, err)

	assert.True(t, f.gov.Locked())
	assert.Equal(t, newOwner, f.reg.Owner())
	assert.Equal(t, newOwner, f.res.Owner())
	assert.Len(t, f.gov.Proposals(), 3)
}

func TestVote_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.mint(t, signer(i), 3, start)
	}
	newOwner := signer(1)

	_, err := f.gov.Vote(ctx, signer(1), newOwner, model.For, start)
	assert.ErrorIs(t, err, model.ErrInvalidProposal)

	prop, err := f.gov.Propose(ctx, deployer, newOwner, start)
	require.NoError(t, err)

	_, err = f.gov.Vote(ctx, signer(1), newOwner, model.For, start)
	require.NoError(t, err)

	_, err = f.gov.Vote(ctx, signer(1), reserveAt, model.For, start)
	assert.ErrorIs(t, err, model.ErrInvalidProposal)

	_, err = f.gov.Vote(ctx, signer(1), newOwner, model.For, start)
	assert.ErrorIs(t, err, model.ErrHasVoted)

	_, err = f.gov.Vote(ctx, signer(2), newOwner, model.Support(7), start)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = f.gov.Vote(ctx, signer(2), newOwner, model.For, prop.EndTime)
	assert.ErrorIs(t, err, model.ErrVotingClosed)

	_, err = f.gov.Settle(ctx, signer(2), prop.EndTime)
	assert.ErrorIs(t, err, model.ErrInvalidProposal)
}

func TestVote_WeightModes(t *testing.T) {
	for _, tc := range []struct {
		mode WeightMode
		want uint64
	}{
		{WeightLive, 9},
		{WeightSnapshot, 6},
	} {
		t.Run(string(tc.mode), func(t *testing.T) {
			f := newFixture(t, withMode(tc.mode))
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				f.mint(t, signer(i), 3, start)
			}
			newOwner := signer(1)
			_, err := f.gov.Propose(ctx, deployer, newOwner, start)
			require.NoError(t, err)

			_, err = f.gov.Vote(ctx, signer(1), newOwner, model.For, start)
			require.NoError(t, err)
			p, _ := f.gov.Current()
			assert.Equal(t, uint64(3), p.ForVotes)

			// acquired after the proposal opened
			f.mint(t, signer(2), 3, start.Add(time.Minute))

			_, err = f.gov.Vote(ctx, signer(2), newOwner, model.For, start.Add(time.Minute))
			require.NoError(t, err)
			p, _ = f.gov.Current()
			assert.Equal(t, tc.want, p.ForVotes)
		})
	}
}

func TestSettle_AtomicWhenControlCannotBeHandedOver(t *testing.T) {
	f := newFixture(t, func(_ *Config, r *reserve.Config) { r.Owner = deployer })
	ctx := context.Background()
	f.mint(t, signer(0), 3, start)
	newOwner := signer(1)

	prop, err := f.gov.Propose(ctx, deployer, newOwner, start)
	require.NoError(t, err)
	_, err = f.gov.Vote(ctx, signer(0), newOwner, model.For, start)
	require.NoError(t, err)

	_, err = f.gov.Settle(ctx, newOwner, prop.EndTime)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	assert.False(t, f.gov.Locked())
	assert.Equal(t, govAt, f.reg.Owner())
	cur, _ := f.gov.Current()
	assert.Equal(t, model.ProposalOpen, cur.Status)

	require.NoError(t, f.res.TransferOwnership(ctx, deployer, govAt))
	_, err = f.gov.Settle(ctx, newOwner, prop.EndTime)
	require.NoError(t, err)
	assert.True(t, f.gov.Locked())
}

func TestSettleDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.gov.SettleDue(ctx, start)
	require.NoError(t, err)
	assert.False(t, ok)

	prop, err := f.gov.Propose(ctx, deployer, signer(1), start)
	require.NoError(t, err)

	_, ok, err = f.gov.SettleDue(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	p, ok, err := f.gov.SettleDue(ctx, prop.EndTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.ProposalFailed, p.Status)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	snap := model.NewSnapshot()
	snap.Proposer = signer(4)
	snap.Proposals = []model.Proposal{
		{Period: 1, Candidate: signer(1), Quorum: 1, Status: model.ProposalFailed},
		{Period: 2, Candidate: signer(2), Quorum: 1, EndTime: start.Add(time.Hour), Status: model.ProposalOpen},
	}
	snap.Votes = []model.Vote{{Period: 2, Voter: signer(3), Support: model.For}}
	f.gov.Restore(snap)

	assert.Equal(t, uint64(2), f.gov.ProposalPeriod())
	assert.Equal(t, model.StateProposalOpen, f.gov.State())
	assert.True(t, f.gov.HasVoted(2, signer(3)))
	assert.Equal(t, signer(4), f.gov.Proposer())

	_, err := f.gov.Vote(context.Background(), signer(3), signer(2), model.For, start)
	assert.ErrorIs(t, err, model.ErrHasVoted)
}
