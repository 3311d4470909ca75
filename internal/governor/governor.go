package governor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

// DefaultVotingPeriod is how long a proposal accepts votes.
const DefaultVotingPeriod = 7 * 24 * time.Hour

// DefaultQuorumBps is 10% of adjusted supply.
const DefaultQuorumBps = 1000

// WeightMode selects how a voter's weight is read.
type WeightMode string

const (
	// WeightLive reads the voter's record balance at vote time.
	WeightLive WeightMode = "live"
	// WeightSnapshot reads the balance as of just before the proposal was created.
	WeightSnapshot WeightMode = "snapshot"
)

// Voters is the registry as seen from the governor.
type Voters interface {
	Supply(j *ledger.Journal) uint64
	Weight(j *ledger.Journal, voter ledger.Address) uint64
	WeightAt(j *ledger.Journal, voter ledger.Address, seq uint64) uint64
}

// Controlled is a component whose ownership passes to the winning candidate.
type Controlled interface {
	PlanTransferOwnership(j *ledger.Journal, caller, to ledger.Address) error
}

type Config struct {
	// Address is the account the governor acts as when it hands over control.
	Address      ledger.Address
	Proposer     ledger.Address
	QuorumBps    uint64
	VotingPeriod time.Duration
	WeightMode   WeightMode
}

type proposalKey struct {
	candidate ledger.Address
	period    uint64
}

// Governor runs the one-shot bootstrap vote that hands the registry and the
// reserve to a community-chosen owner, then locks itself for good.
type Governor struct {
	seq        *ledger.Sequencer
	log        *zap.Logger
	voters     Voters
	controlled []Controlled

	addr         ledger.Address
	proposer     ledger.Address
	quorumBps    uint64
	votingPeriod time.Duration
	mode         WeightMode

	period    uint64
	current   *proposalKey
	proposals map[proposalKey]model.Proposal
	votes     map[uint64]map[ledger.Address]model.Vote
	locked    bool
}

func New(seq *ledger.Sequencer, cfg Config, voters Voters, controlled []Controlled, log *zap.Logger) (*Governor, error) {
	if cfg.Address == ledger.ZeroAddress {
		return nil, fmt.Errorf("governor address is required")
	}
	if cfg.Proposer == ledger.ZeroAddress {
		return nil, fmt.Errorf("proposer is required")
	}
	if cfg.QuorumBps == 0 {
		cfg.QuorumBps = DefaultQuorumBps
	}
	if cfg.QuorumBps > 10000 {
		return nil, fmt.Errorf("quorum bps %d exceeds 10000", cfg.QuorumBps)
	}
	if cfg.VotingPeriod <= 0 {
		cfg.VotingPeriod = DefaultVotingPeriod
	}
	switch cfg.WeightMode {
	case "":
		cfg.WeightMode = WeightLive
	case WeightLive, WeightSnapshot:
	default:
		return nil, fmt.Errorf("unknown weight mode %q", cfg.WeightMode)
	}
	return &Governor{
		seq:          seq,
		log:          log.Named("governor"),
		voters:       voters,
		controlled:   controlled,
		addr:         cfg.Address,
		proposer:     cfg.Proposer,
		quorumBps:    cfg.QuorumBps,
		votingPeriod: cfg.VotingPeriod,
		mode:         cfg.WeightMode,
		proposals:    make(map[proposalKey]model.Proposal),
		votes:        make(map[uint64]map[ledger.Address]model.Vote),
	}, nil
}

// Restore loads persisted proposals, votes and the lock.
func (g *Governor) Restore(snap *model.Snapshot) {
	if snap.Proposer != ledger.ZeroAddress {
		g.proposer = snap.Proposer
	}
	g.locked = snap.Locked
	for _, p := range snap.Proposals {
		k := proposalKey{candidate: p.Candidate, period: p.Period}
		g.proposals[k] = p
		if p.Period >= g.period {
			g.period = p.Period
			g.current = &k
		}
	}
	for _, v := range snap.Votes {
		g.voted(v.Period)[v.Voter] = v
	}
}

// Address is the account the governor acts as.
func (g *Governor) Address() ledger.Address { return g.addr }

func (g *Governor) voted(period uint64) map[ledger.Address]model.Vote {
	m, ok := g.votes[period]
	if !ok {
		m = make(map[ledger.Address]model.Vote)
		g.votes[period] = m
	}
	return m
}

// quorum is ceil(supply * bps / 10000), never below one vote.
func (g *Governor) quorum(supply uint64) (uint64, error) {
	q, err := ledger.MulDivUp(supply, g.quorumBps, 10000)
	if err != nil {
		return 0, err
	}
	if q == 0 {
		q = 1
	}
	return q, nil
}

// Propose opens a proposal to hand control to candidate. Only the proposer may call it,
// only while governance is unlocked, and only when no proposal is open.
func (g *Governor) Propose(ctx context.Context, caller, candidate ledger.Address, now time.Time) (model.Proposal, error) {
	var created model.Proposal
	err := g.seq.Do(ctx, func(j *ledger.Journal) error {
		if g.locked {
			return model.ErrGovernanceLocked
		}
		if caller != g.proposer {
			return model.ErrUnauthorized
		}
		if candidate == ledger.ZeroAddress {
			return fmt.Errorf("%w: zero candidate", model.ErrInvalidArgument)
		}
		if g.current != nil && g.proposals[*g.current].Status == model.ProposalOpen {
			return model.ErrProposalActive
		}
		quorum, err := g.quorum(g.voters.Supply(j))
		if err != nil {
			return err
		}
		p := model.Proposal{
			Period:      g.period + 1,
			Candidate:   candidate,
			Quorum:      quorum,
			StartTime:   now,
			EndTime:     now.Add(g.votingPeriod),
			SnapshotSeq: j.Seq,
			Status:      model.ProposalOpen,
		}
		k := proposalKey{candidate: candidate, period: p.Period}
		j.Record(model.ProposalSaved{Proposal: p})
		j.Record(model.ProposalCreated{Period: p.Period, Candidate: candidate, Quorum: quorum, EndTime: p.EndTime})
		j.OnCommit(func() {
			g.period = p.Period
			g.proposals[k] = p
			g.current = &k
		})
		created = p
		return nil
	})
	if err != nil {
		g.log.Debug("propose rejected", zap.Stringer("caller", caller), zap.Stringer("candidate", candidate), zap.Error(err))
		return model.Proposal{}, err
	}
	g.log.Info("proposal created",
		zap.Uint64("period", created.Period),
		zap.Stringer("candidate", candidate),
		zap.Uint64("quorum", created.Quorum),
		zap.Time("end_time", created.EndTime))
	return created, nil
}

// open returns the open proposal for candidate.
func (g *Governor) open(candidate ledger.Address) (model.Proposal, error) {
	if g.current == nil || g.current.candidate != candidate {
		return model.Proposal{}, model.ErrInvalidProposal
	}
	p := g.proposals[*g.current]
	if p.Status != model.ProposalOpen {
		return model.Proposal{}, model.ErrInvalidProposal
	}
	return p, nil
}

// Vote records caller's ballot on the open proposal. Zero-weight ballots are accepted
// and still use up the caller's vote for the period.
func (g *Governor) Vote(ctx context.Context, caller, candidate ledger.Address, support model.Support, now time.Time) (model.Vote, error) {
	var cast model.Vote
	err := g.seq.Do(ctx, func(j *ledger.Journal) error {
		if !support.Valid() {
			return fmt.Errorf("%w: support %d", model.ErrInvalidArgument, support)
		}
		p, err := g.open(candidate)
		if err != nil {
			return err
		}
		if !now.Before(p.EndTime) {
			return model.ErrVotingClosed
		}
		if _, ok := g.votes[p.Period][caller]; ok {
			return model.ErrHasVoted
		}

		weight := g.voters.Weight(j, caller)
		if g.mode == WeightSnapshot {
			weight = g.voters.WeightAt(j, caller, p.SnapshotSeq)
		}
		switch support {
		case model.For:
			p.ForVotes += weight
		case model.Against:
			p.AgainstVotes += weight
		case model.Abstain:
			p.AbstainVotes += weight
		}

		v := model.Vote{Period: p.Period, Voter: caller, Support: support, Weight: weight}
		k := *g.current
		j.Record(model.VoteRecorded{Vote: v})
		j.Record(model.ProposalSaved{Proposal: p})
		j.Record(model.VoteCast{Period: p.Period, Voter: caller, Candidate: candidate, Support: support, Weight: weight})
		j.OnCommit(func() {
			g.voted(v.Period)[caller] = v
			g.proposals[k] = p
		})
		cast = v
		return nil
	})
	if err != nil {
		g.log.Debug("vote rejected", zap.Stringer("voter", caller), zap.Stringer("candidate", candidate), zap.Error(err))
		return model.Vote{}, err
	}
	g.log.Info("vote cast",
		zap.Uint64("period", cast.Period),
		zap.Stringer("voter", caller),
		zap.Stringer("support", support),
		zap.Uint64("weight", cast.Weight))
	return cast, nil
}

// Settle closes the open proposal for candidate once voting has ended. A passing
// proposal locks governance and hands every controlled component to the candidate
// in the same operation; a failing one frees the next period. Anyone may settle.
func (g *Governor) Settle(ctx context.Context, candidate ledger.Address, now time.Time) (model.Proposal, error) {
	var settled model.Proposal
	err := g.seq.Do(ctx, func(j *ledger.Journal) error {
		p, err := g.open(candidate)
		if err != nil {
			return err
		}
		if now.Before(p.EndTime) {
			return fmt.Errorf("%w: ends at %s", model.ErrVotingNotEnded, p.EndTime.Format(time.RFC3339))
		}

		passed := p.Passed()
		p.Status = model.ProposalFailed
		if passed {
			p.Status = model.ProposalPassed
			for _, c := range g.controlled {
				if err := c.PlanTransferOwnership(j, g.addr, candidate); err != nil {
					return fmt.Errorf("hand over control: %w", err)
				}
			}
			j.Record(model.LockSet{})
			j.Record(model.GovernanceLocked{Candidate: candidate})
		}
		k := *g.current
		j.Record(model.ProposalSaved{Proposal: p})
		j.Record(model.ProposalSettled{Period: p.Period, Candidate: candidate, Passed: passed, ForVotes: p.ForVotes, Quorum: p.Quorum})
		j.OnCommit(func() {
			g.proposals[k] = p
			if passed {
				g.locked = true
			}
		})
		settled = p
		return nil
	})
	if err != nil {
		return model.Proposal{}, err
	}
	g.log.Info("proposal settled",
		zap.Uint64("period", settled.Period),
		zap.Stringer("candidate", candidate),
		zap.String("status", string(settled.Status)),
		zap.Uint64("for_votes", settled.ForVotes),
		zap.Uint64("quorum", settled.Quorum))
	return settled, nil
}

// SettleDue settles the open proposal if its voting window has ended. It reports
// whether anything was settled.
func (g *Governor) SettleDue(ctx context.Context, now time.Time) (model.Proposal, bool, error) {
	p, ok := g.Current()
	if !ok || p.Status != model.ProposalOpen || now.Before(p.EndTime) {
		return model.Proposal{}, false, nil
	}
	settled, err := g.Settle(ctx, p.Candidate, now)
	if err != nil {
		return model.Proposal{}, false, err
	}
	return settled, true, nil
}

// TransferProposer hands the proposer role to another account.
func (g *Governor) TransferProposer(ctx context.Context, caller, to ledger.Address) error {
	err := g.seq.Do(ctx, func(j *ledger.Journal) error {
		if caller != g.proposer {
			return model.ErrUnauthorized
		}
		if to == ledger.ZeroAddress {
			return fmt.Errorf("%w: new proposer is the zero address", model.ErrInvalidArgument)
		}
		prev := g.proposer
		j.Record(model.OwnerSet{Component: model.ComponentGovernor, Owner: to})
		j.Record(model.OwnershipTransferred{Component: model.ComponentGovernor, Previous: prev, Owner: to})
		j.OnCommit(func() { g.proposer = to })
		return nil
	})
	if err != nil {
		return err
	}
	g.log.Info("proposer transferred", zap.Stringer("proposer", to))
	return nil
}

// ProposalPeriod returns the period of the latest proposal, zero before the first.
func (g *Governor) ProposalPeriod() uint64 {
	var p uint64
	g.seq.View(func() { p = g.period })
	return p
}

// Proposal returns the proposal for candidate in period.
func (g *Governor) Proposal(candidate ledger.Address, period uint64) (model.Proposal, bool) {
	var (
		p  model.Proposal
		ok bool
	)
	g.seq.View(func() { p, ok = g.proposals[proposalKey{candidate: candidate, period: period}] })
	return p, ok
}

// Proposals lists every proposal, oldest first.
func (g *Governor) Proposals() []model.Proposal {
	var out []model.Proposal
	g.seq.View(func() {
		for _, p := range g.proposals {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, k int) bool { return out[i].Period < out[k].Period })
	return out
}

// Current returns the latest proposal, whatever its status.
func (g *Governor) Current() (model.Proposal, bool) {
	var (
		p  model.Proposal
		ok bool
	)
	g.seq.View(func() {
		if g.current != nil {
			p, ok = g.proposals[*g.current], true
		}
	})
	return p, ok
}

// HasVoted reports whether voter cast a ballot in period.
func (g *Governor) HasVoted(period uint64, voter ledger.Address) bool {
	var ok bool
	g.seq.View(func() { _, ok = g.votes[period][voter] })
	return ok
}

// Locked reports whether governance has been permanently locked.
func (g *Governor) Locked() bool {
	var l bool
	g.seq.View(func() { l = g.locked })
	return l
}

// Proposer returns the account allowed to propose.
func (g *Governor) Proposer() ledger.Address {
	var p ledger.Address
	g.seq.View(func() { p = g.proposer })
	return p
}

// State summarizes the governor's state machine.
func (g *Governor) State() model.GovernanceState {
	var s model.GovernanceState
	g.seq.View(func() {
		switch {
		case g.locked:
			s = model.StateLocked
		case g.current == nil:
			s = model.StateNoActiveProposal
		case g.proposals[*g.current].Status == model.ProposalOpen:
			s = model.StateProposalOpen
		default:
			s = model.StateSettled
		}
	})
	return s
}

// WeightMode returns the configured voting-weight mode.
func (g *Governor) WeightMode() WeightMode { return g.mode }
