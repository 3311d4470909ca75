package model

import (
	"fmt"
	"strings"
	"time"

	"MemberReserve/internal/ledger"
)

// ProposalStatus is the lifecycle of a single proposal.
type ProposalStatus string

const (
	ProposalOpen   ProposalStatus = "open"
	ProposalPassed ProposalStatus = "passed"
	ProposalFailed ProposalStatus = "failed"
)

// GovernanceState is the state of the bootstrap governor as a whole.
type GovernanceState string

const (
	StateNoActiveProposal GovernanceState = "no_active_proposal"
	StateProposalOpen     GovernanceState = "proposal_open"
	StateSettled          GovernanceState = "settled"
	StateLocked           GovernanceState = "locked"
)

// Support is a voter's position.
type Support uint8

const (
	Against Support = 0
	For     Support = 1
	Abstain Support = 2
)

func (s Support) Valid() bool { return s <= Abstain }

func (s Support) String() string {
	switch s {
	case Against:
		return "against"
	case For:
		return "for"
	case Abstain:
		return "abstain"
	default:
		return fmt.Sprintf("support(%d)", uint8(s))
	}
}

// ParseSupport accepts "for"/"against"/"abstain" or their numeric forms.
func ParseSupport(s string) (Support, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "against", "no":
		return Against, nil
	case "1", "for", "yes":
		return For, nil
	case "2", "abstain":
		return Abstain, nil
	}
	return 0, fmt.Errorf("%w: support %q", ErrInvalidArgument, s)
}

// Proposal hands control to Candidate if ForVotes reaches Quorum by EndTime.
type Proposal struct {
	Period       uint64         `json:"period"`
	Candidate    ledger.Address `json:"candidate"`
	Quorum       uint64         `json:"quorum"`
	ForVotes     uint64         `json:"for_votes"`
	AgainstVotes uint64         `json:"against_votes"`
	AbstainVotes uint64         `json:"abstain_votes"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	SnapshotSeq  uint64         `json:"snapshot_seq"`
	Status       ProposalStatus `json:"status"`
}

// Passed reports whether the for-votes meet quorum.
func (p Proposal) Passed() bool { return p.ForVotes >= p.Quorum }

// Vote is one account's ballot in a period.
type Vote struct {
	Period  uint64         `json:"period"`
	Voter   ledger.Address `json:"voter"`
	Support Support        `json:"support"`
	Weight  uint64         `json:"weight"`
}
