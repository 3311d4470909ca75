package model

import (
	"encoding/json"
	"time"

	"MemberReserve/internal/ledger"
)

// Event is an observable outcome of a committed operation. Events travel in the
// journal like any other change so they are persisted atomically with it.
type Event interface {
	ledger.Change
	EventKind() string
}

const changeKindEvent = "event"

// Joined: a membership record was issued for Price.
type Joined struct {
	ID     uint64         `json:"id"`
	Member ledger.Address `json:"member"`
	Price  ledger.Amount  `json:"price"`
}

// MarketBought: the buyer wrapper minted at Price and refunded the excess.
type MarketBought struct {
	ID     uint64         `json:"id"`
	Owner  ledger.Address `json:"owner"`
	Price  ledger.Amount  `json:"price"`
	Refund ledger.Amount  `json:"refund"`
}

// Quit: a member exited with IDs and was paid Amount.
type Quit struct {
	Member ledger.Address `json:"member"`
	IDs    []uint64       `json:"ids"`
	Amount ledger.Amount  `json:"amount"`
}

// YieldClaimed: accrued yield was moved to Recipient.
type YieldClaimed struct {
	Amount    ledger.Amount  `json:"amount"`
	Recipient ledger.Address `json:"recipient"`
	ToReserve bool           `json:"to_reserve"`
}

type GovernorSet struct {
	Governor ledger.Address `json:"governor"`
}

type OwnershipTransferred struct {
	Component string         `json:"component"`
	Previous  ledger.Address `json:"previous"`
	Owner     ledger.Address `json:"owner"`
}

type ProposalCreated struct {
	Period    uint64         `json:"period"`
	Candidate ledger.Address `json:"candidate"`
	Quorum    uint64         `json:"quorum"`
	EndTime   time.Time      `json:"end_time"`
}

type VoteCast struct {
	Period    uint64         `json:"period"`
	Voter     ledger.Address `json:"voter"`
	Candidate ledger.Address `json:"candidate"`
	Support   Support        `json:"support"`
	Weight    uint64         `json:"weight"`
}

type ProposalSettled struct {
	Period    uint64         `json:"period"`
	Candidate ledger.Address `json:"candidate"`
	Passed    bool           `json:"passed"`
	ForVotes  uint64         `json:"for_votes"`
	Quorum    uint64         `json:"quorum"`
}

type GovernanceLocked struct {
	Candidate ledger.Address `json:"candidate"`
}

func (Joined) ChangeKind() string               { return changeKindEvent }
func (MarketBought) ChangeKind() string         { return changeKindEvent }
func (Quit) ChangeKind() string                 { return changeKindEvent }
func (YieldClaimed) ChangeKind() string         { return changeKindEvent }
func (GovernorSet) ChangeKind() string          { return changeKindEvent }
func (OwnershipTransferred) ChangeKind() string { return changeKindEvent }
func (ProposalCreated) ChangeKind() string      { return changeKindEvent }
func (VoteCast) ChangeKind() string             { return changeKindEvent }
func (ProposalSettled) ChangeKind() string      { return changeKindEvent }
func (GovernanceLocked) ChangeKind() string     { return changeKindEvent }

func (Joined) EventKind() string               { return "Joined" }
func (MarketBought) EventKind() string         { return "MarketBought" }
func (Quit) EventKind() string                 { return "Quit" }
func (YieldClaimed) EventKind() string         { return "YieldClaimed" }
func (GovernorSet) EventKind() string          { return "GovernorSet" }
func (OwnershipTransferred) EventKind() string { return "OwnershipTransferred" }
func (ProposalCreated) EventKind() string      { return "ProposalCreated" }
func (VoteCast) EventKind() string             { return "VoteCast" }
func (ProposalSettled) EventKind() string      { return "ProposalSettled" }
func (GovernanceLocked) EventKind() string     { return "GovernanceLocked" }

// EventRecord is a persisted event as listed back to clients.
type EventRecord struct {
	ID      string          `json:"id"`
	Seq     uint64          `json:"seq"`
	Kind    string          `json:"kind"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// NewEventRecord encodes e for storage.
func NewEventRecord(id string, seq uint64, at time.Time, e Event) (EventRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{ID: id, Seq: seq, Kind: e.EventKind(), Time: at, Payload: payload}, nil
}

// EventsOf filters the events out of a committed change set.
func EventsOf(changes []ledger.Change) []Event {
	var out []Event
	for _, c := range changes {
		if e, ok := c.(Event); ok {
			out = append(out, e)
		}
	}
	return out
}
