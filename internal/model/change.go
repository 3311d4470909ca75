package model

import (
	"MemberReserve/internal/ledger"
	"MemberReserve/internal/pricing"
)

// Durable changes staged into a ledger.Journal. The store persists each kind; the
// owning component applies the same change in memory after commit.

type RecordIssued struct{ Record Record }

type RecordsTransferred struct {
	IDs  []uint64
	From ledger.Address
	To   ledger.Address
}

type CheckpointWritten struct {
	Owner      ledger.Address
	Checkpoint Checkpoint
}

type ReserveBalanceSet struct{ Balance ledger.Amount }

type OwnerSet struct {
	Component string
	Owner     ledger.Address
}

type FloorSet struct{ Enabled bool }

type PricingSet struct{ Params pricing.Params }

type GovernorAddressSet struct{ Governor ledger.Address }

type ProposalSaved struct{ Proposal Proposal }

type VoteRecorded struct{ Vote Vote }

type LockSet struct{}

func (RecordIssued) ChangeKind() string       { return "record_issued" }
func (RecordsTransferred) ChangeKind() string { return "records_transferred" }
func (CheckpointWritten) ChangeKind() string  { return "checkpoint_written" }
func (ReserveBalanceSet) ChangeKind() string  { return "reserve_balance_set" }
func (OwnerSet) ChangeKind() string           { return "owner_set" }
func (FloorSet) ChangeKind() string           { return "floor_set" }
func (PricingSet) ChangeKind() string         { return "pricing_set" }
func (GovernorAddressSet) ChangeKind() string { return "governor_address_set" }
func (ProposalSaved) ChangeKind() string      { return "proposal_saved" }
func (VoteRecorded) ChangeKind() string       { return "vote_recorded" }
func (LockSet) ChangeKind() string            { return "lock_set" }
