package model

import (
	"MemberReserve/internal/ledger"
	"MemberReserve/internal/pricing"
)

// Snapshot is the full durable state, as restored from a store at startup.
// Zero addresses and nil pointers mean "never written; use configuration".
type Snapshot struct {
	Seq uint64 `json:"seq"`

	Records       []Record                        `json:"records"`
	Checkpoints   map[ledger.Address][]Checkpoint `json:"checkpoints"`
	RegistryOwner ledger.Address                  `json:"registry_owner"`
	FloorEnabled  *bool                           `json:"floor_enabled,omitempty"`
	Pricing       *pricing.Params                 `json:"pricing,omitempty"`

	ReserveBalance ledger.Amount  `json:"reserve_balance"`
	ReserveOwner   ledger.Address `json:"reserve_owner"`
	Governor       ledger.Address `json:"governor"`

	Proposer  ledger.Address `json:"proposer"`
	Proposals []Proposal     `json:"proposals"`
	Votes     []Vote         `json:"votes"`
	Locked    bool           `json:"locked"`

	Book map[ledger.Address]ledger.Amount `json:"book"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Checkpoints: make(map[ledger.Address][]Checkpoint),
		Book:        make(map[ledger.Address]ledger.Amount),
	}
}
