package model

import (
	"time"

	"MemberReserve/internal/ledger"
)

// Record is one paid-in membership. Contribution never changes after issue.
type Record struct {
	ID           uint64         `json:"id"`
	Owner        ledger.Address `json:"owner"`
	Contribution ledger.Amount  `json:"contribution"`
	IssuedAt     time.Time      `json:"issued_at"`
}

// Checkpoint is an owner's record balance as of the end of journal Seq.
type Checkpoint struct {
	Seq     uint64 `json:"seq"`
	Balance uint64 `json:"balance"`
}

// Component names used for ownership bookkeeping.
const (
	ComponentRegistry = "registry"
	ComponentReserve  = "reserve"
	ComponentGovernor = "governor"
)
