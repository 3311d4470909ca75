package store

import (
	"context"
	"fmt"
	"sync"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

// Memory keeps committed state in process. With a state file it also rewrites the
// file after every commit; events are never written to the file.
type Memory struct {
	mu     sync.Mutex
	path   string
	snap   *model.Snapshot
	events []model.EventRecord
	fail   error
}

func NewMemory() *Memory {
	return &Memory{snap: model.NewSnapshot()}
}

// OpenFile restores state from a JSON state file and keeps it up to date.
func OpenFile(path string) (*Memory, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("load state file: %w", err)
	}
	return &Memory{path: path, snap: snap}, nil
}

// FailNext makes the next Commit return err without applying anything.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Memory) Commit(ctx context.Context, j *ledger.Journal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		err := m.fail
		m.fail = nil
		return err
	}

	next := cloneSnapshot(m.snap)
	var events []model.EventRecord
	for _, c := range j.Changes() {
		if e, ok := c.(model.Event); ok {
			rec, err := eventRecord(j.Seq, j.Time, e)
			if err != nil {
				return err
			}
			events = append(events, rec)
			continue
		}
		if err := applyChange(next, c); err != nil {
			return err
		}
	}
	next.Seq = j.Seq
	if m.path != "" {
		if err := SaveSnapshot(m.path, next); err != nil {
			return fmt.Errorf("save state file: %w", err)
		}
	}
	m.snap = next
	m.events = append(m.events, events...)
	return nil
}

func (m *Memory) Load(ctx context.Context) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap), nil
}

func (m *Memory) Events(ctx context.Context, kind string, limit int) ([]model.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = eventLimit(limit)
	var out []model.EventRecord
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if kind == "" || m.events[i].Kind == kind {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// applyChange folds one durable change into snap.
func applyChange(snap *model.Snapshot, c ledger.Change) error {
	switch c := c.(type) {
	case model.RecordIssued:
		if c.Record.ID != uint64(len(snap.Records)) {
			return fmt.Errorf("record %d issued out of order", c.Record.ID)
		}
		snap.Records = append(snap.Records, c.Record)
	case model.RecordsTransferred:
		for _, id := range c.IDs {
			if id >= uint64(len(snap.Records)) {
				return fmt.Errorf("transfer of unknown record %d", id)
			}
			snap.Records[id].Owner = c.To
		}
	case model.CheckpointWritten:
		snap.Checkpoints[c.Owner] = append(snap.Checkpoints[c.Owner], c.Checkpoint)
	case model.ReserveBalanceSet:
		snap.ReserveBalance = c.Balance
	case model.OwnerSet:
		switch c.Component {
		case model.ComponentRegistry:
			snap.RegistryOwner = c.Owner
		case model.ComponentReserve:
			snap.ReserveOwner = c.Owner
		case model.ComponentGovernor:
			snap.Proposer = c.Owner
		default:
			return fmt.Errorf("owner of unknown component %q", c.Component)
		}
	case model.FloorSet:
		on := c.Enabled
		snap.FloorEnabled = &on
	case model.PricingSet:
		p := c.Params
		snap.Pricing = &p
	case model.GovernorAddressSet:
		snap.Governor = c.Governor
	case model.ProposalSaved:
		replaced := false
		for i := range snap.Proposals {
			if snap.Proposals[i].Period == c.Proposal.Period {
				snap.Proposals[i] = c.Proposal
				replaced = true
			}
		}
		if !replaced {
			snap.Proposals = append(snap.Proposals, c.Proposal)
		}
	case model.VoteRecorded:
		snap.Votes = append(snap.Votes, c.Vote)
	case model.LockSet:
		snap.Locked = true
	case ledger.BookEntry:
		snap.Book[c.Account] = c.Balance
	default:
		return fmt.Errorf("unknown change kind %q", c.ChangeKind())
	}
	return nil
}

func cloneSnapshot(s *model.Snapshot) *model.Snapshot {
	out := *s
	out.Records = append([]model.Record(nil), s.Records...)
	out.Proposals = append([]model.Proposal(nil), s.Proposals...)
	out.Votes = append([]model.Vote(nil), s.Votes...)
	out.Checkpoints = make(map[ledger.Address][]model.Checkpoint, len(s.Checkpoints))
	for k, v := range s.Checkpoints {
		out.Checkpoints[k] = append([]model.Checkpoint(nil), v...)
	}
	out.Book = make(map[ledger.Address]ledger.Amount, len(s.Book))
	for k, v := range s.Book {
		out.Book[k] = v
	}
	if s.FloorEnabled != nil {
		on := *s.FloorEnabled
		out.FloorEnabled = &on
	}
	if s.Pricing != nil {
		p := *s.Pricing
		out.Pricing = &p
	}
	return &out
}
