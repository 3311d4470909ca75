package ledger

import "time"

// Change is one durable mutation staged by an operation.
type Change interface {
	ChangeKind() string
}

// Journal collects the changes of a single operation. Nothing staged in a journal is
// visible outside it until the Sequencer has committed it to the store.
type Journal struct {
	Seq  uint64
	Time time.Time

	changes []Change
	applies []func()
	staged  map[string]Amount
}

func newJournal(seq uint64, now time.Time) *Journal {
	return &Journal{Seq: seq, Time: now}
}

// Record appends a durable change.
func (j *Journal) Record(c Change) {
	j.changes = append(j.changes, c)
}

// OnCommit registers an in-memory mutation that runs after a successful commit.
// Apply functions must not fail.
func (j *Journal) OnCommit(fn func()) {
	j.applies = append(j.applies, fn)
}

// Stage remembers the pending value of a counter so later writers in the same
// operation build on it instead of on the committed value.
func (j *Journal) Stage(key string, v Amount) {
	if j.staged == nil {
		j.staged = make(map[string]Amount)
	}
	j.staged[key] = v
}

// Staged returns the pending value of key, or committed if nothing was staged.
// A nil journal reads committed state.
func (j *Journal) Staged(key string, committed Amount) Amount {
	if j == nil {
		return committed
	}
	if v, ok := j.staged[key]; ok {
		return v
	}
	return committed
}

// Changes returns the staged changes in order.
func (j *Journal) Changes() []Change { return j.changes }

// Empty reports whether the operation staged nothing.
func (j *Journal) Empty() bool { return len(j.changes) == 0 && len(j.applies) == 0 }
