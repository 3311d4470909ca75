package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Committer durably persists a journal. Commit must be all-or-nothing.
type Committer interface {
	Commit(ctx context.Context, j *Journal) error
}

// Listener observes committed journals, after the in-memory state has been updated.
type Listener func(seq uint64, changes []Change)

// Sequencer serializes every mutating operation of the mechanism. Registry, Reserve and
// Governor share one Sequencer so an operation spanning several of them (join, quit,
// settlement) is a single critical section with a single commit.
type Sequencer struct {
	mu        sync.RWMutex
	seq       uint64
	store     Committer
	clock     func() time.Time
	listeners []Listener
}

// NewSequencer starts numbering after lastSeq, the sequence restored from the store.
func NewSequencer(store Committer, lastSeq uint64) *Sequencer {
	return &Sequencer{store: store, seq: lastSeq, clock: time.Now}
}

// SetClock replaces the wall clock used to stamp journals.
func (s *Sequencer) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Subscribe registers a listener for committed journals.
func (s *Sequencer) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Do runs fn against a fresh journal. If fn fails, or the commit fails, nothing is applied.
// Listeners run after the lock is released.
func (s *Sequencer) Do(ctx context.Context, fn func(j *Journal) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j, listeners, err := s.commit(ctx, fn)
	if err != nil || j == nil {
		return err
	}
	for _, l := range listeners {
		l(j.Seq, j.changes)
	}
	return nil
}

// commit holds the write lock for one operation. A nil journal means nothing was staged.
func (s *Sequencer) commit(ctx context.Context, fn func(j *Journal) error) (*Journal, []Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := newJournal(s.seq+1, s.clock())
	if err := fn(j); err != nil {
		return nil, nil, err
	}
	if j.Empty() {
		return nil, nil, nil
	}
	if err := s.store.Commit(ctx, j); err != nil {
		return nil, nil, fmt.Errorf("commit seq %d: %w", j.Seq, err)
	}
	s.seq = j.Seq
	for _, apply := range j.applies {
		apply()
	}
	return j, s.listeners, nil
}

// View runs fn under the read lock. fn must not call Do.
func (s *Sequencer) View(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// Seq returns the sequence number of the last committed journal.
func (s *Sequencer) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}
