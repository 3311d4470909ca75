package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

// Store persists committed journals and restores the full state at startup.
type Store interface {
	ledger.Committer
	// Load returns the state as of the last committed journal.
	Load(ctx context.Context) (*model.Snapshot, error)
	// Events lists persisted events newest first. An empty kind matches every event.
	Events(ctx context.Context, kind string, limit int) ([]model.EventRecord, error)
	Close() error
}

const defaultEventLimit = 50

func eventLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultEventLimit
	}
	return limit
}

// eventRecord stamps an event with a fresh id.
func eventRecord(seq uint64, at time.Time, e model.Event) (model.EventRecord, error) {
	rec, err := model.NewEventRecord(uuid.NewString(), seq, at, e)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("encode %s event: %w", e.EventKind(), err)
	}
	return rec, nil
}
