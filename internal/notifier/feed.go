package notifier

import (
	"context"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

// Sender delivers a message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Feed forwards committed events to a Sender from a single goroutine so a slow chat
// never holds up the sequencer.
type Feed struct {
	sender  Sender
	log     *zap.Logger
	queue   chan string
	retries int
}

func NewFeed(sender Sender, buffer int, log *zap.Logger) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{sender: sender, log: log.Named("feed"), queue: make(chan string, buffer), retries: 3}
}

// Listen is a ledger.Listener. When the queue is full the message is dropped.
func (f *Feed) Listen(seq uint64, changes []ledger.Change) {
	for _, e := range model.EventsOf(changes) {
		text := FormatEvent(e)
		if text == "" {
			continue
		}
		select {
		case f.queue <- text:
		default:
			f.log.Warn("notification queue full, dropping event", zap.Uint64("seq", seq), zap.String("kind", e.EventKind()))
		}
	}
}

// Run sends queued messages until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-f.queue:
			if err := f.sender.SendWithRetry(ctx, text, f.retries); err != nil {
				f.log.Error("send notification", zap.Error(err))
			}
		}
	}
}
