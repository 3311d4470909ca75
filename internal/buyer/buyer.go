package buyer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

// Minter is the registry as seen from the buyer.
type Minter interface {
	Quote(j *ledger.Journal, now time.Time) ledger.Amount
	PlanJoin(j *ledger.Journal, caller ledger.Address, payment ledger.Amount, now time.Time) (uint64, error)
}

// Purchase is the outcome of a Buy.
type Purchase struct {
	ID     uint64        `json:"id"`
	Price  ledger.Amount `json:"price"`
	Refund ledger.Amount `json:"refund"`
}

// Buyer joins on a member's behalf at exactly the current price and refunds the rest,
// so an overpaying caller does not donate the excess to the reserve.
type Buyer struct {
	seq    *ledger.Sequencer
	minter Minter
	book   *ledger.Book
	log    *zap.Logger
}

func New(seq *ledger.Sequencer, minter Minter, book *ledger.Book, log *zap.Logger) *Buyer {
	return &Buyer{seq: seq, minter: minter, book: book, log: log.Named("buyer")}
}

func (b *Buyer) Buy(ctx context.Context, caller ledger.Address, payment ledger.Amount, now time.Time) (Purchase, error) {
	var out Purchase
	err := b.seq.Do(ctx, func(j *ledger.Journal) error {
		price := b.minter.Quote(j, now)
		if payment.Lt(price) {
			return fmt.Errorf("%w: paid %s, price %s", model.ErrInsufficientPayment, payment, price)
		}
		id, err := b.minter.PlanJoin(j, caller, price, now)
		if err != nil {
			return err
		}
		refund, err := payment.Sub(price)
		if err != nil {
			return err
		}
		if err := b.book.Credit(j, caller, refund); err != nil {
			return err
		}
		j.Record(model.MarketBought{ID: id, Owner: caller, Price: price, Refund: refund})
		out = Purchase{ID: id, Price: price, Refund: refund}
		return nil
	})
	if err != nil {
		b.log.Debug("buy rejected", zap.Stringer("caller", caller), zap.Stringer("payment", payment), zap.Error(err))
		return Purchase{}, err
	}
	b.log.Info("bought",
		zap.Uint64("id", out.ID),
		zap.Stringer("owner", caller),
		zap.Stringer("price", out.Price),
		zap.Stringer("refund", out.Refund))
	return out, nil
}
