package yield

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
)

// Accumulator stands in for the external yield-bearing position of the reserve.
// Yield is credited with Accrue and drained by the reserve's claim.
type Accumulator struct {
	mu      sync.Mutex
	pending ledger.Amount
	accrued ledger.Amount
	log     *zap.Logger
}

func NewAccumulator(log *zap.Logger) *Accumulator {
	return &Accumulator{log: log.Named("yield")}
}

// Accrue credits newly generated yield.
func (a *Accumulator) Accrue(amount ledger.Amount) error {
	if amount.IsZero() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	pending, err := a.pending.Add(amount)
	if err != nil {
		return fmt.Errorf("accrue yield: %w", err)
	}
	accrued, err := a.accrued.Add(amount)
	if err != nil {
		return fmt.Errorf("accrue yield: %w", err)
	}
	a.pending, a.accrued = pending, accrued
	a.log.Debug("yield accrued", zap.Stringer("amount", amount), zap.Stringer("pending", pending))
	return nil
}

// Pending returns the claimable yield.
func (a *Accumulator) Pending(ctx context.Context) (ledger.Amount, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Amount{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending, nil
}

// Claimed removes amount from the pending balance after the reserve committed the claim.
func (a *Accumulator) Claimed(amount ledger.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rest, err := a.pending.Sub(amount)
	if err != nil {
		a.log.Warn("claimed more than pending", zap.Stringer("claimed", amount), zap.Stringer("pending", a.pending))
		rest = ledger.Amount{}
	}
	a.pending = rest
}

// Accrued returns the yield generated since start.
func (a *Accumulator) Accrued() ledger.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accrued
}
