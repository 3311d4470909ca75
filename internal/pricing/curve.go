package pricing

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"MemberReserve/internal/ledger"
)

// precision is the number of decimal digits kept by the ln/exp expansions.
const precision int32 = 40

// maxExponent is just above ln(2^256); any larger exponent saturates.
var maxExponent = decimal.NewFromInt(178)

var secondsPerDay = decimal.NewFromInt(86400)

// Params configure the continuous auction. They are fixed configuration that only the
// registry owner can replace.
type Params struct {
	// TargetPrice is the price when sales are exactly on schedule.
	TargetPrice ledger.Amount `json:"target_price"`
	// Decay is the fractional price drop per day without sales, 0 < Decay < 1.
	Decay decimal.Decimal `json:"decay"`
	// PerDay is the scheduled number of sales per day.
	PerDay decimal.Decimal `json:"per_day"`
	// ReferenceTime is when the auction (and minting) starts.
	ReferenceTime time.Time `json:"reference_time"`
}

func (p Params) Validate() error {
	if p.TargetPrice.IsZero() {
		return fmt.Errorf("target price must be positive")
	}
	if !p.Decay.IsPositive() || p.Decay.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("decay must be in (0, 1), got %s", p.Decay)
	}
	if !p.PerDay.IsPositive() {
		return fmt.Errorf("per-day rate must be positive, got %s", p.PerDay)
	}
	if p.ReferenceTime.IsZero() {
		return fmt.Errorf("reference time is required")
	}
	return nil
}

// Curve evaluates a linear VRGDA:
//
//	price(t, sold) = target * (1 - decay)^(days(t) - sold/perDay)
type Curve struct {
	params   Params
	target   decimal.Decimal
	lnBase   decimal.Decimal // ln(1 - decay), negative
	minExpon decimal.Decimal // below this the price truncates to zero wei
}

// NewCurve validates params and precomputes the logarithms.
func NewCurve(p Params) (*Curve, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	lnBase, err := decimal.NewFromInt(1).Sub(p.Decay).Ln(precision)
	if err != nil {
		return nil, fmt.Errorf("ln(1-decay): %w", err)
	}
	target := decimal.NewFromBigInt(p.TargetPrice.Big(), 0)
	lnTarget, err := target.Ln(precision)
	if err != nil {
		return nil, fmt.Errorf("ln(target): %w", err)
	}
	return &Curve{
		params:   p,
		target:   target,
		lnBase:   lnBase,
		minExpon: lnTarget.Add(decimal.NewFromInt(1)).Neg(),
	}, nil
}

func (c *Curve) Params() Params { return c.params }

// Started reports whether now is at or after the reference time.
func (c *Curve) Started(now time.Time) bool {
	return !now.Before(c.params.ReferenceTime)
}

// Price returns the auction price at now after sold sales. Times before the reference
// time evaluate at elapsed zero. The result saturates instead of overflowing.
func (c *Curve) Price(now time.Time, sold uint64) ledger.Amount {
	elapsed := now.Sub(c.params.ReferenceTime)
	if elapsed < 0 {
		elapsed = 0
	}
	days := decimal.NewFromInt(int64(elapsed/time.Second)).DivRound(secondsPerDay, precision)
	onSchedule := decimal.NewFromBigInt(new(big.Int).SetUint64(sold), 0).DivRound(c.params.PerDay, precision)
	exponent := c.lnBase.Mul(days.Sub(onSchedule))

	if exponent.LessThan(c.minExpon) {
		return ledger.Amount{}
	}
	if exponent.GreaterThan(maxExponent) {
		return ledger.MaxAmount()
	}
	factor, err := exponent.ExpTaylor(precision)
	if err != nil {
		return ledger.MaxAmount()
	}
	price, err := ledger.AmountFromBig(c.target.Mul(factor).Truncate(0).BigInt())
	if err != nil {
		return ledger.MaxAmount()
	}
	return price
}

// Quote applies the reserve floor: the effective price is never below book value while
// the floor is enabled.
func Quote(auction, bookValue ledger.Amount, floorEnabled bool) ledger.Amount {
	if floorEnabled {
		return ledger.Max(auction, bookValue)
	}
	return auction
}
