package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of one whole unit (ether).
const Decimals = 18

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("amount overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("amount underflow")
)

// Amount is a non-negative fixed-point quantity counted in the smallest unit (wei).
// The zero value is zero.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount of n smallest units.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// MaxAmount returns the largest representable amount.
func MaxAmount() Amount {
	var a Amount
	a.v.SetAllOne()
	return a
}

// AmountFromBig converts b, failing on negative values and values above 256 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, ErrUnderflow
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *v}, nil
}

// ParseAmount parses a base-10 integer string of smallest units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("parse amount: empty string")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{v: *v}, nil
}

// ParseEther parses a decimal string of whole units, e.g. "0.01".
func ParseEther(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("parse ether %q: %w", s, err)
	}
	wei := d.Shift(Decimals)
	if !wei.Equal(wei.Truncate(0)) {
		return Amount{}, fmt.Errorf("parse ether %q: more than %d fractional digits", s, Decimals)
	}
	return AmountFromBig(wei.BigInt())
}

// MustParseEther is ParseEther for constants and tests.
func MustParseEther(s string) Amount {
	a, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

// MulUint64 multiplies by a count.
func (a Amount) MulUint64(n uint64) (Amount, error) {
	var out Amount
	m := uint256.NewInt(n)
	if _, overflow := out.v.MulOverflow(&a.v, m); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// DivUint64 divides by a count, truncating toward zero. Division by zero yields zero.
func (a Amount) DivUint64(n uint64) Amount {
	var out Amount
	if n == 0 {
		return out
	}
	out.v.Div(&a.v, uint256.NewInt(n))
	return out
}

func (a Amount) Cmp(b Amount) int    { return a.v.Cmp(&b.v) }
func (a Amount) Lt(b Amount) bool    { return a.v.Lt(&b.v) }
func (a Amount) Gt(b Amount) bool    { return a.v.Gt(&b.v) }
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }
func (a Amount) IsZero() bool        { return a.v.IsZero() }

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Lt(b) {
		return b
	}
	return a
}

// Big returns a copy as a big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// Decimal returns the amount in whole units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.Big(), -Decimals)
}

// Ether formats the amount in whole units without trailing zeros.
func (a Amount) Ether() string { return a.Decimal().String() }

// String formats the amount in smallest units.
func (a Amount) String() string { return a.v.Dec() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount must be a decimal string: %w", err)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalYAML keeps config files readable.
func (a Amount) MarshalYAML() (interface{}, error) { return a.String(), nil }

// UnmarshalYAML accepts either wei ("10000000000000000") or ether with a unit suffix ("0.01 ether").
func (a *Amount) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := parseWithUnit(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// UnmarshalText lets env decoders fill Amount fields.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := parseWithUnit(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func parseWithUnit(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if v, ok := strings.CutSuffix(s, "ether"); ok {
		return ParseEther(strings.TrimSpace(v))
	}
	return ParseAmount(s)
}

// MulDivUp returns ceil(a*b/d) using 256-bit intermediates. d must be non-zero.
func MulDivUp(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("muldiv: zero divisor")
	}
	var prod, q, r uint256.Int
	prod.Mul(uint256.NewInt(a), uint256.NewInt(b))
	den := uint256.NewInt(d)
	q.DivMod(&prod, den, &r)
	if !r.IsZero() {
		q.AddUint64(&q, 1)
	}
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}
