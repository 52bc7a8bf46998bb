package model

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ErrArithmetic reports an overflow, underflow or division by zero.
var ErrArithmetic = errors.New("arithmetic error")

// Amount is a non-negative integer amount of a denom, at most 2^256-1.
// All arithmetic is checked; nothing wraps around.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{v: *v}, nil
}

// AmountFromBig converts a big.Int, rejecting negative and oversized values.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative amount %s", ErrArithmetic, b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("%w: amount %s overflows", ErrArithmetic, b)
	}
	return Amount{v: *v}, nil
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) BigInt() *big.Int { return a.v.ToBig() }

// Uint64 returns the value and whether it fits.
func (a Amount) Uint64() (uint64, bool) { return a.v.Uint64(), a.v.IsUint64() }

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%w: %s + %s overflows", ErrArithmetic, a, b)
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%w: %s - %s underflows", ErrArithmetic, a, b)
	}
	return out, nil
}

func (a Amount) Mul(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%w: %s * %s overflows", ErrArithmetic, a, b)
	}
	return out, nil
}

// Div is floor division.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, fmt.Errorf("%w: %s / 0", ErrArithmetic, a)
	}
	var out Amount
	out.v.Div(&a.v, &b.v)
	return out, nil
}

// DivCeil is division rounding up.
func (a Amount) DivCeil(b Amount) (Amount, error) {
	q, err := a.Div(b)
	if err != nil {
		return Amount{}, err
	}
	var rem uint256.Int
	rem.Mod(&a.v, &b.v)
	if rem.IsZero() {
		return q, nil
	}
	return q.Add(NewAmount(1))
}

// MulDiv computes floor(a*b/d) with a 512-bit intermediate product.
func (a Amount) MulDiv(b, d Amount) (Amount, error) {
	if d.IsZero() {
		return Amount{}, fmt.Errorf("%w: %s * %s / 0", ErrArithmetic, a, b)
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &b.v, &d.v); overflow {
		return Amount{}, fmt.Errorf("%w: %s * %s / %s overflows", ErrArithmetic, a, b, d)
	}
	return out, nil
}

// MulDivCeil computes ceil(a*b/d).
func (a Amount) MulDivCeil(b, d Amount) (Amount, error) {
	q, err := a.MulDiv(b, d)
	if err != nil {
		return Amount{}, err
	}
	var rem uint256.Int
	rem.MulMod(&a.v, &b.v, &d.v)
	if rem.IsZero() {
		return q, nil
	}
	return q.Add(NewAmount(1))
}

// MulDecimalFloor returns floor(a * pct). pct must be non-negative.
func (a Amount) MulDecimalFloor(pct decimal.Decimal) (Amount, error) {
	if pct.IsNegative() {
		return Amount{}, fmt.Errorf("%w: negative factor %s", ErrArithmetic, pct)
	}
	product := decimal.NewFromBigInt(a.BigInt(), 0).Mul(pct).Floor()
	return AmountFromBig(product.BigInt())
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
