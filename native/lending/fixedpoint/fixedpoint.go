// Package fixedpoint implements the checked 18-decimal arithmetic used for
// every balance, index, rate and price in the lending ledger. Values are
// unsigned 256-bit integers scaled by 1e18; no operation wraps silently and no
// result is ever negative.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a Value.
const Decimals = 18

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrDivisionByZero is returned for any division by a zero value.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrInsufficientBalance is returned when a subtraction would go negative.
	ErrInsufficientBalance = errors.New("fixedpoint: insufficient balance")
	// ErrInvalidValue is returned when a textual or big.Int value cannot be
	// represented.
	ErrInvalidValue = errors.New("fixedpoint: invalid value")
)

var scale = uint256.NewInt(1_000_000_000_000_000_000)

// Value is an unsigned fixed-point number with 18 decimals. The zero value is
// 0 and is ready to use.
type Value struct {
	n uint256.Int
}

// Zero returns 0.
func Zero() Value { return Value{} }

// One returns 1.0.
func One() Value {
	var v Value
	v.n.Set(scale)
	return v
}

// FromUint64 returns the whole-unit quantity units.
func FromUint64(units uint64) Value {
	var v Value
	v.n.Mul(uint256.NewInt(units), scale)
	return v
}

// FromRaw wraps an already scaled integer.
func FromRaw(raw *uint256.Int) Value {
	var v Value
	if raw != nil {
		v.n.Set(raw)
	}
	return v
}

// FromBig wraps an already scaled big integer.
func FromBig(raw *big.Int) (Value, error) {
	var v Value
	if raw == nil {
		return v, nil
	}
	if raw.Sign() < 0 {
		return Value{}, fmt.Errorf("%w: negative", ErrInvalidValue)
	}
	if v.n.SetFromBig(raw) {
		return Value{}, ErrOverflow
	}
	return v, nil
}

// Ratio returns num/den rounded down.
func Ratio(num, den uint64) (Value, error) {
	if den == 0 {
		return Value{}, ErrDivisionByZero
	}
	return MulDiv(FromUint64(num), One(), FromUint64(den))
}

// Parse reads a non-negative decimal string such as "0.95" or "1000".
// Digits past the 18th decimal are truncated.
func Parse(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromDecimal converts d, truncating past 18 decimals.
func FromDecimal(d decimal.Decimal) (Value, error) {
	if d.IsNegative() {
		return Value{}, fmt.Errorf("%w: negative %s", ErrInvalidValue, d.String())
	}
	return FromBig(d.Shift(Decimals).BigInt())
}

// Raw returns a copy of the scaled integer.
func (v Value) Raw() *uint256.Int { return new(uint256.Int).Set(&v.n) }

// Big returns the scaled integer as a big.Int.
func (v Value) Big() *big.Int { return v.n.ToBig() }

// Decimal returns v as an exact decimal.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.n.ToBig(), -Decimals)
}

// String renders v in plain decimal notation without trailing zeros.
func (v Value) String() string { return v.Decimal().String() }

// Float64 is lossy and only meant for metrics and display.
func (v Value) Float64() float64 {
	f, _ := v.Decimal().Float64()
	return f
}

func (v Value) IsZero() bool { return v.n.IsZero() }

// Cmp returns -1, 0 or +1.
func (v Value) Cmp(o Value) int { return v.n.Cmp(&o.n) }

func (v Value) Lt(o Value) bool { return v.n.Lt(&o.n) }

func (v Value) Gt(o Value) bool { return v.n.Gt(&o.n) }

func (v Value) Eq(o Value) bool { return v.n.Eq(&o.n) }

// Add returns v+o.
func (v Value) Add(o Value) (Value, error) {
	var out Value
	if _, overflow := out.n.AddOverflow(&v.n, &o.n); overflow {
		return Value{}, ErrOverflow
	}
	return out, nil
}

// Sub returns v-o, failing with ErrInsufficientBalance when o > v.
func (v Value) Sub(o Value) (Value, error) {
	var out Value
	if _, underflow := out.n.SubOverflow(&v.n, &o.n); underflow {
		return Value{}, ErrInsufficientBalance
	}
	return out, nil
}

// SaturatingSub returns v-o, or zero when o > v.
func (v Value) SaturatingSub(o Value) Value {
	out, err := v.Sub(o)
	if err != nil {
		return Value{}
	}
	return out
}

// Mul returns v*o rounded down.
func (v Value) Mul(o Value) (Value, error) {
	return MulDiv(v, o, One())
}

// MulUp returns v*o rounded up.
func (v Value) MulUp(o Value) (Value, error) {
	return MulDivUp(v, o, One())
}

// Div returns v/o rounded down.
func (v Value) Div(o Value) (Value, error) {
	return MulDiv(v, One(), o)
}

// MulDiv returns a*b/c rounded down. The product is carried in 512 bits so it
// never overflows on its own; only a quotient wider than 256 bits fails.
func MulDiv(a, b, c Value) (Value, error) {
	if c.n.IsZero() {
		return Value{}, ErrDivisionByZero
	}
	var out Value
	if _, overflow := out.n.MulDivOverflow(&a.n, &b.n, &c.n); overflow {
		return Value{}, ErrOverflow
	}
	return out, nil
}

// MulDivUp returns a*b/c rounded up.
func MulDivUp(a, b, c Value) (Value, error) {
	out, err := MulDiv(a, b, c)
	if err != nil {
		return Value{}, err
	}
	var rem uint256.Int
	rem.MulMod(&a.n, &b.n, &c.n)
	if rem.IsZero() {
		return out, nil
	}
	return out.Add(Value{n: *uint256.NewInt(1)})
}

// Min returns the smaller of a and b.
func Min(a, b Value) Value {
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Value) Value {
	if a.Gt(b) {
		return a
	}
	return b
}
