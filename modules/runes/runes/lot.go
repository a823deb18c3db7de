package runes

import (
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/uint128"
)

// Lot is an amount of a rune in its smallest unit. Arithmetic is checked: overflow and underflow are
// errors rather than wraps, since either would break conservation of balances.
type Lot struct {
	value uint128.Uint128
}

func NewLot(value uint128.Uint128) Lot {
	return Lot{value: value}
}

func NewLot64(value uint64) Lot {
	return Lot{value: uint128.From64(value)}
}

func (l Lot) Uint128() uint128.Uint128 {
	return l.value
}

func (l Lot) IsZero() bool {
	return l.value.IsZero()
}

func (l Lot) Cmp(other Lot) int {
	return l.value.Cmp(other.value)
}

func (l Lot) Add(other Lot) (Lot, error) {
	sum, overflow := l.value.AddOverflow(other.value)
	if overflow {
		return Lot{}, errors.Wrapf(errs.OverflowUint128, "%s + %s", l, other)
	}
	return Lot{value: sum}, nil
}

func (l Lot) Sub(other Lot) (Lot, error) {
	if l.value.Cmp(other.value) < 0 {
		return Lot{}, errors.Wrapf(errs.UnderflowUint128, "%s - %s", l, other)
	}
	return Lot{value: l.value.Sub(other.value)}, nil
}

// Min returns the smaller of l and other.
func (l Lot) Min(other Lot) Lot {
	if l.Cmp(other) <= 0 {
		return l
	}
	return other
}

// QuoRem64 divides l by n, which must be non-zero.
func (l Lot) QuoRem64(n uint64) (Lot, uint64) {
	q, r := l.value.QuoRem64(n)
	return Lot{value: q}, r
}

func (l Lot) String() string {
	return l.value.String()
}
