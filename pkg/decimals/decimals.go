// Package decimals renders integer token amounts as decimal numbers.
package decimals

import (
	"math"
	"math/big"

	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gaze-network/uint128"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/constraints"
)

const (
	DefaultDivPrecision = 36
)

func init() {
	decimal.DivisionPrecision = DefaultDivPrecision
}

// ToDecimal shifts an integer amount right by decimals places, e.g. 1234 with 2 decimals is 12.34.
// Unsupported value types are treated as zero.
func ToDecimal[T constraints.Integer](ivalue any, decimals T) decimal.Decimal {
	value := new(big.Int)
	switch v := ivalue.(type) {
	case string:
		value.SetString(v, 10)
	case *big.Int:
		value = v
	case int:
		value.SetInt64(int64(v))
	case int64:
		value.SetInt64(v)
	case uint32:
		value.SetUint64(uint64(v))
	case uint64:
		value.SetUint64(v)
	case uint128.Uint128:
		value = v.Big()
	case *uint128.Uint128:
		value = v.Big()
	}

	if int64(decimals) > math.MaxInt32 || int64(decimals) < math.MinInt32+1 {
		logger.Panic("ToDecimal: decimals is out of range", slogx.Any("decimals", decimals))
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}
