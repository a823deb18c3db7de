// Package leb128 implements unsigned LEB128 varints over 128-bit integers,
// the integer encoding used by runestone payloads and persisted balance lists.
package leb128

import (
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/uint128"
)

const (
	ErrEmpty        = errs.ErrorKind("leb128: empty byte sequence")
	ErrUnterminated = errs.ErrorKind("leb128: unterminated byte sequence")
)

// maxLength is the longest valid encoding of a uint128 (ceil(128/7)).
const maxLength = 19

// AppendUint128 appends the encoding of v to dst.
func AppendUint128(dst []byte, v uint128.Uint128) []byte {
	for !v.Rsh(7).IsZero() {
		dst = append(dst, v.And64(0b0111_1111).Uint8()|0b1000_0000)
		v = v.Rsh(7)
	}
	return append(dst, v.Uint8())
}

func EncodeUint128(v uint128.Uint128) []byte {
	return AppendUint128(make([]byte, 0, 4), v)
}

// DecodeUint128 decodes one varint from the start of data and returns
// the value and the number of bytes consumed.
func DecodeUint128(data []byte) (n uint128.Uint128, length int, err error) {
	if len(data) == 0 {
		return uint128.Zero, 0, ErrEmpty
	}
	for i, b := range data {
		if i >= maxLength {
			return uint128.Zero, 0, errs.OverflowUint128
		}
		group := uint128.From64(uint64(b & 0b0111_1111))
		// the last group only has room for 2 bits
		if i == maxLength-1 && !group.And64(0b0111_1100).IsZero() {
			return uint128.Zero, 0, errs.OverflowUint128
		}
		n = n.Or(group.Lsh(uint(7 * i)))
		if b&0b1000_0000 == 0 {
			return n, i + 1, nil
		}
	}
	return uint128.Zero, 0, ErrUnterminated
}
