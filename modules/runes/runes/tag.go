package runes

import (
	"github.com/gaze-network/uint128"
)

// Tag identifies a field of a runestone message. Unrecognized odd tags are ignored,
// unrecognized even tags turn the runestone into a cenotaph.
type Tag uint64

const (
	TagBody        Tag = 0
	TagFlags       Tag = 2
	TagRune        Tag = 4
	TagPremine     Tag = 6
	TagCap         Tag = 8
	TagAmount      Tag = 10
	TagHeightStart Tag = 12
	TagHeightEnd   Tag = 14
	TagOffsetStart Tag = 16
	TagOffsetEnd   Tag = 18
	TagMint        Tag = 20
	TagPointer     Tag = 22
	// TagCenotaph is unrecognized on purpose
	TagCenotaph Tag = 126

	TagDivisibility Tag = 1
	TagSpacers      Tag = 3
	TagSymbol       Tag = 5
	TagNop          Tag = 127
)

func (t Tag) Uint128() uint128.Uint128 {
	return uint128.From64(uint64(t))
}

// Fields holds the tag/value pairs of a message in order of appearance. Tags that do not fit
// in 64 bits are kept by value so that their parity is still checked.
type Fields map[uint128.Uint128][]uint128.Uint128

func (f Fields) push(tag, value uint128.Uint128) {
	f[tag] = append(f[tag], value)
}

// take removes the first n values of tag when they exist and parse accepts them.
// Values rejected by parse stay in place, so an invalid even field still flags the message.
func (f Fields) take(tag Tag, n int, parse func(values []uint128.Uint128) bool) bool {
	key := tag.Uint128()
	values := f[key]
	if len(values) < n {
		return false
	}
	if !parse(values[:n]) {
		return false
	}
	if len(values) == n {
		delete(f, key)
	} else {
		f[key] = values[n:]
	}
	return true
}

// takeUint128 takes a single value of tag without further validation.
func (f Fields) takeUint128(tag Tag) *uint128.Uint128 {
	var result *uint128.Uint128
	f.take(tag, 1, func(values []uint128.Uint128) bool {
		v := values[0]
		result = &v
		return true
	})
	return result
}

// takeUint64 takes a single value of tag if it fits in a uint64.
func (f Fields) takeUint64(tag Tag) *uint64 {
	var result *uint64
	f.take(tag, 1, func(values []uint128.Uint128) bool {
		if !values[0].IsUint64() {
			return false
		}
		v := values[0].Uint64()
		result = &v
		return true
	})
	return result
}

func (f Fields) hasEvenTag() bool {
	for tag := range f {
		if tag.Lo%2 == 0 {
			return true
		}
	}
	return false
}
