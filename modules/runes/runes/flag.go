package runes

import "github.com/gaze-network/uint128"

// Flag is a single bit of the Flags field of a runestone.
type Flag uint8

const (
	FlagEtching Flag = 0
	FlagTerms   Flag = 1
	FlagTurbo   Flag = 2
	// FlagCenotaph is unrecognized on purpose
	FlagCenotaph Flag = 127
)

func (f Flag) Mask() Flags {
	return Flags(uint128.From64(1).Lsh(uint(f)))
}

// Flags is the bitmask carried by TagFlags.
type Flags uint128.Uint128

func (f Flags) Uint128() uint128.Uint128 {
	return uint128.Uint128(f)
}

// Take clears flag and reports whether it was set.
func (f *Flags) Take(flag Flag) bool {
	mask := flag.Mask().Uint128()
	if f.Uint128().And(mask).IsZero() {
		return false
	}
	*f = Flags(f.Uint128().Xor(mask))
	return true
}

func (f *Flags) Set(flag Flag) {
	*f = Flags(f.Uint128().Or(flag.Mask().Uint128()))
}
