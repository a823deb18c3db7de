package runes

import "strings"

type FlawFlag int

const (
	FlawFlagEdictOutput FlawFlag = iota
	FlawFlagEdictRuneId
	FlawFlagInvalidScript
	FlawFlagOpCode
	FlawFlagSupplyOverflow
	FlawFlagTrailingIntegers
	FlawFlagTruncatedField
	FlawFlagUnrecognizedEvenTag
	FlawFlagUnrecognizedFlag
	FlawFlagVarInt

	flawFlagCount
)

func (f FlawFlag) Mask() Flaws {
	return 1 << f
}

var flawMessages = [flawFlagCount]string{
	FlawFlagEdictOutput:         "edict output greater than transaction output count",
	FlawFlagEdictRuneId:         "invalid runeId in edict",
	FlawFlagInvalidScript:       "invalid script in OP_RETURN",
	FlawFlagOpCode:              "non-pushdata opcode in OP_RETURN",
	FlawFlagSupplyOverflow:      "supply overflows uint128",
	FlawFlagTrailingIntegers:    "trailing integers in body",
	FlawFlagTruncatedField:      "field with missing value",
	FlawFlagUnrecognizedEvenTag: "unrecognized even tag",
	FlawFlagUnrecognizedFlag:    "unrecognized flag",
	FlawFlagVarInt:              "invalid varint",
}

func (f FlawFlag) String() string {
	if f < 0 || f >= flawFlagCount {
		return "unknown flaw"
	}
	return flawMessages[f]
}

// Flaws is a bitmask of the reasons a runestone was turned into a cenotaph.
type Flaws uint32

// Collect returns the flaws set in f in a stable order.
func (f Flaws) Collect() []FlawFlag {
	var flags []FlawFlag
	for flag := FlawFlag(0); flag < flawFlagCount; flag++ {
		if f&flag.Mask() != 0 {
			flags = append(flags, flag)
		}
	}
	return flags
}

func (f Flaws) String() string {
	flags := f.Collect()
	msgs := make([]string, 0, len(flags))
	for _, flag := range flags {
		msgs = append(msgs, flag.String())
	}
	return strings.Join(msgs, ", ")
}
