package runes

import "github.com/gaze-network/uint128"

// Edict moves Amount of rune Id into output Output. An Output equal to the number of outputs
// of the transaction addresses every non-OP_RETURN output.
type Edict struct {
	Id     RuneId
	Amount uint128.Uint128
	Output uint32
}
