package entity

import (
	"github.com/btcsuite/btcd/wire"
)

// OutPointBalance is the rune state attached to an unspent output.
type OutPointBalance struct {
	OutPoint wire.OutPoint
	// Owner is nil when no owner record exists for the output.
	Owner *string
	// Balances are sorted by rune id.
	Balances []Balance
}
