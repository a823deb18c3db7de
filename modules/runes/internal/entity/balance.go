package entity

import (
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/uint128"
)

type Balance struct {
	RuneId runes.RuneId
	Amount uint128.Uint128
}
