package runes

import (
	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
)

const (
	Version          = "v0.1.0"
	DBVersion        = 1
	EventHashVersion = event.HashVersion

	// DefaultUndoRetention is the number of most recent blocks that can be reverted on reorg.
	DefaultUndoRetention = 1000
)

// startingBlockHeader is the last block before runes activation. Networks without an entry start from genesis.
var startingBlockHeader = map[common.Network]types.BlockHeader{
	common.NetworkMainnet: {
		Height: 839999,
		Hash:   *utils.Must(chainhash.NewHashFromStr("0000000000000000000172014ba58d66455762add0512355ad651207918494ab")),
	},
}
