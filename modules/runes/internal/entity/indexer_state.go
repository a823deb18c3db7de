package entity

import "github.com/gaze-network/runes-settlement/common"

type IndexerState struct {
	DBVersion        int32
	EventHashVersion int32
	Network          common.Network
}
