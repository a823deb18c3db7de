package usecase

import (
	"github.com/gaze-network/runes-settlement/modules/runes/datagateway"
)

// Usecase serves read-only queries over the settled ledger.
type Usecase struct {
	runesDg datagateway.RunesReaderDataGateway
}

func New(runesDg datagateway.RunesReaderDataGateway) *Usecase {
	return &Usecase{
		runesDg: runesDg,
	}
}
