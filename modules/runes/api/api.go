package api

import (
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/modules/runes/api/httphandler"
	"github.com/gaze-network/runes-settlement/modules/runes/usecase"
)

func NewHTTPHandler(network common.Network, usecase *usecase.Usecase) *httphandler.HttpHandler {
	return httphandler.New(network, usecase)
}
