package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gofiber/fiber/v2"
)

type getBlockRequest struct {
	Height int64 `params:"height"`
}

func (r getBlockRequest) Validate() error {
	if r.Height < 0 {
		return errs.NewPublicError("'height' must be non-negative")
	}
	return nil
}

type getBlockResult struct {
	Hash       string `json:"hash"`
	PrevHash   string `json:"prevHash"`
	Height     int64  `json:"height"`
	EventHash  string `json:"eventHash"`
	EventCount uint64 `json:"eventCount"`
}

type getBlockResponse = HttpResponse[getBlockResult]

// GetBlock returns the settlement record of an indexed block. Two indexers agree on a block
// when they report the same event hash for it.
func (h *HttpHandler) GetBlock(ctx *fiber.Ctx) (err error) {
	var req getBlockRequest
	if err := ctx.ParamsParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	block, err := h.usecase.GetIndexedBlock(ctx.UserContext(), req.Height)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.NewPublicNotFound("block not found")
		}
		return errors.Wrap(err, "error during GetIndexedBlock")
	}

	resp := getBlockResponse{
		Result: &getBlockResult{
			Hash:       block.Hash.String(),
			PrevHash:   block.PrevHash.String(),
			Height:     block.Height,
			EventHash:  block.EventHash.String(),
			EventCount: block.EventCount,
		},
	}
	return errors.WithStack(ctx.JSON(resp))
}
