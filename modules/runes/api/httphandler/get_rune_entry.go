package httphandler

import (
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/decimals"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type getRuneEntryRequest struct {
	Id string `params:"id"`
}

func (r *getRuneEntryRequest) Validate() error {
	id, err := url.QueryUnescape(r.Id)
	if err != nil {
		return errs.WithPublicMessage(err, "invalid id")
	}
	r.Id = id
	if r.Id == "" {
		return errs.NewPublicError("'id' is required")
	}
	return nil
}

type entryTerms struct {
	Amount      *decimal.Decimal `json:"amount"`
	Cap         *string          `json:"cap"`
	HeightStart *uint64          `json:"heightStart"`
	HeightEnd   *uint64          `json:"heightEnd"`
	OffsetStart *uint64          `json:"offsetStart"`
	OffsetEnd   *uint64          `json:"offsetEnd"`
}

type getRuneEntryResult struct {
	Id           runes.RuneId    `json:"id"`
	Number       uint64          `json:"number"`
	Rune         runes.Rune      `json:"rune"`
	SpacedRune   string          `json:"spacedRune"`
	Symbol       string          `json:"symbol"`
	Divisibility uint8           `json:"divisibility"`
	Premine      decimal.Decimal `json:"premine"`
	Supply       decimal.Decimal `json:"supply"`
	MintedAmount decimal.Decimal `json:"mintedAmount"`
	BurnedAmount decimal.Decimal `json:"burnedAmount"`
	Mints        string          `json:"mints"`
	Terms        *entryTerms     `json:"terms"`
	Turbo        bool            `json:"turbo"`
	EtchingBlock uint64          `json:"etchingBlock"`
	EtchingTx    string          `json:"etchingTx"`
	EtchedAt     int64           `json:"etchedAt"` // unix timestamp
}

type getRuneEntryResponse = HttpResponse[getRuneEntryResult]

func (h *HttpHandler) GetRuneEntry(ctx *fiber.Ctx) (err error) {
	var req getRuneEntryRequest
	if err := ctx.ParamsParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	runeId, err := h.usecase.ResolveRuneId(ctx.UserContext(), req.Id)
	if err != nil {
		switch {
		case errors.Is(err, errs.InvalidArgument):
			return errs.NewPublicError("'id' is not a valid rune id or rune name")
		case errors.Is(err, errs.NotFound):
			return errs.NewPublicNotFound("rune not found")
		}
		return errors.Wrap(err, "error during ResolveRuneId")
	}

	runeEntry, err := h.usecase.GetRuneEntryByRuneId(ctx.UserContext(), runeId)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.NewPublicNotFound("rune not found")
		}
		return errors.Wrap(err, "error during GetRuneEntryByRuneId")
	}

	supply, err := runeEntry.Supply()
	if err != nil {
		return errors.Wrap(err, "cannot get supply of rune")
	}
	mintedAmount, err := runeEntry.MintedAmount()
	if err != nil {
		return errors.Wrap(err, "cannot get minted amount of rune")
	}

	var terms *entryTerms
	if t := runeEntry.Terms; t != nil {
		terms = &entryTerms{
			Cap:         lo.Ternary(t.Cap != nil, lo.ToPtr(lo.FromPtr(t.Cap).String()), nil),
			HeightStart: t.HeightStart,
			HeightEnd:   t.HeightEnd,
			OffsetStart: t.OffsetStart,
			OffsetEnd:   t.OffsetEnd,
		}
		if t.Amount != nil {
			terms.Amount = lo.ToPtr(decimals.ToDecimal(*t.Amount, runeEntry.Divisibility))
		}
	}

	resp := getRuneEntryResponse{
		Result: &getRuneEntryResult{
			Id:           runeEntry.RuneId,
			Number:       runeEntry.Number,
			Rune:         runeEntry.SpacedRune.Rune,
			SpacedRune:   runeEntry.SpacedRune.String(),
			Symbol:       lo.Ternary(runeEntry.Symbol == 0, "", string(runeEntry.Symbol)),
			Divisibility: runeEntry.Divisibility,
			Premine:      decimals.ToDecimal(runeEntry.Premine, runeEntry.Divisibility),
			Supply:       decimals.ToDecimal(supply, runeEntry.Divisibility),
			MintedAmount: decimals.ToDecimal(mintedAmount, runeEntry.Divisibility),
			BurnedAmount: decimals.ToDecimal(runeEntry.BurnedAmount, runeEntry.Divisibility),
			Mints:        runeEntry.Mints.String(),
			Terms:        terms,
			Turbo:        runeEntry.Turbo,
			EtchingBlock: runeEntry.EtchingBlock,
			EtchingTx:    runeEntry.EtchingTxHash.String(),
			EtchedAt:     runeEntry.EtchedAt.Unix(),
		},
	}
	return errors.WithStack(ctx.JSON(resp))
}
