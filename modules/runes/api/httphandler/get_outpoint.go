package httphandler

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/decimals"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type getOutPointRequest struct {
	TxHash string `params:"txid"`
	Vout   int64  `params:"vout"`
}

func (r getOutPointRequest) Validate() error {
	var errList []error
	if r.TxHash == "" {
		errList = append(errList, errors.New("'txid' is required"))
	}
	if r.Vout < 0 || r.Vout > int64(^uint32(0)) {
		errList = append(errList, errors.New("'vout' must be a valid output index"))
	}
	return errs.WithPublicMessage(errors.Join(errList...), "validation error")
}

type outPointRuneBalance struct {
	RuneId       runes.RuneId    `json:"runeId"`
	SpacedRune   string          `json:"spacedRune"`
	Symbol       string          `json:"symbol"`
	Amount       string          `json:"amount"`
	Decimal      decimal.Decimal `json:"decimal"`
	Divisibility uint8           `json:"divisibility"`
}

type getOutPointResult struct {
	TxHash      string                `json:"txHash"`
	OutputIndex uint32                `json:"outputIndex"`
	Address     *string               `json:"address"`
	Runes       []outPointRuneBalance `json:"runes"`
}

type getOutPointResponse = HttpResponse[getOutPointResult]

func (h *HttpHandler) GetOutPoint(ctx *fiber.Ctx) (err error) {
	var req getOutPointRequest
	if err := ctx.ParamsParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	txHash, err := chainhash.NewHashFromStr(req.TxHash)
	if err != nil {
		return errs.WithPublicMessage(err, "invalid 'txid'")
	}

	outPoint := wire.OutPoint{Hash: *txHash, Index: uint32(req.Vout)}
	balance, err := h.usecase.GetOutPointBalances(ctx.UserContext(), outPoint)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.NewPublicNotFound("outpoint holds no runes")
		}
		return errors.Wrap(err, "error during GetOutPointBalances")
	}

	runeIds := lo.Map(balance.Balances, func(b entity.Balance, _ int) runes.RuneId { return b.RuneId })
	runeEntries, err := h.usecase.GetRuneEntryByRuneIdBatch(ctx.UserContext(), runeIds)
	if err != nil {
		return errors.Wrap(err, "error during GetRuneEntryByRuneIdBatch")
	}

	runeBalances := make([]outPointRuneBalance, 0, len(balance.Balances))
	for _, b := range balance.Balances {
		runeEntry := runeEntries[b.RuneId]
		runeBalances = append(runeBalances, outPointRuneBalance{
			RuneId:       b.RuneId,
			SpacedRune:   runeEntry.SpacedRune.String(),
			Symbol:       lo.Ternary(runeEntry.Symbol == 0, "", string(runeEntry.Symbol)),
			Amount:       b.Amount.String(),
			Decimal:      decimals.ToDecimal(b.Amount, runeEntry.Divisibility),
			Divisibility: runeEntry.Divisibility,
		})
	}

	resp := getOutPointResponse{
		Result: &getOutPointResult{
			TxHash:      outPoint.Hash.String(),
			OutputIndex: outPoint.Index,
			Address:     balance.Owner,
			Runes:       runeBalances,
		},
	}
	return errors.WithStack(ctx.JSON(resp))
}
