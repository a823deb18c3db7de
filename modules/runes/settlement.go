package runes

import (
	"context"
	"slices"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/btcutils"
	"github.com/samber/lo"
)

// createOutputs persists the allocated balances of every output and returns what each address received.
// Allocations to OP_RETURN outputs are added to burned instead.
func (p *Processor) createOutputs(ctx context.Context, ts *txState, allocated allocation, burned map[runes.RuneId]runes.Lot) (addressBalances, error) {
	credits := make(addressBalances)
	for i, balances := range allocated {
		if len(balances) == 0 {
			continue
		}
		txOut := ts.tx.TxOut[i]
		if txOut.IsOpReturn() {
			for _, runeId := range sortedRuneIds(balances) {
				if err := addLot(burned, runeId, balances[runeId]); err != nil {
					return nil, errors.WithStack(err)
				}
			}
			continue
		}

		// outputs without an address are owned by ""
		address, _ := btcutils.PkScriptToAddress(txOut.PkScript, p.network)
		outPoint := wire.OutPoint{Hash: ts.tx.TxHash, Index: uint32(i)}
		outPointBalance := &entity.OutPointBalance{
			OutPoint: outPoint,
			Owner:    lo.ToPtr(address),
			Balances: make([]entity.Balance, 0, len(balances)),
		}
		for _, runeId := range sortedRuneIds(balances) {
			outPointBalance.Balances = append(outPointBalance.Balances, entity.Balance{
				RuneId: runeId,
				Amount: balances[runeId].Uint128(),
			})
			if err := credits.add(address, runeId, balances[runeId]); err != nil {
				return nil, errors.WithStack(err)
			}
		}
		if err := ts.dg.CreateRunesBalancesAtOutPoint(ctx, outPointBalance); err != nil {
			return nil, errors.Wrapf(err, "failed to create runes balances at %s", outPoint)
		}
		ts.emit(event.Event{
			Type:     event.TypeRuneUtxoCreated,
			OutPoint: lo.ToPtr(outPoint),
			Address:  lo.ToPtr(address),
		})
	}
	return credits, nil
}

// emitTransfers emits the net change of every (address, rune) pair the transaction touched:
// a debit if the address holds less than before, a credit if it holds more.
func emitTransfers(ts *txState, debits, credits addressBalances) {
	addresses := lo.Union(lo.Keys(debits), lo.Keys(credits))
	slices.Sort(addresses)
	for _, address := range addresses {
		runeIds := lo.Union(sortedRuneIds(debits[address]), sortedRuneIds(credits[address]))
		slices.SortFunc(runeIds, runes.RuneId.Cmp)
		for _, runeId := range runeIds {
			debit, credit := debits[address][runeId], credits[address][runeId]
			switch debit.Cmp(credit) {
			case 1:
				amount, _ := debit.Sub(credit)
				ts.emit(event.Event{
					Type:    event.TypeRuneDebited,
					RuneId:  lo.ToPtr(runeId),
					Amount:  lo.ToPtr(amount.Uint128()),
					Address: lo.ToPtr(address),
				})
			case -1:
				amount, _ := credit.Sub(debit)
				ts.emit(event.Event{
					Type:    event.TypeRuneCredited,
					RuneId:  lo.ToPtr(runeId),
					Amount:  lo.ToPtr(amount.Uint128()),
					Address: lo.ToPtr(address),
				})
			}
		}
	}
}

// burn emits the runes burned by the transaction and buffers them until the end of the block.
func (p *Processor) burn(ts *txState, burned map[runes.RuneId]runes.Lot) error {
	for _, runeId := range sortedRuneIds(burned) {
		amount := burned[runeId]
		if amount.IsZero() {
			continue
		}
		ts.emit(event.Event{
			Type:   event.TypeRuneBurned,
			RuneId: lo.ToPtr(runeId),
			Amount: lo.ToPtr(amount.Uint128()),
		})
		if err := addLot(ts.burned, runeId, amount); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
