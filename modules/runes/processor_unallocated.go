package runes

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/samber/lo"
)

// provenance is a part of an unallocated balance and the address it came from.
// Minted and premined runes have no owner.
type provenance struct {
	amount runes.Lot
	owner  *string
}

// unallocatedPool holds the runes entering a transaction, by rune id, in the order they arrived.
type unallocatedPool map[runes.RuneId][]provenance

func (p unallocatedPool) add(runeId runes.RuneId, amount runes.Lot, owner *string) {
	if amount.IsZero() {
		return
	}
	p[runeId] = append(p[runeId], provenance{amount: amount, owner: owner})
}

func (p unallocatedPool) balance(runeId runes.RuneId) (runes.Lot, error) {
	var total runes.Lot
	for _, item := range p[runeId] {
		var err error
		total, err = total.Add(item.amount)
		if err != nil {
			return runes.Lot{}, errors.Wrapf(err, "unallocated balance of %s", runeId)
		}
	}
	return total, nil
}

// consume removes amount from the balance of runeId, oldest provenance first.
func (p unallocatedPool) consume(runeId runes.RuneId, amount runes.Lot) error {
	balance, err := p.balance(runeId)
	if err != nil {
		return errors.WithStack(err)
	}
	if balance.Cmp(amount) < 0 {
		return errors.Wrapf(errs.UnderflowUint128, "consumed %s of %s but only %s is unallocated", amount, runeId, balance)
	}

	items := p[runeId]
	for i := range items {
		if amount.IsZero() {
			break
		}
		take := items[i].amount.Min(amount)
		items[i].amount, _ = items[i].amount.Sub(take)
		amount, _ = amount.Sub(take)
	}
	items = slices.DeleteFunc(items, func(item provenance) bool { return item.amount.IsZero() })
	if len(items) == 0 {
		delete(p, runeId)
		return nil
	}
	p[runeId] = items
	return nil
}

// runeIds returns the rune ids in the pool in ascending order.
func (p unallocatedPool) runeIds() []runes.RuneId {
	return sortedRuneIds(p)
}

// holdings sums the provenance with an owner by address and rune id.
func (p unallocatedPool) holdings() (addressBalances, error) {
	holdings := make(addressBalances)
	for runeId, items := range p {
		for _, item := range items {
			if item.owner == nil {
				continue
			}
			if err := holdings.add(*item.owner, runeId, item.amount); err != nil {
				return nil, errors.WithStack(err)
			}
		}
	}
	return holdings, nil
}

// collectUnallocated takes the balances of every output spent by the transaction.
func (p *Processor) collectUnallocated(ctx context.Context, ts *txState) (unallocatedPool, error) {
	unallocated := make(unallocatedPool)
	for _, txIn := range ts.tx.TxIn {
		if txIn.IsCoinbase() {
			continue
		}
		outPoint := txIn.PreviousOutPoint()
		balance, err := ts.dg.TakeRunesBalancesAtOutPoint(ctx, outPoint)
		if err != nil {
			if errors.Is(err, errs.NotFound) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to take runes balances at %s", outPoint)
		}

		if balance.Owner != nil {
			ts.emit(event.Event{
				Type:     event.TypeRuneUtxoSpent,
				OutPoint: lo.ToPtr(outPoint),
				Address:  lo.ToPtr(*balance.Owner),
			})
		}
		for _, b := range balance.Balances {
			unallocated.add(b.RuneId, runes.NewLot(b.Amount), balance.Owner)
		}
	}
	return unallocated, nil
}
