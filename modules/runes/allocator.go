package runes

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/samber/lo"
)

// allocation is the balances assigned to each output of a transaction.
type allocation []map[runes.RuneId]runes.Lot

func newAllocation(outputs int) allocation {
	return make(allocation, outputs)
}

func (a allocation) add(output int, runeId runes.RuneId, amount runes.Lot) error {
	if amount.IsZero() {
		return nil
	}
	if a[output] == nil {
		a[output] = make(map[runes.RuneId]runes.Lot)
	}
	sum, err := a[output][runeId].Add(amount)
	if err != nil {
		return errors.Wrapf(err, "allocation of %s to output %d", runeId, output)
	}
	a[output][runeId] = sum
	return nil
}

// addressBalances is an amount per address and rune id.
type addressBalances map[string]map[runes.RuneId]runes.Lot

func (b addressBalances) add(address string, runeId runes.RuneId, amount runes.Lot) error {
	if b[address] == nil {
		b[address] = make(map[runes.RuneId]runes.Lot)
	}
	sum, err := b[address][runeId].Add(amount)
	if err != nil {
		return errors.Wrapf(err, "balance of %s at %q", runeId, address)
	}
	b[address][runeId] = sum
	return nil
}

// nonOpReturnOutputs returns the indexes of outputs that can hold runes.
func nonOpReturnOutputs(tx *types.Transaction) []int {
	var outputs []int
	for i, txOut := range tx.TxOut {
		if !txOut.IsOpReturn() {
			outputs = append(outputs, i)
		}
	}
	return outputs
}

// allocateEdicts moves runes from the unallocated pool to outputs as the runestone's edicts direct.
// Edicts never allocate more than the unallocated balance of their rune.
func allocateEdicts(tx *types.Transaction, runestone *runes.Runestone, etched *etchedRune, unallocated unallocatedPool, allocated allocation) error {
	for _, edict := range runestone.Edicts {
		// the decoder turns out of range outputs into a cenotaph
		if int(edict.Output) > len(tx.TxOut) {
			return errors.Wrapf(errs.InternalError, "edict output %d is out of range", edict.Output)
		}

		runeId := edict.Id
		// 0:0 refers to the rune etched in this transaction
		if runeId.IsWildcard() {
			if etched == nil {
				continue
			}
			runeId = etched.runeId
		}
		if _, ok := unallocated[runeId]; !ok {
			continue
		}

		balance, err := unallocated.balance(runeId)
		if err != nil {
			return errors.WithStack(err)
		}
		remaining := balance
		allocate := func(output int, amount runes.Lot) error {
			if amount.IsZero() {
				return nil
			}
			var err error
			if remaining, err = remaining.Sub(amount); err != nil {
				return errors.WithStack(err)
			}
			return errors.WithStack(allocated.add(output, runeId, amount))
		}

		amount := runes.NewLot(edict.Amount)
		if int(edict.Output) == len(tx.TxOut) {
			destinations := nonOpReturnOutputs(tx)
			if len(destinations) > 0 {
				if amount.IsZero() {
					// split the whole balance evenly, the first outputs take the remainder
					share, remainder := remaining.QuoRem64(uint64(len(destinations)))
					for i, output := range destinations {
						value := share
						if uint64(i) < remainder {
							if value, err = value.Add(runes.NewLot64(1)); err != nil {
								return errors.WithStack(err)
							}
						}
						if err := allocate(output, value); err != nil {
							return err
						}
					}
				} else {
					for _, output := range destinations {
						if err := allocate(output, amount.Min(remaining)); err != nil {
							return err
						}
					}
				}
			}
		} else {
			if amount.IsZero() {
				amount = remaining
			}
			if err := allocate(int(edict.Output), amount.Min(remaining)); err != nil {
				return err
			}
		}

		used, err := balance.Sub(remaining)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := unallocated.consume(runeId, used); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// resolveUnallocated assigns what the edicts left over. A cenotaph burns it, otherwise it goes to
// the pointer output, else to the first non-OP_RETURN output, else it is burned.
func resolveUnallocated(tx *types.Transaction, artifact runes.Artifact, unallocated unallocatedPool, allocated allocation) (map[runes.RuneId]runes.Lot, error) {
	burned := make(map[runes.RuneId]runes.Lot)
	burnAll := func() error {
		for _, runeId := range unallocated.runeIds() {
			balance, err := unallocated.balance(runeId)
			if err != nil {
				return errors.WithStack(err)
			}
			if err := addLot(burned, runeId, balance); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	if _, ok := artifact.(*runes.Cenotaph); ok {
		return burned, burnAll()
	}

	var output *int
	if runestone, ok := artifact.(*runes.Runestone); ok && runestone.Pointer != nil && int(*runestone.Pointer) < len(tx.TxOut) {
		output = lo.ToPtr(int(*runestone.Pointer))
	}
	if output == nil {
		if outputs := nonOpReturnOutputs(tx); len(outputs) > 0 {
			output = lo.ToPtr(outputs[0])
		}
	}
	if output == nil {
		return burned, burnAll()
	}

	for _, runeId := range unallocated.runeIds() {
		balance, err := unallocated.balance(runeId)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := allocated.add(*output, runeId, balance); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return burned, nil
}

func addLot(m map[runes.RuneId]runes.Lot, runeId runes.RuneId, amount runes.Lot) error {
	if amount.IsZero() {
		return nil
	}
	sum, err := m[runeId].Add(amount)
	if err != nil {
		return errors.Wrapf(err, "amount of %s", runeId)
	}
	m[runeId] = sum
	return nil
}

// sortedRuneIds returns the keys of m in ascending order.
func sortedRuneIds[V any](m map[runes.RuneId]V) []runes.RuneId {
	runeIds := lo.Keys(m)
	slices.SortFunc(runeIds, runes.RuneId.Cmp)
	return runeIds
}
