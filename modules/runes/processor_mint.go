package runes

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/samber/lo"
)

// mint adds one mint of runeId to the unallocated pool if the rune's terms allow it at the current height.
// The mint counter is persisted right away, so a later mint in the same block sees it.
func (p *Processor) mint(ctx context.Context, ts *txState, runeId runes.RuneId, unallocated unallocatedPool) error {
	runeEntry, err := ts.dg.GetRuneEntryByRuneId(ctx, runeId)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return nil
		}
		return errors.Wrap(err, "failed to get rune entry by rune id")
	}

	amount, err := runeEntry.GetMintableAmount(uint64(ts.header.Height))
	if err != nil {
		logger.DebugContext(ctx, "Ignored mint", slogx.Stringer("rune_id", runeId), slogx.Error(err))
		return nil
	}

	runeEntry.Mints = runeEntry.Mints.Add64(1)
	if err := ts.dg.SetRuneEntry(ctx, runeEntry); err != nil {
		return errors.Wrap(err, "failed to set rune entry")
	}

	unallocated.add(runeId, runes.NewLot(amount), nil)
	ts.emit(event.Event{
		Type:   event.TypeRuneMinted,
		RuneId: lo.ToPtr(runeId),
		Amount: lo.ToPtr(amount),
	})
	return nil
}
