package usecase

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
)

// ResolveRuneId accepts a rune id ("840000:1") or a rune name, with or without spacers.
func (u *Usecase) ResolveRuneId(ctx context.Context, id string) (runes.RuneId, error) {
	if runeId, err := runes.NewRuneIdFromString(id); err == nil {
		return runeId, nil
	}
	spacedRune, err := runes.NewSpacedRuneFromString(id)
	if err != nil {
		return runes.RuneId{}, errors.Wrapf(errs.InvalidArgument, "%q is neither a rune id nor a rune name", id)
	}
	runeId, err := u.runesDg.GetRuneIdByRune(ctx, spacedRune.Rune)
	if err != nil {
		return runes.RuneId{}, errors.Wrap(err, "failed to get rune id by rune")
	}
	return runeId, nil
}

func (u *Usecase) GetRuneEntryByRuneId(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	runeEntry, err := u.runesDg.GetRuneEntryByRuneId(ctx, runeId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rune entry by rune id")
	}
	return runeEntry, nil
}

// GetRuneEntryByRuneIdBatch fails the whole batch when any entry is missing.
func (u *Usecase) GetRuneEntryByRuneIdBatch(ctx context.Context, runeIds []runes.RuneId) (map[runes.RuneId]*runes.RuneEntry, error) {
	entries := make(map[runes.RuneId]*runes.RuneEntry, len(runeIds))
	for _, runeId := range runeIds {
		if _, ok := entries[runeId]; ok {
			continue
		}
		runeEntry, err := u.GetRuneEntryByRuneId(ctx, runeId)
		if err != nil {
			return nil, errors.Wrapf(err, "rune %s", runeId)
		}
		entries[runeId] = runeEntry
	}
	return entries, nil
}
