package usecase

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
)

// GetOutPointBalances returns errs.NotFound for outputs that hold no runes, spent or not.
func (u *Usecase) GetOutPointBalances(ctx context.Context, outPoint wire.OutPoint) (*entity.OutPointBalance, error) {
	balance, err := u.runesDg.GetRunesBalancesAtOutPoint(ctx, outPoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balances at outpoint")
	}
	return balance, nil
}
