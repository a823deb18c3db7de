package usecase

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
)

func (u *Usecase) GetLatestBlock(ctx context.Context) (types.BlockHeader, error) {
	blockHeader, err := u.runesDg.GetLatestBlock(ctx)
	if err != nil {
		return types.BlockHeader{}, errors.Wrap(err, "failed to get latest block")
	}
	return blockHeader, nil
}

// GetIndexedBlock returns the block record, including its event hash, at the given height.
func (u *Usecase) GetIndexedBlock(ctx context.Context, height int64) (*entity.IndexedBlock, error) {
	block, err := u.runesDg.GetIndexedBlockByHeight(ctx, height)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get indexed block")
	}
	return block, nil
}
