package kv

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
)

func (r *Repository) GetIndexerState(ctx context.Context) (entity.IndexerState, error) {
	value, err := view(ctx, r.db, func(rd reader) ([]byte, error) {
		return rd.tx.Get(TableIndexerState, keyIndexerState)
	})
	if err != nil {
		return entity.IndexerState{}, errors.Wrap(err, "failed to get indexer state")
	}
	var model indexerStateModel
	if err := json.Unmarshal(value, &model); err != nil {
		return entity.IndexerState{}, errors.Wrap(err, "failed to unmarshal indexer state")
	}
	return entity.IndexerState{
		DBVersion:        model.DBVersion,
		EventHashVersion: model.EventHashVersion,
		Network:          common.Network(model.Network),
	}, nil
}

// SetIndexerState is not journaled, the state survives reorgs.
func (r *Repository) SetIndexerState(ctx context.Context, state entity.IndexerState) error {
	value, err := json.Marshal(indexerStateModel{
		DBVersion:        state.DBVersion,
		EventHashVersion: state.EventHashVersion,
		Network:          string(state.Network),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal indexer state")
	}
	err = kvstore.Update(ctx, r.db, func(tx kvstore.Tx) error {
		return tx.Put(TableIndexerState, keyIndexerState, value)
	})
	return errors.Wrap(err, "failed to set indexer state")
}
