package kv

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/datagateway"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingEvents(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)

	blockHash := chainhash.HashH([]byte("block 100"))
	eventHash := chainhash.HashH([]byte("events"))
	block100 := []event.Event{
		{Type: event.TypeBlockStart, BlockHeight: 100, BlockHash: blockHash},
		{
			Type:        event.TypeRuneCredited,
			BlockHeight: 100,
			BlockHash:   blockHash,
			TxIndex:     lo.ToPtr[uint32](0),
			TxHash:      lo.ToPtr(chainhash.HashH([]byte("tx"))),
			RuneId:      &runes.RuneId{BlockHeight: 90, TxIndex: 2},
			Amount:      lo.ToPtr(uint128.From64(40)),
			Address:     lo.ToPtr(""),
		},
		{
			Type:        event.TypeRuneUtxoCreated,
			BlockHeight: 100,
			BlockHash:   blockHash,
			TxIndex:     lo.ToPtr[uint32](0),
			OutPoint:    &wire.OutPoint{Hash: chainhash.HashH([]byte("tx")), Index: 1},
			Address:     lo.ToPtr("bcrt1qowner"),
		},
		{Type: event.TypeBlockEnd, BlockHeight: 100, BlockHash: blockHash, EventCount: 3, EventHash: &eventHash},
	}
	reorg := []event.Event{{Type: event.TypeReorgDetected, BlockHeight: 100, Depth: 1}}

	batches, err := repo.GetPendingEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches)

	withTx(t, repo, func(tx datagateway.RunesDataGatewayWithTx) {
		tx.StartBlock(100)
		require.NoError(t, tx.CreateIndexedBlock(ctx, indexedBlock(100)))
		require.NoError(t, tx.AddPendingEvents(ctx, block100))
	})
	withTx(t, repo, func(tx datagateway.RunesDataGatewayWithTx) {
		_, err := tx.RevertBlocksSince(ctx, 100)
		require.NoError(t, err)
		require.NoError(t, tx.AddPendingEvents(ctx, reorg))
	})

	// the reverted block keeps its batch, it comes before the reorg
	batches, err = repo.GetPendingEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]event.Event{block100, reorg}, batches)

	require.NoError(t, repo.AckPendingEvents(ctx))
	batches, err = repo.GetPendingEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]event.Event{reorg}, batches)

	require.NoError(t, repo.AckPendingEvents(ctx))
	assert.ErrorIs(t, repo.AckPendingEvents(ctx), errs.NotFound)
}

func TestPendingEventsRolledBack(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)

	tx, err := repo.BeginRunesTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AddPendingEvents(ctx, []event.Event{{Type: event.TypeBlockEnd, BlockHeight: 1}}))
	require.NoError(t, tx.Rollback(ctx))

	batches, err := repo.GetPendingEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
