// Package kv stores the runes ledger in an ordered key-value store.
// Every write made while a block is being processed is journaled so the block can be reverted.
package kv

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/modules/runes/datagateway"
)

const (
	TableRuneIdToEntry                 kvstore.Table = 0x01
	TableRuneToRuneId                  kvstore.Table = 0x02
	TableOutPointToBalances            kvstore.Table = 0x03
	TableOutPointToOwner               kvstore.Table = 0x04
	TableTxIdToRune                    kvstore.Table = 0x05
	TableSequenceNumberToRuneId        kvstore.Table = 0x06
	TableStatisticToCount              kvstore.Table = 0x07
	TableInscriptionIdToSequenceNumber kvstore.Table = 0x08
	TableHeightToIndexedBlock          kvstore.Table = 0x09
	TableUndoJournal                   kvstore.Table = 0x0a
	TableIndexerState                  kvstore.Table = 0x0b
	TablePendingEvents                 kvstore.Table = 0x0c
)

// Tables lists every table used by the repository, for backends that must create them up front.
var Tables = []kvstore.Table{
	TableRuneIdToEntry,
	TableRuneToRuneId,
	TableOutPointToBalances,
	TableOutPointToOwner,
	TableTxIdToRune,
	TableSequenceNumberToRuneId,
	TableStatisticToCount,
	TableInscriptionIdToSequenceNumber,
	TableHeightToIndexedBlock,
	TableUndoJournal,
	TableIndexerState,
	TablePendingEvents,
}

var (
	keyLatestHeight = []byte("latest_height")
	keyIndexerState = []byte("indexer_state")
	keyOutboxSeq    = []byte("outbox_sequence")
)

var (
	_ datagateway.RunesDataGateway       = (*Repository)(nil)
	_ datagateway.IndexerInfoDataGateway = (*Repository)(nil)
	_ datagateway.EventOutboxDataGateway = (*Repository)(nil)
	_ datagateway.RunesDataGatewayWithTx = (*RepositoryWithTx)(nil)
)

type Repository struct {
	db kvstore.DB
}

func NewRepository(db kvstore.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) BeginRunesTx(ctx context.Context) (datagateway.RunesDataGatewayWithTx, error) {
	tx, err := r.db.Begin(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	return &RepositoryWithTx{
		reader:    reader{tx: tx},
		tx:        tx,
		journaled: make(map[string]struct{}),
	}, nil
}

// view runs fn against a read-only snapshot.
func view[T any](ctx context.Context, db kvstore.DB, fn func(r reader) (T, error)) (T, error) {
	var result T
	err := kvstore.View(ctx, db, func(tx kvstore.Tx) error {
		var err error
		result, err = fn(reader{tx: tx})
		return err
	})
	return result, err
}

// RepositoryWithTx is a writable view of the repository. It must be finished with Commit or Rollback.
type RepositoryWithTx struct {
	reader
	tx kvstore.Tx

	// journaling is set by StartBlock.
	journaling bool
	height     uint64
	sequence   uint32
	// journaled holds table+key of the entries already journaled for the current block.
	// Only the value before the first write of a block is needed to revert it.
	journaled map[string]struct{}
}

func (r *RepositoryWithTx) Commit(_ context.Context) error {
	return errors.Wrap(r.tx.Commit(), "failed to commit transaction")
}

func (r *RepositoryWithTx) Rollback(_ context.Context) error {
	return errors.Wrap(r.tx.Rollback(), "failed to rollback transaction")
}
