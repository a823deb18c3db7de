package datagateway

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
)

type RunesDataGateway interface {
	RunesReaderDataGateway
	EventOutboxDataGateway

	// BeginRunesTx returns a new RunesDataGateway with transaction enabled. All write operations performed in this datagateway must be committed to persist changes.
	BeginRunesTx(ctx context.Context) (RunesDataGatewayWithTx, error)
}

type RunesDataGatewayWithTx interface {
	RunesReaderDataGateway
	RunesWriterDataGateway
	Tx
}

type RunesReaderDataGateway interface {
	// GetLatestBlock returns errs.NotFound if no block has been indexed yet.
	GetLatestBlock(ctx context.Context) (types.BlockHeader, error)
	GetIndexedBlockByHeight(ctx context.Context, height int64) (*entity.IndexedBlock, error)

	// GetRuneEntryByRuneId returns the RuneEntry for the given runeId. Returns errs.NotFound if the rune entry is not found.
	GetRuneEntryByRuneId(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error)
	// GetRuneIdByRune returns the RuneId for the given rune. Returns errs.NotFound if the rune is not registered.
	GetRuneIdByRune(ctx context.Context, rune runes.Rune) (runes.RuneId, error)
	// GetRuneByTxHash returns the rune etched by the transaction. Returns errs.NotFound if there is none.
	GetRuneByTxHash(ctx context.Context, txHash chainhash.Hash) (runes.Rune, error)
	GetRuneIdBySequenceNumber(ctx context.Context, sequenceNumber uint32) (runes.RuneId, error)
	// GetSequenceNumberByInscriptionId reads the table maintained by the inscription indexer.
	GetSequenceNumberByInscriptionId(ctx context.Context, txHash chainhash.Hash, index uint32) (uint32, error)

	// GetRunesBalancesAtOutPoint returns errs.NotFound if the output holds no runes.
	GetRunesBalancesAtOutPoint(ctx context.Context, outPoint wire.OutPoint) (*entity.OutPointBalance, error)
	// GetStatistic returns 0 for a counter that was never written.
	GetStatistic(ctx context.Context, statistic entity.Statistic) (uint64, error)
}

type RunesWriterDataGateway interface {
	// StartBlock sets the height that subsequent writes are journaled under, so they can be reverted.
	// Writes performed before StartBlock are permanent.
	StartBlock(height uint64)

	SetRuneEntry(ctx context.Context, entry *runes.RuneEntry) error
	SetRuneIdByRune(ctx context.Context, rune runes.Rune, runeId runes.RuneId) error
	SetRuneByTxHash(ctx context.Context, txHash chainhash.Hash, rune runes.Rune) error
	SetRuneIdBySequenceNumber(ctx context.Context, sequenceNumber uint32, runeId runes.RuneId) error
	SetStatistic(ctx context.Context, statistic entity.Statistic, value uint64) error

	// TakeRunesBalancesAtOutPoint reads and deletes the balances and owner of a spent output.
	// Returns errs.NotFound if the output holds nothing.
	TakeRunesBalancesAtOutPoint(ctx context.Context, outPoint wire.OutPoint) (*entity.OutPointBalance, error)
	CreateRunesBalancesAtOutPoint(ctx context.Context, balance *entity.OutPointBalance) error
	CreateIndexedBlock(ctx context.Context, block *entity.IndexedBlock) error

	// RevertBlocksSince undoes every journaled write of blocks at or above height and deletes their indexed blocks.
	// It returns the number of blocks reverted.
	RevertBlocksSince(ctx context.Context, height uint64) (uint64, error)
	// PruneUndoJournal drops journals below height. Blocks below it can no longer be reverted.
	PruneUndoJournal(ctx context.Context, height uint64) error

	// AddPendingEvents stores a batch of events in the outbox, committed together with the block.
	AddPendingEvents(ctx context.Context, events []event.Event) error
}

// EventOutboxDataGateway holds event batches until the consumer has handled them.
type EventOutboxDataGateway interface {
	// GetPendingEvents returns every stored batch, oldest first.
	GetPendingEvents(ctx context.Context) ([][]event.Event, error)
	// AckPendingEvents removes the oldest batch. Returns errs.NotFound if the outbox is empty.
	AckPendingEvents(ctx context.Context) error
}

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
