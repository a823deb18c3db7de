package runes

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/datagateway"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/samber/lo"
)

// blockState is the state of the block being processed.
type blockState struct {
	header types.BlockHeader
	dg     datagateway.RunesDataGatewayWithTx
	hasher *event.Hasher
	events []event.Event
	// burned is flushed into the rune entries once the block is done.
	burned map[runes.RuneId]runes.Lot
}

func (b *blockState) emit(ev event.Event) {
	ev.BlockHeight = uint64(b.header.Height)
	ev.BlockHash = b.header.Hash
	b.hasher.Add(ev)
	b.events = append(b.events, ev)
}

// txState binds events to the transaction being processed.
type txState struct {
	*blockState
	tx *types.Transaction
}

func (t *txState) emit(ev event.Event) {
	ev.TxIndex = lo.ToPtr(t.tx.Index)
	ev.TxHash = lo.ToPtr(t.tx.TxHash)
	t.blockState.emit(ev)
}

func (p *Processor) Process(ctx context.Context, blocks []*types.Block) error {
	for _, block := range blocks {
		ctx := logger.WithContext(ctx, slogx.Int64("height", block.Header.Height))
		if err := p.processBlock(ctx, block); err != nil {
			return errors.Wrapf(err, "failed to process block %d", block.Header.Height)
		}
	}
	return nil
}

// processBlock settles every transaction of block in one store transaction. The block's events are
// stored in the outbox by the same transaction and delivered only after it is committed, so consumers
// never observe a block that was rolled back and never miss one that was committed.
func (p *Processor) processBlock(ctx context.Context, block *types.Block) error {
	start := time.Now()
	dg, err := p.runesDg.BeginRunesTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err := dg.Rollback(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to rollback transaction", slogx.Error(err))
		}
	}()

	height := uint64(block.Header.Height)
	dg.StartBlock(height)
	bs := &blockState{
		header: block.Header,
		dg:     dg,
		hasher: event.NewHasher(block.Header.Hash),
		burned: make(map[runes.RuneId]runes.Lot),
	}
	bs.emit(event.Event{Type: event.TypeBlockStart})

	for _, tx := range block.Transactions {
		if err := p.processTx(ctx, &txState{blockState: bs, tx: tx}); err != nil {
			return errors.Wrapf(err, "failed to process tx %s", tx.TxHash)
		}
	}

	if err := p.flushBurnedAmounts(ctx, bs); err != nil {
		return errors.Wrap(err, "failed to update burned amounts")
	}

	eventHash := bs.hasher.Sum()
	eventCount := bs.hasher.Count()
	if err := dg.CreateIndexedBlock(ctx, &entity.IndexedBlock{
		Height:     block.Header.Height,
		Hash:       block.Header.Hash,
		PrevHash:   block.Header.PrevBlock,
		EventHash:  eventHash,
		EventCount: eventCount,
	}); err != nil {
		return errors.Wrap(err, "failed to create indexed block")
	}
	if height >= p.undoRetention {
		if err := dg.PruneUndoJournal(ctx, height-p.undoRetention+1); err != nil {
			return errors.Wrap(err, "failed to prune undo journal")
		}
	}
	bs.events = append(bs.events, event.Event{
		Type:        event.TypeBlockEnd,
		BlockHeight: height,
		BlockHash:   block.Header.Hash,
		EventCount:  eventCount,
		EventHash:   &eventHash,
	})
	if p.emitter != nil {
		if err := dg.AddPendingEvents(ctx, bs.events); err != nil {
			return errors.Wrap(err, "failed to store block events")
		}
	}
	if err := dg.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	if err := p.emitEvents(ctx, bs.events); err != nil {
		return errors.Wrap(err, "block is committed, its events are kept for the next start")
	}

	logger.DebugContext(ctx, "Processed runes block",
		slogx.Int("transactions", len(block.Transactions)),
		slogx.Uint64("events", eventCount),
		slogx.Stringer("event_hash", eventHash),
		slogx.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p *Processor) processTx(ctx context.Context, ts *txState) error {
	tx := ts.tx
	artifact, err := p.decoder.Decipher(tx)
	if err != nil {
		return errors.Wrap(err, "failed to decipher runestone")
	}

	unallocated, err := p.collectUnallocated(ctx, ts)
	if err != nil {
		return errors.Wrap(err, "failed to collect unallocated runes")
	}
	// holdings of every address before any rune moves
	debits, err := unallocated.holdings()
	if err != nil {
		return errors.WithStack(err)
	}

	allocated := newAllocation(len(tx.TxOut))
	if artifact != nil {
		if runeId := runes.ArtifactMint(artifact); runeId != nil {
			if err := p.mint(ctx, ts, *runeId, unallocated); err != nil {
				return errors.Wrap(err, "error during mint")
			}
		}

		etched, err := p.etched(ctx, ts, artifact)
		if err != nil {
			return errors.Wrap(err, "error during etching validation")
		}

		if runestone, ok := artifact.(*runes.Runestone); ok {
			if etched != nil {
				unallocated.add(etched.runeId, runes.NewLot(lo.FromPtr(runestone.Etching.Premine)), nil)
			}
			if err := allocateEdicts(tx, runestone, etched, unallocated, allocated); err != nil {
				return errors.Wrap(err, "failed to allocate edicts")
			}
		}

		if etched != nil {
			if err := p.createRuneEntry(ctx, ts, artifact, etched); err != nil {
				return errors.Wrap(err, "failed to create rune entry")
			}
		}
	}

	burned, err := resolveUnallocated(tx, artifact, unallocated, allocated)
	if err != nil {
		return errors.Wrap(err, "failed to resolve unallocated runes")
	}

	credits, err := p.createOutputs(ctx, ts, allocated, burned)
	if err != nil {
		return errors.Wrap(err, "failed to create outputs")
	}
	emitTransfers(ts, debits, credits)

	return errors.WithStack(p.burn(ts, burned))
}

// flushBurnedAmounts adds the block's burns to the rune entries, once per rune.
func (p *Processor) flushBurnedAmounts(ctx context.Context, bs *blockState) error {
	for _, runeId := range sortedRuneIds(bs.burned) {
		runeEntry, err := bs.dg.GetRuneEntryByRuneId(ctx, runeId)
		if err != nil {
			return errors.Wrapf(err, "failed to get rune entry %s", runeId)
		}
		burnedAmount, err := runes.NewLot(runeEntry.BurnedAmount).Add(bs.burned[runeId])
		if err != nil {
			return errors.Wrapf(err, "burned amount of %s", runeId)
		}
		runeEntry.BurnedAmount = burnedAmount.Uint128()
		if err := bs.dg.SetRuneEntry(ctx, runeEntry); err != nil {
			return errors.Wrap(err, "failed to set rune entry")
		}
	}
	return nil
}
