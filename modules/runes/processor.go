package runes

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/indexer"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/datagateway"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/btcclient"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

// Make sure to implement the Bitcoin Processor interface
var _ indexer.Processor[*types.Block] = (*Processor)(nil)

type Processor struct {
	runesDg       datagateway.RunesDataGateway
	indexerInfoDg datagateway.IndexerInfoDataGateway
	bitcoinClient btcclient.Contract
	network       common.Network
	decoder       runes.Decoder
	emitter       *event.Emitter
	undoRetention uint64
	cleanupFuncs  []func(context.Context) error
}

type ProcessorOptions struct {
	// Emitter receives the events of every processed block. Nil discards events.
	Emitter *event.Emitter
	// UndoRetention is the number of recent blocks kept revertible. Defaults to DefaultUndoRetention.
	UndoRetention uint64
	// Decoder defaults to runes.DefaultDecoder.
	Decoder      runes.Decoder
	CleanupFuncs []func(context.Context) error
}

func NewProcessor(runesDg datagateway.RunesDataGateway, indexerInfoDg datagateway.IndexerInfoDataGateway, bitcoinClient btcclient.Contract, network common.Network, opts ProcessorOptions) *Processor {
	return &Processor{
		runesDg:       runesDg,
		indexerInfoDg: indexerInfoDg,
		bitcoinClient: bitcoinClient,
		network:       network,
		decoder:       lo.Ternary(opts.Decoder != nil, opts.Decoder, runes.DefaultDecoder),
		emitter:       opts.Emitter,
		undoRetention: lo.Ternary(opts.UndoRetention > 0, opts.UndoRetention, DefaultUndoRetention),
		cleanupFuncs:  opts.CleanupFuncs,
	}
}

func (p *Processor) VerifyStates(ctx context.Context) error {
	if err := p.ensureValidState(ctx); err != nil {
		return errors.Wrap(err, "error during ensureValidState")
	}
	if p.network == common.NetworkMainnet {
		if err := p.ensureGenesisRune(ctx); err != nil {
			return errors.Wrap(err, "error during ensureGenesisRune")
		}
	}
	if err := p.deliverPendingEvents(ctx); err != nil {
		return errors.Wrap(err, "error during deliverPendingEvents")
	}
	return nil
}

// deliverPendingEvents re-sends the batches left in the outbox by a previous run, such as the events
// of a block committed just before a crash. The consumer may see the start of a batch twice.
func (p *Processor) deliverPendingEvents(ctx context.Context) error {
	if p.emitter == nil {
		return nil
	}
	batches, err := p.runesDg.GetPendingEvents(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get pending events")
	}
	if len(batches) > 0 {
		logger.InfoContext(ctx, "Delivering pending runes events", slogx.Int("batches", len(batches)))
	}
	for _, events := range batches {
		if err := p.emitEvents(ctx, events); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (p *Processor) emitEvents(ctx context.Context, events []event.Event) error {
	for _, ev := range events {
		if err := p.emitter.Emit(ctx, ev); err != nil {
			return errors.Wrap(err, "failed to emit event")
		}
	}
	return nil
}

// AcknowledgeEvent must be called by the consumer after it has handled ev. The batch ev belongs to
// is removed from the outbox once its last event is acknowledged.
func (p *Processor) AcknowledgeEvent(ctx context.Context, ev event.Event) error {
	if p.emitter == nil || !ev.Type.ClosesBatch() {
		return nil
	}
	return errors.Wrapf(p.runesDg.AckPendingEvents(ctx), "failed to acknowledge %s event at %d", ev.Type, ev.BlockHeight)
}

func (p *Processor) ensureValidState(ctx context.Context) error {
	indexerState, err := p.indexerInfoDg.GetIndexerState(ctx)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "failed to get indexer state")
	}
	// if not found, set indexer state
	if errors.Is(err, errs.NotFound) {
		if err := p.indexerInfoDg.SetIndexerState(ctx, entity.IndexerState{
			DBVersion:        DBVersion,
			EventHashVersion: EventHashVersion,
			Network:          p.network,
		}); err != nil {
			return errors.Wrap(err, "failed to set indexer state")
		}
		return nil
	}

	if indexerState.DBVersion != DBVersion {
		return errors.Wrapf(errs.ConflictSetting, "db version mismatch: current version is %d. Please upgrade to version %d", indexerState.DBVersion, DBVersion)
	}
	if indexerState.EventHashVersion != EventHashVersion {
		return errors.Wrapf(errs.ConflictSetting, "event version mismatch: current version is %d, expected %d. Please reset rune's db first.", indexerState.EventHashVersion, EventHashVersion)
	}
	if indexerState.Network != p.network {
		return errors.Wrapf(errs.ConflictSetting, "network mismatch: latest indexed network is %q, configured network is %q. If you want to change the network, please reset the database", indexerState.Network, p.network)
	}
	return nil
}

var genesisRuneId = runes.RuneId{BlockHeight: 1, TxIndex: 0}

// ensureGenesisRune registers UNCOMMON•GOODS, the rune that exists on mainnet without an etching transaction.
func (p *Processor) ensureGenesisRune(ctx context.Context) error {
	_, err := p.runesDg.GetRuneEntryByRuneId(ctx, genesisRuneId)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "failed to get genesis rune entry")
	}

	runeEntry := &runes.RuneEntry{
		RuneId:       genesisRuneId,
		Number:       0,
		Divisibility: 0,
		Premine:      uint128.Zero,
		SpacedRune:   runes.NewSpacedRune(runes.NewRune(2055900680524219742), 0b10000000),
		Symbol:       '⧉',
		Terms: &runes.Terms{
			Amount:      lo.ToPtr(uint128.From64(1)),
			Cap:         lo.ToPtr(uint128.Max),
			HeightStart: lo.ToPtr(uint64(common.HalvingInterval * 4)),
			HeightEnd:   lo.ToPtr(uint64(common.HalvingInterval * 5)),
		},
		Turbo:        true,
		Mints:        uint128.Zero,
		BurnedAmount: uint128.Zero,
		EtchingBlock: genesisRuneId.BlockHeight,
	}

	dg, err := p.runesDg.BeginRunesTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err := dg.Rollback(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to rollback transaction", slogx.Error(err))
		}
	}()

	if err := dg.SetRuneEntry(ctx, runeEntry); err != nil {
		return errors.Wrap(err, "failed to create genesis rune entry")
	}
	if err := dg.SetRuneIdByRune(ctx, runeEntry.SpacedRune.Rune, genesisRuneId); err != nil {
		return errors.Wrap(err, "failed to register genesis rune")
	}
	if err := dg.SetStatistic(ctx, entity.StatisticRunes, 1); err != nil {
		return errors.Wrap(err, "failed to set runes statistic")
	}
	if err := dg.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (p *Processor) Name() string {
	return "Runes"
}

func (p *Processor) CurrentBlock(ctx context.Context) (types.BlockHeader, error) {
	blockHeader, err := p.runesDg.GetLatestBlock(ctx)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			if header, ok := startingBlockHeader[p.network]; ok {
				return header, nil
			}
			return types.BlockHeader{}, errors.WithStack(err)
		}
		return types.BlockHeader{}, errors.Wrap(err, "failed to get latest block")
	}
	return blockHeader, nil
}

// warning: GetIndexedBlock currently returns a types.BlockHeader with only Height, Hash fields populated.
// This is because it is known that all usage of this function only requires these fields. In the future, we may want to populate all fields for type safety.
func (p *Processor) GetIndexedBlock(ctx context.Context, height int64) (types.BlockHeader, error) {
	block, err := p.runesDg.GetIndexedBlockByHeight(ctx, height)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			// blocks before activation are never indexed, they can not be reorged either
			if header, ok := startingBlockHeader[p.network]; ok && header.Height == height {
				return header, nil
			}
		}
		return types.BlockHeader{}, errors.Wrap(err, "failed to get indexed block")
	}
	return types.BlockHeader{
		Height: block.Height,
		Hash:   block.Hash,
	}, nil
}

// RevertData reverts every block at or above from, restoring the ledger through the undo journal.
func (p *Processor) RevertData(ctx context.Context, from int64) error {
	dg, err := p.runesDg.BeginRunesTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err := dg.Rollback(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to rollback transaction", slogx.Error(err))
		}
	}()

	if from < 0 {
		from = 0
	}
	reverted, err := dg.RevertBlocksSince(ctx, uint64(from))
	if err != nil {
		return errors.Wrap(err, "failed to revert data")
	}
	events := []event.Event{{
		Type:        event.TypeReorgDetected,
		BlockHeight: uint64(from),
		Depth:       reverted,
	}}
	if p.emitter != nil {
		if err := dg.AddPendingEvents(ctx, events); err != nil {
			return errors.Wrap(err, "failed to store reorg event")
		}
	}
	if err := dg.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	if err := p.emitEvents(ctx, events); err != nil {
		return errors.Wrap(err, "data is reverted, the reorg event is kept for the next start")
	}
	logger.InfoContext(ctx, "Reverted runes data", slogx.Int64("from", from), slogx.Uint64("blocks", reverted))
	return nil
}

// Shutdown closes the emitter first, so the consumer can drain and acknowledge before the store is closed.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.emitter.Close()
	var cleanupErrs []error
	for _, cleanup := range p.cleanupFuncs {
		if err := cleanup(ctx); err != nil {
			cleanupErrs = append(cleanupErrs, err)
		}
	}
	return errors.WithStack(errors.Join(cleanupErrs...))
}
