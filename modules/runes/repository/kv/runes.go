package kv

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/samber/lo"
)

type reader struct {
	tx kvstore.Tx
}

func (r reader) GetLatestBlock(ctx context.Context) (types.BlockHeader, error) {
	value, err := r.tx.Get(TableIndexerState, keyLatestHeight)
	if err != nil {
		return types.BlockHeader{}, errors.Wrap(err, "failed to get latest height")
	}
	if len(value) != 8 {
		return types.BlockHeader{}, errors.Wrapf(errs.InternalError, "invalid latest height length %d", len(value))
	}
	block, err := r.GetIndexedBlockByHeight(ctx, int64(binary.BigEndian.Uint64(value)))
	if err != nil {
		return types.BlockHeader{}, errors.Wrap(err, "failed to get latest indexed block")
	}
	return types.BlockHeader{
		Hash:      block.Hash,
		Height:    block.Height,
		PrevBlock: block.PrevHash,
	}, nil
}

func (r reader) GetIndexedBlockByHeight(_ context.Context, height int64) (*entity.IndexedBlock, error) {
	value, err := r.tx.Get(TableHeightToIndexedBlock, heightKey(uint64(height)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get indexed block %d", height)
	}
	return decodeIndexedBlock(uint64(height), value)
}

func (r reader) GetRuneEntryByRuneId(_ context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	value, err := r.tx.Get(TableRuneIdToEntry, runeIdKey(runeId))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get rune entry %s", runeId)
	}
	return mapRuneEntryModelToType(value)
}

func (r reader) GetRuneIdByRune(_ context.Context, rune runes.Rune) (runes.RuneId, error) {
	value, err := r.tx.Get(TableRuneToRuneId, runeKey(rune))
	if err != nil {
		return runes.RuneId{}, errors.Wrapf(err, "failed to get rune id of %s", rune)
	}
	return parseRuneIdKey(value)
}

func (r reader) GetRuneByTxHash(_ context.Context, txHash chainhash.Hash) (runes.Rune, error) {
	value, err := r.tx.Get(TableTxIdToRune, txHash[:])
	if err != nil {
		return runes.Rune{}, errors.Wrapf(err, "failed to get rune etched by %s", txHash)
	}
	return parseRuneKey(value)
}

func (r reader) GetRuneIdBySequenceNumber(_ context.Context, sequenceNumber uint32) (runes.RuneId, error) {
	value, err := r.tx.Get(TableSequenceNumberToRuneId, uint32Key(sequenceNumber))
	if err != nil {
		return runes.RuneId{}, errors.Wrapf(err, "failed to get rune id of sequence number %d", sequenceNumber)
	}
	return parseRuneIdKey(value)
}

func (r reader) GetSequenceNumberByInscriptionId(_ context.Context, txHash chainhash.Hash, index uint32) (uint32, error) {
	value, err := r.tx.Get(TableInscriptionIdToSequenceNumber, inscriptionIdKey(txHash, index))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get sequence number of %si%d", txHash, index)
	}
	if len(value) != 4 {
		return 0, errors.Wrapf(errs.InternalError, "invalid sequence number length %d", len(value))
	}
	return binary.BigEndian.Uint32(value), nil
}

func (r reader) GetRunesBalancesAtOutPoint(_ context.Context, outPoint wire.OutPoint) (*entity.OutPointBalance, error) {
	return r.getOutPointBalance(outPoint)
}

func (r reader) getOutPointBalance(outPoint wire.OutPoint) (*entity.OutPointBalance, error) {
	key := outPointKey(outPoint)
	result := &entity.OutPointBalance{OutPoint: outPoint}
	found := false

	value, err := r.tx.Get(TableOutPointToBalances, key)
	switch {
	case err == nil:
		found = true
		result.Balances, err = decodeBalances(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid balances at %s", outPoint)
		}
	case !errors.Is(err, errs.NotFound):
		return nil, errors.Wrapf(err, "failed to get balances at %s", outPoint)
	}

	owner, err := r.tx.Get(TableOutPointToOwner, key)
	switch {
	case err == nil:
		found = true
		result.Owner = lo.ToPtr(string(owner))
	case !errors.Is(err, errs.NotFound):
		return nil, errors.Wrapf(err, "failed to get owner of %s", outPoint)
	}

	if !found {
		return nil, errors.Wrapf(errs.NotFound, "no runes at %s", outPoint)
	}
	return result, nil
}

func (r reader) GetStatistic(_ context.Context, statistic entity.Statistic) (uint64, error) {
	value, err := r.tx.Get(TableStatisticToCount, []byte{byte(statistic)})
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to get statistic %s", statistic)
	}
	if len(value) != 8 {
		return 0, errors.Wrapf(errs.InternalError, "invalid statistic length %d", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

func (r *Repository) GetLatestBlock(ctx context.Context) (types.BlockHeader, error) {
	return view(ctx, r.db, func(rd reader) (types.BlockHeader, error) { return rd.GetLatestBlock(ctx) })
}

func (r *Repository) GetIndexedBlockByHeight(ctx context.Context, height int64) (*entity.IndexedBlock, error) {
	return view(ctx, r.db, func(rd reader) (*entity.IndexedBlock, error) { return rd.GetIndexedBlockByHeight(ctx, height) })
}

func (r *Repository) GetRuneEntryByRuneId(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	return view(ctx, r.db, func(rd reader) (*runes.RuneEntry, error) { return rd.GetRuneEntryByRuneId(ctx, runeId) })
}

func (r *Repository) GetRuneIdByRune(ctx context.Context, rune runes.Rune) (runes.RuneId, error) {
	return view(ctx, r.db, func(rd reader) (runes.RuneId, error) { return rd.GetRuneIdByRune(ctx, rune) })
}

func (r *Repository) GetRuneByTxHash(ctx context.Context, txHash chainhash.Hash) (runes.Rune, error) {
	return view(ctx, r.db, func(rd reader) (runes.Rune, error) { return rd.GetRuneByTxHash(ctx, txHash) })
}

func (r *Repository) GetRuneIdBySequenceNumber(ctx context.Context, sequenceNumber uint32) (runes.RuneId, error) {
	return view(ctx, r.db, func(rd reader) (runes.RuneId, error) { return rd.GetRuneIdBySequenceNumber(ctx, sequenceNumber) })
}

func (r *Repository) GetSequenceNumberByInscriptionId(ctx context.Context, txHash chainhash.Hash, index uint32) (uint32, error) {
	return view(ctx, r.db, func(rd reader) (uint32, error) { return rd.GetSequenceNumberByInscriptionId(ctx, txHash, index) })
}

func (r *Repository) GetRunesBalancesAtOutPoint(ctx context.Context, outPoint wire.OutPoint) (*entity.OutPointBalance, error) {
	return view(ctx, r.db, func(rd reader) (*entity.OutPointBalance, error) { return rd.GetRunesBalancesAtOutPoint(ctx, outPoint) })
}

func (r *Repository) GetStatistic(ctx context.Context, statistic entity.Statistic) (uint64, error) {
	return view(ctx, r.db, func(rd reader) (uint64, error) { return rd.GetStatistic(ctx, statistic) })
}

func (r *RepositoryWithTx) SetRuneEntry(_ context.Context, entry *runes.RuneEntry) error {
	value, err := mapRuneEntryTypeToModel(entry)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrapf(r.put(TableRuneIdToEntry, runeIdKey(entry.RuneId), value), "failed to set rune entry %s", entry.RuneId)
}

func (r *RepositoryWithTx) SetRuneIdByRune(_ context.Context, rune runes.Rune, runeId runes.RuneId) error {
	return errors.Wrapf(r.put(TableRuneToRuneId, runeKey(rune), runeIdKey(runeId)), "failed to set rune id of %s", rune)
}

func (r *RepositoryWithTx) SetRuneByTxHash(_ context.Context, txHash chainhash.Hash, rune runes.Rune) error {
	return errors.Wrapf(r.put(TableTxIdToRune, slices.Clone(txHash[:]), runeKey(rune)), "failed to set rune etched by %s", txHash)
}

func (r *RepositoryWithTx) SetRuneIdBySequenceNumber(_ context.Context, sequenceNumber uint32, runeId runes.RuneId) error {
	return errors.Wrapf(r.put(TableSequenceNumberToRuneId, uint32Key(sequenceNumber), runeIdKey(runeId)), "failed to set rune id of sequence number %d", sequenceNumber)
}

func (r *RepositoryWithTx) SetStatistic(_ context.Context, statistic entity.Statistic, value uint64) error {
	return errors.Wrapf(r.put(TableStatisticToCount, []byte{byte(statistic)}, binary.BigEndian.AppendUint64(nil, value)), "failed to set statistic %s", statistic)
}

func (r *RepositoryWithTx) TakeRunesBalancesAtOutPoint(_ context.Context, outPoint wire.OutPoint) (*entity.OutPointBalance, error) {
	balance, err := r.getOutPointBalance(outPoint)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	key := outPointKey(outPoint)
	if err := r.delete(TableOutPointToBalances, key); err != nil {
		return nil, errors.Wrapf(err, "failed to delete balances at %s", outPoint)
	}
	if err := r.delete(TableOutPointToOwner, key); err != nil {
		return nil, errors.Wrapf(err, "failed to delete owner of %s", outPoint)
	}
	return balance, nil
}

func (r *RepositoryWithTx) CreateRunesBalancesAtOutPoint(_ context.Context, balance *entity.OutPointBalance) error {
	key := outPointKey(balance.OutPoint)
	if err := r.put(TableOutPointToBalances, key, encodeBalances(balance.Balances)); err != nil {
		return errors.Wrapf(err, "failed to set balances at %s", balance.OutPoint)
	}
	if balance.Owner != nil {
		if err := r.put(TableOutPointToOwner, key, []byte(*balance.Owner)); err != nil {
			return errors.Wrapf(err, "failed to set owner of %s", balance.OutPoint)
		}
	}
	return nil
}

func (r *RepositoryWithTx) CreateIndexedBlock(_ context.Context, block *entity.IndexedBlock) error {
	key := heightKey(uint64(block.Height))
	if err := r.put(TableHeightToIndexedBlock, key, encodeIndexedBlock(block)); err != nil {
		return errors.Wrapf(err, "failed to create indexed block %d", block.Height)
	}
	if err := r.put(TableIndexerState, keyLatestHeight, key); err != nil {
		return errors.Wrap(err, "failed to set latest height")
	}
	return nil
}
