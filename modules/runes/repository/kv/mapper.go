package kv

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/leb128"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

const (
	runeIdKeyLength    = 8 + 4
	outPointKeyLength  = chainhash.HashSize + 4
	runeKeyLength      = 16
	indexedBlockLength = 3*chainhash.HashSize + 8
)

func runeIdKey(id runes.RuneId) []byte {
	key := make([]byte, runeIdKeyLength)
	binary.BigEndian.PutUint64(key, id.BlockHeight)
	binary.BigEndian.PutUint32(key[8:], id.TxIndex)
	return key
}

func parseRuneIdKey(key []byte) (runes.RuneId, error) {
	if len(key) != runeIdKeyLength {
		return runes.RuneId{}, errors.Wrapf(errs.InternalError, "invalid rune id length %d", len(key))
	}
	return runes.RuneId{
		BlockHeight: binary.BigEndian.Uint64(key),
		TxIndex:     binary.BigEndian.Uint32(key[8:]),
	}, nil
}

// outPointKey follows the consensus encoding: txid followed by the little-endian output index.
func outPointKey(outPoint wire.OutPoint) []byte {
	key := make([]byte, outPointKeyLength)
	copy(key, outPoint.Hash[:])
	binary.LittleEndian.PutUint32(key[chainhash.HashSize:], outPoint.Index)
	return key
}

// runeKey is big-endian so that keys sort like runes.
func runeKey(rune runes.Rune) []byte {
	value := rune.Uint128()
	key := make([]byte, runeKeyLength)
	binary.BigEndian.PutUint64(key, value.Hi)
	binary.BigEndian.PutUint64(key[8:], value.Lo)
	return key
}

func parseRuneKey(key []byte) (runes.Rune, error) {
	if len(key) != runeKeyLength {
		return runes.Rune{}, errors.Wrapf(errs.InternalError, "invalid rune length %d", len(key))
	}
	return runes.NewRuneFromUint128(uint128.New(binary.BigEndian.Uint64(key[8:]), binary.BigEndian.Uint64(key))), nil
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, height)
}

func uint32Key(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func inscriptionIdKey(txHash chainhash.Hash, index uint32) []byte {
	key := make([]byte, chainhash.HashSize+4)
	copy(key, txHash[:])
	binary.LittleEndian.PutUint32(key[chainhash.HashSize:], index)
	return key
}

// encodeBalances packs balances as consecutive LEB128 (block, tx, amount) triplets.
func encodeBalances(balances []entity.Balance) []byte {
	buf := make([]byte, 0, len(balances)*12)
	for _, balance := range balances {
		buf = leb128.AppendUint128(buf, uint128.From64(balance.RuneId.BlockHeight))
		buf = leb128.AppendUint128(buf, uint128.From64(uint64(balance.RuneId.TxIndex)))
		buf = leb128.AppendUint128(buf, balance.Amount)
	}
	return buf
}

func decodeBalances(data []byte) ([]entity.Balance, error) {
	var balances []entity.Balance
	for len(data) > 0 {
		var triplet [3]uint128.Uint128
		for i := range triplet {
			n, length, err := leb128.DecodeUint128(data)
			if err != nil {
				return nil, errors.Wrap(err, "failed to decode balance")
			}
			triplet[i] = n
			data = data[length:]
		}
		if !triplet[0].IsUint64() || triplet[1].Cmp64(1<<32) >= 0 {
			return nil, errors.Wrapf(errs.InternalError, "invalid rune id %s:%s in balance", triplet[0], triplet[1])
		}
		balances = append(balances, entity.Balance{
			RuneId: runes.RuneId{BlockHeight: triplet[0].Uint64(), TxIndex: triplet[1].Uint32()},
			Amount: triplet[2],
		})
	}
	return balances, nil
}

func encodeIndexedBlock(block *entity.IndexedBlock) []byte {
	buf := make([]byte, 0, indexedBlockLength)
	buf = append(buf, block.Hash[:]...)
	buf = append(buf, block.PrevHash[:]...)
	buf = append(buf, block.EventHash[:]...)
	return binary.BigEndian.AppendUint64(buf, block.EventCount)
}

func decodeIndexedBlock(height uint64, data []byte) (*entity.IndexedBlock, error) {
	if len(data) != indexedBlockLength {
		return nil, errors.Wrapf(errs.InternalError, "invalid indexed block length %d", len(data))
	}
	block := &entity.IndexedBlock{Height: int64(height)}
	copy(block.Hash[:], data)
	copy(block.PrevHash[:], data[chainhash.HashSize:])
	copy(block.EventHash[:], data[2*chainhash.HashSize:])
	block.EventCount = binary.BigEndian.Uint64(data[3*chainhash.HashSize:])
	return block, nil
}

type termsModel struct {
	Amount      *string `json:"amount,omitempty"`
	Cap         *string `json:"cap,omitempty"`
	HeightStart *uint64 `json:"height_start,omitempty"`
	HeightEnd   *uint64 `json:"height_end,omitempty"`
	OffsetStart *uint64 `json:"offset_start,omitempty"`
	OffsetEnd   *uint64 `json:"offset_end,omitempty"`
}

type runeEntryModel struct {
	RuneId        string      `json:"rune_id"`
	Number        uint64      `json:"number"`
	Divisibility  uint8       `json:"divisibility"`
	Premine       string      `json:"premine"`
	Rune          string      `json:"rune"`
	Spacers       uint32      `json:"spacers"`
	Symbol        int32       `json:"symbol"`
	Terms         *termsModel `json:"terms,omitempty"`
	Turbo         bool        `json:"turbo"`
	Mints         string      `json:"mints"`
	BurnedAmount  string      `json:"burned_amount"`
	EtchingBlock  uint64      `json:"etching_block"`
	EtchingTxHash string      `json:"etching_tx_hash"`
	EtchedAt      int64       `json:"etched_at"`
}

func uint128ToString(v *uint128.Uint128) *string {
	if v == nil {
		return nil
	}
	return lo.ToPtr(v.String())
}

func uint128FromString(s *string) (*uint128.Uint128, error) {
	if s == nil {
		return nil, nil
	}
	v, err := uint128.FromString(*s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &v, nil
}

func mapRuneEntryTypeToModel(src *runes.RuneEntry) ([]byte, error) {
	model := runeEntryModel{
		RuneId:        src.RuneId.String(),
		Number:        src.Number,
		Divisibility:  src.Divisibility,
		Premine:       src.Premine.String(),
		Rune:          src.SpacedRune.Rune.Uint128().String(),
		Spacers:       src.SpacedRune.Spacers,
		Symbol:        src.Symbol,
		Turbo:         src.Turbo,
		Mints:         src.Mints.String(),
		BurnedAmount:  src.BurnedAmount.String(),
		EtchingBlock:  src.EtchingBlock,
		EtchingTxHash: src.EtchingTxHash.String(),
	}
	if !src.EtchedAt.IsZero() {
		model.EtchedAt = src.EtchedAt.Unix()
	}
	if t := src.Terms; t != nil {
		model.Terms = &termsModel{
			Amount:      uint128ToString(t.Amount),
			Cap:         uint128ToString(t.Cap),
			HeightStart: t.HeightStart,
			HeightEnd:   t.HeightEnd,
			OffsetStart: t.OffsetStart,
			OffsetEnd:   t.OffsetEnd,
		}
	}
	data, err := json.Marshal(model)
	return data, errors.Wrap(err, "failed to marshal rune entry")
}

func mapRuneEntryModelToType(data []byte) (*runes.RuneEntry, error) {
	var src runeEntryModel
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal rune entry")
	}
	runeId, err := runes.NewRuneIdFromString(src.RuneId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse rune id")
	}
	rune, err := uint128.FromString(src.Rune)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse rune")
	}
	premine, err := uint128.FromString(src.Premine)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse premine")
	}
	mints, err := uint128.FromString(src.Mints)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse mints")
	}
	burnedAmount, err := uint128.FromString(src.BurnedAmount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse burned amount")
	}
	etchingTxHash, err := chainhash.NewHashFromStr(src.EtchingTxHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse etching tx hash")
	}
	var etchedAt time.Time
	if src.EtchedAt != 0 {
		etchedAt = time.Unix(src.EtchedAt, 0).UTC()
	}
	var terms *runes.Terms
	if src.Terms != nil {
		amount, err := uint128FromString(src.Terms.Amount)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse terms amount")
		}
		cap, err := uint128FromString(src.Terms.Cap)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse terms cap")
		}
		terms = &runes.Terms{
			Amount:      amount,
			Cap:         cap,
			HeightStart: src.Terms.HeightStart,
			HeightEnd:   src.Terms.HeightEnd,
			OffsetStart: src.Terms.OffsetStart,
			OffsetEnd:   src.Terms.OffsetEnd,
		}
	}
	return &runes.RuneEntry{
		RuneId:        runeId,
		Number:        src.Number,
		Divisibility:  src.Divisibility,
		Premine:       premine,
		SpacedRune:    runes.NewSpacedRune(runes.NewRuneFromUint128(rune), src.Spacers),
		Symbol:        src.Symbol,
		Terms:         terms,
		Turbo:         src.Turbo,
		Mints:         mints,
		BurnedAmount:  burnedAmount,
		EtchingBlock:  src.EtchingBlock,
		EtchingTxHash: *etchingTxHash,
		EtchedAt:      etchedAt,
	}, nil
}

type indexerStateModel struct {
	DBVersion        int32  `json:"db_version"`
	EventHashVersion int32  `json:"event_hash_version"`
	Network          string `json:"network"`
}
