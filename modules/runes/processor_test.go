package runes

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/internal/kvstore/boltdb"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/repository/kv"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/btcutils"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChainData struct {
	mock.Mock
}

func (m *mockChainData) GetRawTransactionAndHeightByTxHash(ctx context.Context, txHash chainhash.Hash) (*wire.MsgTx, int64, error) {
	args := m.Called(ctx, txHash)
	tx, _ := args.Get(0).(*wire.MsgTx)
	return tx, args.Get(1).(int64), args.Error(2)
}

type testEnv struct {
	t         *testing.T
	repo      *kv.Repository
	processor *Processor
	emitter   *event.Emitter
	chainData *mockChainData
	artifacts map[chainhash.Hash]runes.Artifact
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := boltdb.New(boltdb.Config{Path: filepath.Join(t.TempDir(), "runes.db"), NoSync: true}, kv.Tables...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		t:         t,
		repo:      kv.NewRepository(db),
		chainData: &mockChainData{},
		artifacts: make(map[chainhash.Hash]runes.Artifact),
	}
	env.restart(event.NewEmitter(4096))
	return env
}

// restart replaces the processor with a new one delivering to emitter, as a new run of the indexer would.
func (e *testEnv) restart(emitter *event.Emitter) {
	e.t.Helper()
	e.emitter = emitter
	e.processor = NewProcessor(e.repo, e.repo, e.chainData, common.NetworkRegtest, ProcessorOptions{
		Emitter: emitter,
		Decoder: runes.DecoderFunc(func(tx *types.Transaction) (runes.Artifact, error) {
			return e.artifacts[tx.TxHash], nil
		}),
	})
	require.NoError(e.t, e.processor.VerifyStates(context.Background()))
}

// process runs one block and returns the events delivered for it.
func (e *testEnv) process(height int64, txs ...*types.Transaction) []event.Event {
	e.t.Helper()
	require.NoError(e.t, e.processor.Process(context.Background(), []*types.Block{testBlock(height, txs...)}))
	return e.drain()
}

// drain consumes and acknowledges every buffered event.
func (e *testEnv) drain() []event.Event {
	e.t.Helper()
	var events []event.Event
	for {
		select {
		case ev := <-e.emitter.Events():
			require.NoError(e.t, e.processor.AcknowledgeEvent(context.Background(), ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func (e *testEnv) balances(outPoint wire.OutPoint) map[runes.RuneId]uint128.Uint128 {
	e.t.Helper()
	balance, err := e.repo.GetRunesBalancesAtOutPoint(context.Background(), outPoint)
	if errors.Is(err, errs.NotFound) {
		return nil
	}
	require.NoError(e.t, err)
	return lo.SliceToMap(balance.Balances, func(b entity.Balance) (runes.RuneId, uint128.Uint128) {
		return b.RuneId, b.Amount
	})
}

func (e *testEnv) entry(runeId runes.RuneId) *runes.RuneEntry {
	e.t.Helper()
	runeEntry, err := e.repo.GetRuneEntryByRuneId(context.Background(), runeId)
	require.NoError(e.t, err)
	return runeEntry
}

func testBlock(height int64, txs ...*types.Transaction) *types.Block {
	for i, tx := range txs {
		tx.Index = uint32(i)
		tx.BlockHeight = height
	}
	return &types.Block{
		Header: types.BlockHeader{
			Height:    height,
			Hash:      chainhash.Hash{0xb1, byte(height >> 8), byte(height)},
			PrevBlock: chainhash.Hash{0xb1, byte((height - 1) >> 8), byte(height - 1)},
			Timestamp: time.Unix(1713571767+height*600, 0),
		},
		Transactions: txs,
	}
}

// testTx builds a transaction with a unique hash. Its artifact, if any, is registered in the decoder.
func (e *testEnv) testTx(id byte, artifact runes.Artifact, inputs []*types.TxIn, outputs ...[]byte) *types.Transaction {
	tx := &types.Transaction{
		TxHash: chainhash.Hash{0x7a, id},
		TxIn:   inputs,
		TxOut: lo.Map(outputs, func(pkScript []byte, _ int) *types.TxOut {
			return &types.TxOut{PkScript: pkScript, Value: 546}
		}),
	}
	if artifact != nil {
		e.artifacts[tx.TxHash] = artifact
	}
	return tx
}

func spend(outPoints ...wire.OutPoint) []*types.TxIn {
	return lo.Map(outPoints, func(op wire.OutPoint, _ int) *types.TxIn {
		return &types.TxIn{PreviousOutTxHash: op.Hash, PreviousOutIndex: op.Index}
	})
}

func outPointOf(tx *types.Transaction, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: tx.TxHash, Index: index}
}

func p2wpkh(b byte) []byte {
	return append([]byte{txscript.OP_0, txscript.OP_DATA_20}, bytes.Repeat([]byte{b}, 20)...)
}

func p2tr(b byte) []byte {
	return append([]byte{txscript.OP_1, txscript.OP_DATA_32}, bytes.Repeat([]byte{b}, 32)...)
}

var opReturn = []byte{txscript.OP_RETURN}

func addressOf(t *testing.T, pkScript []byte) string {
	t.Helper()
	address, err := btcutils.PkScriptToAddress(pkScript, common.NetworkRegtest)
	require.NoError(t, err)
	return address
}

func eventsOfType(events []event.Event, typ event.Type) []event.Event {
	return lo.Filter(events, func(ev event.Event, _ int) bool { return ev.Type == typ })
}

func eventTypes(events []event.Event) []event.Type {
	return lo.Map(events, func(ev event.Event, _ int) event.Type { return ev.Type })
}

func u128(v uint64) uint128.Uint128 {
	return uint128.From64(v)
}

// etchReserved etches a rune without a name at height 10 and premines amount to a p2wpkh(0xaa) output.
func (e *testEnv) etchReserved(premine uint64, terms *runes.Terms) (runes.RuneId, *types.Transaction) {
	e.t.Helper()
	tx := e.testTx(1, &runes.Runestone{
		Etching: &runes.Etching{
			Premine: lo.ToPtr(u128(premine)),
			Terms:   terms,
		},
	}, nil, p2wpkh(0xaa))
	e.process(10, tx)
	return runes.RuneId{BlockHeight: 10, TxIndex: 0}, tx
}

func TestEtchReservedRune(t *testing.T) {
	env := newTestEnv(t)
	tx := env.testTx(1, &runes.Runestone{
		Etching: &runes.Etching{
			Divisibility: lo.ToPtr(uint8(2)),
			Premine:      lo.ToPtr(u128(1000)),
			Symbol:       lo.ToPtr('R'),
			Turbo:        true,
		},
	}, nil, p2wpkh(0xaa))

	events := env.process(10, tx)
	assert.Equal(t, []event.Type{
		event.TypeBlockStart,
		event.TypeRuneEtched,
		event.TypeRuneUtxoCreated,
		event.TypeRuneCredited,
		event.TypeBlockEnd,
	}, eventTypes(events))

	runeId := runes.RuneId{BlockHeight: 10, TxIndex: 0}
	runeEntry := env.entry(runeId)
	assert.Equal(t, runes.GetReservedRune(10, 0), runeEntry.SpacedRune.Rune)
	assert.Equal(t, uint64(0), runeEntry.Number)
	assert.Equal(t, uint8(2), runeEntry.Divisibility)
	assert.Equal(t, u128(1000), runeEntry.Premine)
	assert.Equal(t, 'R', runeEntry.Symbol)
	assert.True(t, runeEntry.Turbo)
	assert.Equal(t, tx.TxHash, runeEntry.EtchingTxHash)
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(1000)}, env.balances(outPointOf(tx, 0)))

	ctx := context.Background()
	reserved, err := env.repo.GetStatistic(ctx, entity.StatisticReservedRunes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reserved)
	count, err := env.repo.GetStatistic(ctx, entity.StatisticRunes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	credited := eventsOfType(events, event.TypeRuneCredited)[0]
	assert.Equal(t, addressOf(t, p2wpkh(0xaa)), *credited.Address)
	assert.Equal(t, u128(1000), *credited.Amount)
	assert.Equal(t, runeId, *credited.RuneId)
}

func TestMintAndTransfer(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, &runes.Terms{
		Amount: lo.ToPtr(u128(100)),
		Cap:    lo.ToPtr(u128(10)),
	})

	tx := env.testTx(2, &runes.Runestone{
		Mint:   lo.ToPtr(runeId),
		Edicts: []runes.Edict{{Id: runeId, Amount: u128(300), Output: 1}},
	}, spend(outPointOf(etchTx, 0)), p2wpkh(0xbb), p2wpkh(0xaa))
	events := env.process(11, tx)

	// leftovers go to the first output
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(800)}, env.balances(outPointOf(tx, 0)))
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(300)}, env.balances(outPointOf(tx, 1)))
	assert.Nil(t, env.balances(outPointOf(etchTx, 0)))
	assert.Equal(t, u128(1), env.entry(runeId).Mints)

	minted := eventsOfType(events, event.TypeRuneMinted)
	require.Len(t, minted, 1)
	assert.Equal(t, u128(100), *minted[0].Amount)

	spent := eventsOfType(events, event.TypeRuneUtxoSpent)
	require.Len(t, spent, 1)
	assert.Equal(t, outPointOf(etchTx, 0), *spent[0].OutPoint)

	debited := eventsOfType(events, event.TypeRuneDebited)
	require.Len(t, debited, 1)
	assert.Equal(t, addressOf(t, p2wpkh(0xaa)), *debited[0].Address)
	assert.Equal(t, u128(700), *debited[0].Amount)

	credited := eventsOfType(events, event.TypeRuneCredited)
	require.Len(t, credited, 1)
	assert.Equal(t, addressOf(t, p2wpkh(0xbb)), *credited[0].Address)
	assert.Equal(t, u128(800), *credited[0].Amount)

	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, tx.TxHash, *ev.TxHash)
		assert.Equal(t, uint32(0), *ev.TxIndex)
	}
}

func TestMintCap(t *testing.T) {
	env := newTestEnv(t)
	runeId, _ := env.etchReserved(0, &runes.Terms{
		Amount: lo.ToPtr(u128(50)),
		Cap:    lo.ToPtr(u128(1)),
	})

	first := env.testTx(2, &runes.Runestone{Mint: lo.ToPtr(runeId)}, nil, p2wpkh(0xaa))
	second := env.testTx(3, &runes.Runestone{Mint: lo.ToPtr(runeId)}, nil, p2wpkh(0xbb))
	events := env.process(11, first, second)

	assert.Len(t, eventsOfType(events, event.TypeRuneMinted), 1)
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(50)}, env.balances(outPointOf(first, 0)))
	assert.Nil(t, env.balances(outPointOf(second, 0)))
	assert.Equal(t, u128(1), env.entry(runeId).Mints)
}

func TestMintOfUnknownRune(t *testing.T) {
	env := newTestEnv(t)
	tx := env.testTx(1, &runes.Runestone{Mint: &runes.RuneId{BlockHeight: 5, TxIndex: 1}}, nil, p2wpkh(0xaa))
	events := env.process(10, tx)

	assert.Equal(t, []event.Type{event.TypeBlockStart, event.TypeBlockEnd}, eventTypes(events))
}

func TestCenotaphBurnsInputsAndMint(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, &runes.Terms{
		Amount: lo.ToPtr(u128(100)),
		Cap:    lo.ToPtr(u128(10)),
	})

	tx := env.testTx(2, &runes.Cenotaph{
		Mint:  lo.ToPtr(runeId),
		Flaws: runes.FlawFlagVarInt.Mask(),
	}, spend(outPointOf(etchTx, 0)), p2wpkh(0xaa))
	events := env.process(11, tx)

	assert.Nil(t, env.balances(outPointOf(tx, 0)))
	assert.Empty(t, eventsOfType(events, event.TypeRuneUtxoCreated))

	burned := eventsOfType(events, event.TypeRuneBurned)
	require.Len(t, burned, 1)
	assert.Equal(t, u128(1100), *burned[0].Amount)

	debited := eventsOfType(events, event.TypeRuneDebited)
	require.Len(t, debited, 1)
	assert.Equal(t, u128(1000), *debited[0].Amount)

	runeEntry := env.entry(runeId)
	assert.Equal(t, u128(1100), runeEntry.BurnedAmount)
	assert.Equal(t, u128(1), runeEntry.Mints)
}

func TestOpReturnAllocationIsBurned(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, nil)

	tx := env.testTx(2, &runes.Runestone{
		Edicts: []runes.Edict{{Id: runeId, Amount: u128(400), Output: 0}},
	}, spend(outPointOf(etchTx, 0)), opReturn, p2wpkh(0xaa))
	events := env.process(11, tx)

	assert.Nil(t, env.balances(outPointOf(tx, 0)))
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(600)}, env.balances(outPointOf(tx, 1)))

	burned := eventsOfType(events, event.TypeRuneBurned)
	require.Len(t, burned, 1)
	assert.Equal(t, u128(400), *burned[0].Amount)
	assert.Equal(t, u128(400), env.entry(runeId).BurnedAmount)
}

func TestNoSpendableOutputBurnsLeftovers(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, nil)

	tx := env.testTx(2, &runes.Runestone{}, spend(outPointOf(etchTx, 0)), opReturn)
	env.process(11, tx)

	assert.Equal(t, u128(1000), env.entry(runeId).BurnedAmount)
}

func TestPointerReceivesLeftovers(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, nil)

	tx := env.testTx(2, &runes.Runestone{Pointer: lo.ToPtr(uint32(2))},
		spend(outPointOf(etchTx, 0)), p2wpkh(0xaa), p2wpkh(0xbb), p2wpkh(0xcc))
	env.process(11, tx)

	assert.Nil(t, env.balances(outPointOf(tx, 0)))
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(1000)}, env.balances(outPointOf(tx, 2)))
}

func TestTransferToSameAddressEmitsNoDebitOrCredit(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, nil)

	tx := env.testTx(2, &runes.Runestone{
		Edicts: []runes.Edict{{Id: runeId, Amount: u128(10), Output: 1}},
	}, spend(outPointOf(etchTx, 0)), p2wpkh(0xaa), p2wpkh(0xaa))
	events := env.process(11, tx)

	assert.Empty(t, eventsOfType(events, event.TypeRuneDebited))
	assert.Empty(t, eventsOfType(events, event.TypeRuneCredited))
	assert.Len(t, eventsOfType(events, event.TypeRuneUtxoCreated), 2)
}

func TestOutputWithoutAddress(t *testing.T) {
	env := newTestEnv(t)
	// bare OP_TRUE has no address encoding
	tx := env.testTx(1, &runes.Runestone{
		Etching: &runes.Etching{Premine: lo.ToPtr(u128(5))},
	}, nil, []byte{txscript.OP_TRUE})
	events := env.process(10, tx)

	balance, err := env.repo.GetRunesBalancesAtOutPoint(context.Background(), outPointOf(tx, 0))
	require.NoError(t, err)
	require.NotNil(t, balance.Owner)
	assert.Equal(t, "", *balance.Owner)

	credited := eventsOfType(events, event.TypeRuneCredited)
	require.Len(t, credited, 1)
	assert.Equal(t, "", *credited[0].Address)
}

// namedRune is above the minimum rune at the heights used in these tests.
var namedRune = runes.NewRune(200_000_000_000_000_000)

func commitInput(t *testing.T, commitTxHash chainhash.Hash, rune runes.Rune) *types.TxIn {
	t.Helper()
	tapscript, err := txscript.NewScriptBuilder().
		AddData(rune.Commitment()).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_TRUE).
		Script()
	require.NoError(t, err)
	controlBlock := append([]byte{byte(txscript.BaseLeafVersion)}, bytes.Repeat([]byte{0x02}, 32)...)
	return &types.TxIn{
		PreviousOutTxHash: commitTxHash,
		PreviousOutIndex:  0,
		Witness:           [][]byte{tapscript, controlBlock},
	}
}

func commitTx(pkScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(10000, pkScript))
	return tx
}

func TestEtchNamedRune(t *testing.T) {
	commitTxHash := chainhash.Hash{0xc0}
	testCases := []struct {
		name         string
		commitHeight int64
		commitScript []byte
		etched       bool
	}{
		{name: "confirmed", commitHeight: 95, commitScript: p2tr(0x01), etched: true},
		{name: "not enough confirmations", commitHeight: 96, commitScript: p2tr(0x01), etched: false},
		{name: "commit output is not taproot", commitHeight: 90, commitScript: p2wpkh(0x01), etched: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.chainData.On("GetRawTransactionAndHeightByTxHash", mock.Anything, commitTxHash).
				Return(commitTx(tc.commitScript), tc.commitHeight, nil).Once()

			tx := env.testTx(1, &runes.Runestone{
				Etching: &runes.Etching{
					Rune:    lo.ToPtr(namedRune),
					Spacers: lo.ToPtr(uint32(0b1)),
					Premine: lo.ToPtr(u128(21)),
				},
			}, []*types.TxIn{commitInput(t, commitTxHash, namedRune)}, p2wpkh(0xaa))
			events := env.process(100, tx)
			env.chainData.AssertExpectations(t)

			runeId := runes.RuneId{BlockHeight: 100, TxIndex: 0}
			_, err := env.repo.GetRuneIdByRune(context.Background(), namedRune)
			if !tc.etched {
				assert.ErrorIs(t, err, errs.NotFound)
				assert.Empty(t, eventsOfType(events, event.TypeRuneEtched))
				// premine of an invalid etching goes nowhere
				assert.Nil(t, env.balances(outPointOf(tx, 0)))
				return
			}
			require.NoError(t, err)
			etched := eventsOfType(events, event.TypeRuneEtched)
			require.Len(t, etched, 1)
			assert.Equal(t, runes.NewSpacedRune(namedRune, 0b1), etched[0].Etched.SpacedRune)

			name, err := env.repo.GetRuneByTxHash(context.Background(), tx.TxHash)
			require.NoError(t, err)
			assert.Equal(t, namedRune, name)
			assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(21)}, env.balances(outPointOf(tx, 0)))
		})
	}
}

func TestEtchNamedRuneWithoutCommitment(t *testing.T) {
	env := newTestEnv(t)
	tx := env.testTx(1, &runes.Runestone{
		Etching: &runes.Etching{Rune: lo.ToPtr(namedRune)},
	}, nil, p2wpkh(0xaa))
	events := env.process(100, tx)

	assert.Empty(t, eventsOfType(events, event.TypeRuneEtched))
	env.chainData.AssertNotCalled(t, "GetRawTransactionAndHeightByTxHash", mock.Anything, mock.Anything)
}

func TestEtchRejectedNames(t *testing.T) {
	env := newTestEnv(t)
	testCases := []struct {
		name string
		rune runes.Rune
	}{
		{name: "reserved", rune: runes.GetReservedRune(1, 1)},
		{name: "below minimum", rune: runes.NewRune(5)},
	}
	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tx := env.testTx(byte(i+1), &runes.Runestone{
				Etching: &runes.Etching{Rune: lo.ToPtr(tc.rune)},
			}, nil, p2wpkh(0xaa))
			events := env.process(int64(100+i), tx)
			assert.Empty(t, eventsOfType(events, event.TypeRuneEtched))
		})
	}
}

func TestEtchExistingRune(t *testing.T) {
	env := newTestEnv(t)
	commitTxHash := chainhash.Hash{0xc0}
	env.chainData.On("GetRawTransactionAndHeightByTxHash", mock.Anything, commitTxHash).
		Return(commitTx(p2tr(0x01)), int64(50), nil)

	first := env.testTx(1, &runes.Runestone{Etching: &runes.Etching{Rune: lo.ToPtr(namedRune)}},
		[]*types.TxIn{commitInput(t, commitTxHash, namedRune)}, p2wpkh(0xaa))
	second := env.testTx(2, &runes.Runestone{Etching: &runes.Etching{Rune: lo.ToPtr(namedRune)}},
		[]*types.TxIn{commitInput(t, commitTxHash, namedRune)}, p2wpkh(0xaa))
	events := env.process(100, first, second)

	etched := eventsOfType(events, event.TypeRuneEtched)
	require.Len(t, etched, 1)
	assert.Equal(t, first.TxHash, *etched[0].TxHash)
}

func TestCenotaphEtchesWithoutSupply(t *testing.T) {
	env := newTestEnv(t)
	commitTxHash := chainhash.Hash{0xc0}
	env.chainData.On("GetRawTransactionAndHeightByTxHash", mock.Anything, commitTxHash).
		Return(commitTx(p2tr(0x01)), int64(50), nil)

	tx := env.testTx(1, &runes.Cenotaph{
		Etching: lo.ToPtr(namedRune),
		Flaws:   runes.FlawFlagUnrecognizedEvenTag.Mask(),
	}, []*types.TxIn{commitInput(t, commitTxHash, namedRune)}, p2wpkh(0xaa))
	env.process(100, tx)

	runeEntry := env.entry(runes.RuneId{BlockHeight: 100, TxIndex: 0})
	assert.True(t, runeEntry.Premine.IsZero())
	assert.Nil(t, runeEntry.Terms)
	assert.Equal(t, runes.NewSpacedRune(namedRune, 0), runeEntry.SpacedRune)
}

func TestChainDataErrorAbortsBlock(t *testing.T) {
	env := newTestEnv(t)
	commitTxHash := chainhash.Hash{0xc0}
	env.chainData.On("GetRawTransactionAndHeightByTxHash", mock.Anything, commitTxHash).
		Return(nil, int64(0), errors.New("connection refused"))

	premineTx := env.testTx(1, &runes.Runestone{
		Etching: &runes.Etching{Premine: lo.ToPtr(u128(5))},
	}, nil, p2wpkh(0xaa))
	etchTx := env.testTx(2, &runes.Runestone{
		Etching: &runes.Etching{Rune: lo.ToPtr(namedRune)},
	}, []*types.TxIn{commitInput(t, commitTxHash, namedRune)}, p2wpkh(0xaa))

	err := env.processor.Process(context.Background(), []*types.Block{testBlock(100, premineTx, etchTx)})
	require.Error(t, err)

	// nothing of the block is persisted or delivered
	assert.Empty(t, env.drain())
	assert.Nil(t, env.balances(outPointOf(premineTx, 0)))
	_, err = env.repo.GetLatestBlock(context.Background())
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestRevertData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	runeId, etchTx := env.etchReserved(1000, &runes.Terms{
		Amount: lo.ToPtr(u128(100)),
		Cap:    lo.ToPtr(u128(10)),
	})
	tx := env.testTx(2, &runes.Runestone{Mint: lo.ToPtr(runeId)}, spend(outPointOf(etchTx, 0)), opReturn)
	env.process(11, tx)
	require.Equal(t, u128(1100), env.entry(runeId).BurnedAmount)

	require.NoError(t, env.processor.RevertData(ctx, 11))

	events := env.drain()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeReorgDetected, events[0].Type)
	assert.Equal(t, uint64(11), events[0].BlockHeight)
	assert.Equal(t, uint64(1), events[0].Depth)

	runeEntry := env.entry(runeId)
	assert.True(t, runeEntry.BurnedAmount.IsZero())
	assert.True(t, runeEntry.Mints.IsZero())
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(1000)}, env.balances(outPointOf(etchTx, 0)))

	current, err := env.processor.CurrentBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), current.Height)

	// the reverted height can be processed again
	env.process(11, tx)
	assert.Equal(t, u128(1100), env.entry(runeId).BurnedAmount)

	// reverting the etching removes the rune and restores the counters
	reservedRune := runes.GetReservedRune(10, 0)
	_, err = env.repo.GetRuneIdByRune(ctx, reservedRune)
	require.NoError(t, err)
	require.NoError(t, env.processor.RevertData(ctx, 10))
	events = env.drain()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].Depth)

	_, err = env.repo.GetRuneEntryByRuneId(ctx, runeId)
	assert.ErrorIs(t, err, errs.NotFound)
	_, err = env.repo.GetRuneIdByRune(ctx, reservedRune)
	assert.ErrorIs(t, err, errs.NotFound)
	_, err = env.repo.GetRuneByTxHash(ctx, etchTx.TxHash)
	assert.ErrorIs(t, err, errs.NotFound)
	assert.Nil(t, env.balances(outPointOf(etchTx, 0)))
	for _, statistic := range []entity.Statistic{entity.StatisticRunes, entity.StatisticReservedRunes} {
		count, err := env.repo.GetStatistic(ctx, statistic)
		require.NoError(t, err)
		assert.Zero(t, count, statistic.String())
	}
	_, err = env.repo.GetLatestBlock(ctx)
	assert.ErrorIs(t, err, errs.NotFound)

	// etched again, the rune gets the same number
	env.process(10, etchTx)
	assert.Equal(t, uint64(0), env.entry(runeId).Number)
	count, err := env.repo.GetStatistic(ctx, entity.StatisticReservedRunes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestCommittedBlockEventsSurviveFailedDelivery(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(40, nil)
	tx := env.testTx(2, nil, spend(outPointOf(etchTx, 0)), p2wpkh(0xbb))

	// nobody consumes, one slot
	env.restart(event.NewEmitter(1))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := env.processor.Process(ctx, []*types.Block{testBlock(11, tx)})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	current, err := env.processor.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), current.Height)
	assert.Equal(t, map[runes.RuneId]uint128.Uint128{runeId: u128(40)}, env.balances(outPointOf(tx, 0)))

	pending, err := env.repo.GetPendingEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	batchTypes := eventTypes(pending[0])
	assert.Equal(t, event.TypeBlockStart, batchTypes[0])
	assert.Equal(t, event.TypeBlockEnd, batchTypes[len(batchTypes)-1])
	assert.Subset(t, batchTypes, []event.Type{event.TypeRuneUtxoSpent, event.TypeRuneUtxoCreated, event.TypeRuneDebited, event.TypeRuneCredited})

	// the next run delivers the whole batch before anything else
	env.restart(event.NewEmitter(64))
	assert.Equal(t, pending[0], env.drain())

	pending, err = env.repo.GetPendingEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFailedConsumerStopsProcessing(t *testing.T) {
	env := newTestEnv(t)
	_, etchTx := env.etchReserved(40, nil)
	emitter := event.NewEmitter(1)
	env.restart(emitter)

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumeEvents(context.Background(), emitter, env.processor, func(context.Context, event.Event) error {
			return errors.New("sink unavailable")
		})
	}()

	tx := env.testTx(2, nil, spend(outPointOf(etchTx, 0)), p2wpkh(0xbb))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := env.processor.Process(ctx, []*types.Block{testBlock(11, tx)})
	assert.ErrorIs(t, err, event.ErrConsumerStopped)
	assert.ErrorContains(t, <-consumerErr, "sink unavailable")

	// nothing was acknowledged
	pending, err := env.repo.GetPendingEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEventHashIsDeterministic(t *testing.T) {
	run := func() (chainhash.Hash, []event.Event) {
		env := newTestEnv(t)
		runeId, etchTx := env.etchReserved(1000, &runes.Terms{
			Amount: lo.ToPtr(u128(100)),
			Cap:    lo.ToPtr(u128(10)),
		})
		tx := env.testTx(2, &runes.Runestone{
			Mint:   lo.ToPtr(runeId),
			Edicts: []runes.Edict{{Id: runeId, Amount: u128(0), Output: 3}},
		}, spend(outPointOf(etchTx, 0)), p2wpkh(0xaa), p2wpkh(0xbb), p2wpkh(0xcc))
		events := env.process(11, tx)

		block, err := env.repo.GetIndexedBlockByHeight(context.Background(), 11)
		require.NoError(t, err)
		return block.EventHash, events
	}

	hash1, events1 := run()
	hash2, events2 := run()
	assert.Equal(t, hash1, hash2)
	assert.Equal(t, events1, events2)

	blockEnd := events1[len(events1)-1]
	require.Equal(t, event.TypeBlockEnd, blockEnd.Type)
	assert.Equal(t, hash1, *blockEnd.EventHash)
	assert.Equal(t, uint64(len(events1)-1), blockEnd.EventCount)
}

func TestConservation(t *testing.T) {
	env := newTestEnv(t)
	runeId, etchTx := env.etchReserved(1000, &runes.Terms{
		Amount: lo.ToPtr(u128(7)),
		Cap:    lo.ToPtr(u128(100)),
	})

	tx := env.testTx(2, &runes.Runestone{
		Mint: lo.ToPtr(runeId),
		Edicts: []runes.Edict{
			{Id: runeId, Amount: u128(3), Output: 4},
			{Id: runeId, Amount: u128(100), Output: 0},
			{Id: runeId, Amount: u128(0), Output: 2},
		},
	}, spend(outPointOf(etchTx, 0)), opReturn, p2wpkh(0xaa), p2wpkh(0xbb), p2wpkh(0xcc))
	env.process(11, tx)

	total := env.entry(runeId).BurnedAmount
	for i := range tx.TxOut {
		total = total.Add(env.balances(outPointOf(tx, uint32(i)))[runeId])
	}
	assert.Equal(t, u128(1007), total)
	assert.Equal(t, u128(100), env.entry(runeId).BurnedAmount)
}
