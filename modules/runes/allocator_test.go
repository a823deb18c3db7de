package runes

import (
	"testing"

	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocatorTx(outputs ...[]byte) *types.Transaction {
	return &types.Transaction{
		TxOut: lo.Map(outputs, func(pkScript []byte, _ int) *types.TxOut {
			return &types.TxOut{PkScript: pkScript}
		}),
	}
}

func lot(v uint64) runes.Lot {
	return runes.NewLot64(v)
}

// amounts returns the allocation of runeId per output, zero for outputs without any.
func amounts(allocated allocation, runeId runes.RuneId) []uint64 {
	return lo.Map(allocated, func(balances map[runes.RuneId]runes.Lot, _ int) uint64 {
		return balances[runeId].Uint128().Uint64()
	})
}

func TestAllocateEdicts(t *testing.T) {
	runeId := runes.RuneId{BlockHeight: 840000, TxIndex: 1}
	testCases := []struct {
		name      string
		outputs   [][]byte
		balance   uint64
		edicts    []runes.Edict
		expected  []uint64
		remaining uint64
	}{
		{
			name:     "zero amount takes everything",
			outputs:  [][]byte{p2wpkh(1), p2wpkh(2)},
			balance:  10,
			edicts:   []runes.Edict{{Id: runeId, Amount: uint128.Zero, Output: 1}},
			expected: []uint64{0, 10},
		},
		{
			name:      "amount is capped by balance",
			outputs:   [][]byte{p2wpkh(1), p2wpkh(2)},
			balance:   10,
			edicts:    []runes.Edict{{Id: runeId, Amount: u128(4), Output: 0}, {Id: runeId, Amount: u128(100), Output: 1}},
			expected:  []uint64{4, 6},
			remaining: 0,
		},
		{
			name:      "partial edict leaves the rest unallocated",
			outputs:   [][]byte{p2wpkh(1)},
			balance:   10,
			edicts:    []runes.Edict{{Id: runeId, Amount: u128(3), Output: 0}},
			expected:  []uint64{3},
			remaining: 7,
		},
		{
			name:     "broadcast zero amount splits evenly",
			outputs:  [][]byte{p2wpkh(1), p2wpkh(2), p2wpkh(3)},
			balance:  10,
			edicts:   []runes.Edict{{Id: runeId, Amount: uint128.Zero, Output: 3}},
			expected: []uint64{4, 3, 3},
		},
		{
			name:     "broadcast skips op_return outputs",
			outputs:  [][]byte{p2wpkh(1), opReturn, p2wpkh(3)},
			balance:  11,
			edicts:   []runes.Edict{{Id: runeId, Amount: uint128.Zero, Output: 3}},
			expected: []uint64{6, 0, 5},
		},
		{
			name:      "broadcast amount is given to each output",
			outputs:   [][]byte{p2wpkh(1), p2wpkh(2), p2wpkh(3)},
			balance:   10,
			edicts:    []runes.Edict{{Id: runeId, Amount: u128(2), Output: 3}},
			expected:  []uint64{2, 2, 2},
			remaining: 4,
		},
		{
			name:     "broadcast amount runs out",
			outputs:  [][]byte{p2wpkh(1), p2wpkh(2), p2wpkh(3)},
			balance:  10,
			edicts:   []runes.Edict{{Id: runeId, Amount: u128(4), Output: 3}},
			expected: []uint64{4, 4, 2},
		},
		{
			name:      "broadcast without spendable outputs",
			outputs:   [][]byte{opReturn},
			balance:   10,
			edicts:    []runes.Edict{{Id: runeId, Amount: uint128.Zero, Output: 1}},
			expected:  []uint64{0},
			remaining: 10,
		},
		{
			name:      "edict of rune not in the pool",
			outputs:   [][]byte{p2wpkh(1)},
			balance:   10,
			edicts:    []runes.Edict{{Id: runes.RuneId{BlockHeight: 1, TxIndex: 0}, Amount: u128(5), Output: 0}},
			expected:  []uint64{0},
			remaining: 10,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tx := allocatorTx(tc.outputs...)
			unallocated := make(unallocatedPool)
			unallocated.add(runeId, lot(tc.balance), nil)
			allocated := newAllocation(len(tx.TxOut))

			err := allocateEdicts(tx, &runes.Runestone{Edicts: tc.edicts}, nil, unallocated, allocated)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, amounts(allocated, runeId))

			remaining, err := unallocated.balance(runeId)
			require.NoError(t, err)
			assert.Equal(t, lot(tc.remaining), remaining)
		})
	}
}

func TestAllocateEdictsWildcard(t *testing.T) {
	etched := &etchedRune{runeId: runes.RuneId{BlockHeight: 840000, TxIndex: 7}}
	tx := allocatorTx(p2wpkh(1))
	runestone := &runes.Runestone{Edicts: []runes.Edict{{Id: runes.RuneId{}, Amount: u128(5), Output: 0}}}

	t.Run("refers to the etched rune", func(t *testing.T) {
		unallocated := make(unallocatedPool)
		unallocated.add(etched.runeId, lot(8), nil)
		allocated := newAllocation(1)
		require.NoError(t, allocateEdicts(tx, runestone, etched, unallocated, allocated))
		assert.Equal(t, []uint64{5}, amounts(allocated, etched.runeId))
	})
	t.Run("ignored without etching", func(t *testing.T) {
		unallocated := make(unallocatedPool)
		unallocated.add(etched.runeId, lot(8), nil)
		allocated := newAllocation(1)
		require.NoError(t, allocateEdicts(tx, runestone, nil, unallocated, allocated))
		assert.Equal(t, []uint64{0}, amounts(allocated, etched.runeId))
	})
}

func TestUnallocatedPoolConsumesOldestFirst(t *testing.T) {
	runeId := runes.RuneId{BlockHeight: 840000, TxIndex: 1}
	alice, bob := "alice", "bob"
	unallocated := make(unallocatedPool)
	unallocated.add(runeId, lot(3), &alice)
	unallocated.add(runeId, lot(5), &bob)
	unallocated.add(runeId, lot(2), nil)

	require.NoError(t, unallocated.consume(runeId, lot(4)))
	assert.Equal(t, []provenance{{amount: lot(4), owner: &bob}, {amount: lot(2)}}, unallocated[runeId])

	assert.ErrorIs(t, unallocated.consume(runeId, lot(7)), errs.UnderflowUint128)

	require.NoError(t, unallocated.consume(runeId, lot(6)))
	assert.NotContains(t, unallocated, runeId)
}

func TestUnallocatedPoolHoldings(t *testing.T) {
	runeA := runes.RuneId{BlockHeight: 840000, TxIndex: 1}
	runeB := runes.RuneId{BlockHeight: 840001, TxIndex: 0}
	alice, bob := "alice", "bob"
	unallocated := make(unallocatedPool)
	unallocated.add(runeA, lot(3), &alice)
	unallocated.add(runeA, lot(5), &alice)
	unallocated.add(runeB, lot(1), &bob)
	unallocated.add(runeB, lot(9), nil)
	unallocated.add(runeB, lot(0), &alice)

	holdings, err := unallocated.holdings()
	require.NoError(t, err)
	assert.Equal(t, addressBalances{
		alice: {runeA: lot(8)},
		bob:   {runeB: lot(1)},
	}, holdings)
}

func TestResolveUnallocated(t *testing.T) {
	runeA := runes.RuneId{BlockHeight: 840000, TxIndex: 1}
	runeB := runes.RuneId{BlockHeight: 840001, TxIndex: 0}
	newPool := func() unallocatedPool {
		unallocated := make(unallocatedPool)
		unallocated.add(runeA, lot(3), nil)
		unallocated.add(runeB, lot(4), nil)
		return unallocated
	}

	t.Run("cenotaph burns everything", func(t *testing.T) {
		tx := allocatorTx(p2wpkh(1))
		allocated := newAllocation(1)
		burned, err := resolveUnallocated(tx, &runes.Cenotaph{}, newPool(), allocated)
		require.NoError(t, err)
		assert.Equal(t, map[runes.RuneId]runes.Lot{runeA: lot(3), runeB: lot(4)}, burned)
		assert.Nil(t, allocated[0])
	})
	t.Run("pointer", func(t *testing.T) {
		tx := allocatorTx(p2wpkh(1), p2wpkh(2))
		allocated := newAllocation(2)
		burned, err := resolveUnallocated(tx, &runes.Runestone{Pointer: lo.ToPtr(uint32(1))}, newPool(), allocated)
		require.NoError(t, err)
		assert.Empty(t, burned)
		assert.Equal(t, map[runes.RuneId]runes.Lot{runeA: lot(3), runeB: lot(4)}, allocated[1])
	})
	t.Run("pointer to op_return", func(t *testing.T) {
		tx := allocatorTx(p2wpkh(1), opReturn)
		allocated := newAllocation(2)
		_, err := resolveUnallocated(tx, &runes.Runestone{Pointer: lo.ToPtr(uint32(1))}, newPool(), allocated)
		require.NoError(t, err)
		// burned later, when the outputs are created
		assert.Equal(t, map[runes.RuneId]runes.Lot{runeA: lot(3), runeB: lot(4)}, allocated[1])
	})
	t.Run("first spendable output", func(t *testing.T) {
		tx := allocatorTx(opReturn, p2wpkh(2))
		allocated := newAllocation(2)
		_, err := resolveUnallocated(tx, nil, newPool(), allocated)
		require.NoError(t, err)
		assert.Equal(t, map[runes.RuneId]runes.Lot{runeA: lot(3), runeB: lot(4)}, allocated[1])
	})
	t.Run("no spendable output", func(t *testing.T) {
		tx := allocatorTx(opReturn)
		allocated := newAllocation(1)
		burned, err := resolveUnallocated(tx, &runes.Runestone{}, newPool(), allocated)
		require.NoError(t, err)
		assert.Equal(t, map[runes.RuneId]runes.Lot{runeA: lot(3), runeB: lot(4)}, burned)
	})
}
