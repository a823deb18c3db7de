// Package kvstoretest is a conformance suite shared by the kvstore backends.
package kvstoretest

import (
	"context"
	"testing"

	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	TableA kvstore.Table = 1
	TableB kvstore.Table = 2
)

// Run exercises a backend. newDB must return an empty store containing TableA and TableB.
func Run(t *testing.T, newDB func(t *testing.T) kvstore.DB) {
	ctx := context.Background()

	t.Run("get put delete", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, kvstore.Update(ctx, db, func(tx kvstore.Tx) error {
			_, err := tx.Get(TableA, []byte("k"))
			assert.ErrorIs(t, err, errs.NotFound)

			require.NoError(t, tx.Put(TableA, []byte("k"), []byte("v1")))
			require.NoError(t, tx.Put(TableA, []byte("k"), []byte("v2")))
			value, err := tx.Get(TableA, []byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), value)

			// tables are separate namespaces
			_, err = tx.Get(TableB, []byte("k"))
			assert.ErrorIs(t, err, errs.NotFound)

			require.NoError(t, tx.Delete(TableA, []byte("missing")))
			return nil
		}))

		require.NoError(t, kvstore.Update(ctx, db, func(tx kvstore.Tx) error {
			return tx.Delete(TableA, []byte("k"))
		}))
		require.NoError(t, kvstore.View(ctx, db, func(tx kvstore.Tx) error {
			_, err := tx.Get(TableA, []byte("k"))
			assert.ErrorIs(t, err, errs.NotFound)
			return nil
		}))
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		db := newDB(t)
		tx, err := db.Begin(ctx, true)
		require.NoError(t, err)
		require.NoError(t, tx.Put(TableA, []byte("k"), []byte("v")))
		require.NoError(t, tx.Rollback())

		require.NoError(t, kvstore.View(ctx, db, func(tx kvstore.Tx) error {
			_, err := tx.Get(TableA, []byte("k"))
			assert.ErrorIs(t, err, errs.NotFound)
			return nil
		}))
	})

	t.Run("read only", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, kvstore.View(ctx, db, func(tx kvstore.Tx) error {
			assert.ErrorIs(t, tx.Put(TableA, []byte("k"), []byte("v")), kvstore.ErrReadOnly)
			return nil
		}))
	})

	t.Run("for each prefix in order", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, kvstore.Update(ctx, db, func(tx kvstore.Tx) error {
			for _, k := range []string{"b2", "a1", "b1", "c", "b3"} {
				require.NoError(t, tx.Put(TableA, []byte(k), []byte("v"+k)))
			}
			require.NoError(t, tx.Put(TableB, []byte("b0"), []byte("other")))
			return nil
		}))

		require.NoError(t, kvstore.View(ctx, db, func(tx kvstore.Tx) error {
			var keys, values []string
			require.NoError(t, tx.ForEach(TableA, []byte("b"), func(key, value []byte) error {
				keys = append(keys, string(key))
				values = append(values, string(value))
				return nil
			}))
			assert.Equal(t, []string{"b1", "b2", "b3"}, keys)
			assert.Equal(t, []string{"vb1", "vb2", "vb3"}, values)

			keys = nil
			require.NoError(t, tx.ForEach(TableA, nil, func(key, _ []byte) error {
				keys = append(keys, string(key))
				return nil
			}))
			assert.Equal(t, []string{"a1", "b1", "b2", "b3", "c"}, keys)
			return nil
		}))
	})

	t.Run("for each sees uncommitted writes", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, kvstore.Update(ctx, db, func(tx kvstore.Tx) error {
			require.NoError(t, tx.Put(TableA, []byte{0x01, 0x02}, []byte{1}))
			var n int
			require.NoError(t, tx.ForEach(TableA, []byte{0x01}, func(_, _ []byte) error {
				n++
				return nil
			}))
			assert.Equal(t, 1, n)
			return nil
		}))
	})
}
