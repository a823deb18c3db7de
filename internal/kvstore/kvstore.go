// Package kvstore is the transactional ordered key-value interface the ledger is stored in.
// Keys live in tables, each backend maps a table to its own namespace (bucket, key prefix or column).
package kvstore

import (
	"bytes"
	"context"

	"github.com/gaze-network/runes-settlement/common/errs"
)

// Table is a namespace of keys.
type Table byte

// DB is a key-value store with serializable transactions.
type DB interface {
	// Begin starts a transaction. Only one writable transaction may be open at a time.
	Begin(ctx context.Context, writable bool) (Tx, error)
	Close() error
}

// Tx is a transaction. Values returned by Get and ForEach are owned by the caller.
// A transaction must end with exactly one Commit or Rollback. Rollback after Commit is a no-op.
type Tx interface {
	// Get returns errs.NotFound if key is absent.
	Get(table Table, key []byte) ([]byte, error)
	Put(table Table, key, value []byte) error
	// Delete does nothing if key is absent.
	Delete(table Table, key []byte) error
	// ForEach calls fn for every key with the given prefix in ascending key order.
	// fn must not modify the table being iterated.
	ForEach(table Table, prefix []byte, fn func(key, value []byte) error) error
	Commit() error
	Rollback() error
}

// ErrReadOnly is returned when writing through a read-only transaction.
const ErrReadOnly = errs.ErrorKind("kvstore: read-only transaction")

// PrefixEnd returns the smallest key greater than every key with the prefix,
// or nil when there is none (empty prefix or all 0xff).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// View runs fn in a read-only transaction.
func View(ctx context.Context, db DB, fn func(tx Tx) error) error {
	tx, err := db.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(tx)
}

// Update runs fn in a writable transaction and commits it when fn succeeds.
func Update(ctx context.Context, db DB, fn func(tx Tx) error) error {
	tx, err := db.Begin(ctx, true)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
