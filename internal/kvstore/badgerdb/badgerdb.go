// Package badgerdb implements kvstore on top of Badger. A table is a one byte key prefix.
package badgerdb

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
)

var _ kvstore.DB = (*DB)(nil)

type Config struct {
	Path string `mapstructure:"path"`
	// InMemory keeps everything in memory, Path is ignored.
	InMemory bool `mapstructure:"in_memory"`
}

type DB struct {
	db *badger.DB
}

func New(conf Config) (*DB, error) {
	opts := badger.DefaultOptions(conf.Path)
	if conf.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, errors.Wrapf(err, "database at %s is locked by another process", conf.Path)
		}
		return nil, errors.Wrapf(err, "can't open badger database at %s", conf.Path)
	}
	return &DB{db: db}, nil
}

func (d *DB) Begin(_ context.Context, writable bool) (kvstore.Tx, error) {
	return &Tx{txn: d.db.NewTransaction(writable), writable: writable}, nil
}

func (d *DB) Close() error {
	return errors.WithStack(d.db.Close())
}

type Tx struct {
	txn      *badger.Txn
	writable bool
	done     bool
}

func tableKey(table kvstore.Table, key []byte) []byte {
	k := make([]byte, 0, len(key)+1)
	k = append(k, byte(table))
	return append(k, key...)
}

func (t *Tx) Get(table kvstore.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(tableKey(table, key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "badger get")
	}
	value, err := item.ValueCopy(nil)
	return value, errors.Wrap(err, "badger value copy")
}

func (t *Tx) Put(table kvstore.Table, key, value []byte) error {
	if !t.writable {
		return errors.WithStack(kvstore.ErrReadOnly)
	}
	return errors.Wrap(t.txn.Set(tableKey(table, key), value), "badger set")
}

func (t *Tx) Delete(table kvstore.Table, key []byte) error {
	if !t.writable {
		return errors.WithStack(kvstore.ErrReadOnly)
	}
	return errors.Wrap(t.txn.Delete(tableKey(table, key)), "badger delete")
}

func (t *Tx) ForEach(table kvstore.Table, prefix []byte, fn func(key, value []byte) error) error {
	full := tableKey(table, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)[1:]
		value, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "badger value copy")
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) Commit() error {
	if t.done {
		return errors.Wrap(errs.Closed, "transaction already finished")
	}
	t.done = true
	if !t.writable {
		t.txn.Discard()
		return nil
	}
	return errors.Wrap(t.txn.Commit(), "can't commit badger transaction")
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}
