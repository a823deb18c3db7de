// Package boltdb implements kvstore on top of bbolt, one bucket per table.
package boltdb

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	bolt "go.etcd.io/bbolt"
)

var _ kvstore.DB = (*DB)(nil)

type Config struct {
	Path string `mapstructure:"path"`
	// NoSync skips fsync after each commit. Only meant for tests and initial sync.
	NoSync bool `mapstructure:"no_sync"`
}

type DB struct {
	db *bolt.DB
}

func New(conf Config, tables ...kvstore.Table) (*DB, error) {
	path, err := filepath.Abs(conf.Path)
	if err != nil {
		return nil, errors.Wrap(err, "invalid bolt database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "can't create bolt database directory")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:        5 * time.Second,
		NoFreelistSync: true,
		NoSync:         conf.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't open bolt database %q", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range tables {
			if _, err := tx.CreateBucketIfNotExists(bucketName(table)); err != nil {
				return errors.Wrapf(err, "can't create bucket for table %d", table)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return &DB{db: db}, nil
}

func bucketName(table kvstore.Table) []byte {
	return []byte{byte(table)}
}

func (d *DB) Begin(_ context.Context, writable bool) (kvstore.Tx, error) {
	tx, err := d.db.Begin(writable)
	if err != nil {
		return nil, errors.Wrap(err, "can't begin bolt transaction")
	}
	return &Tx{tx: tx}, nil
}

func (d *DB) Close() error {
	return errors.WithStack(d.db.Close())
}

type Tx struct {
	tx   *bolt.Tx
	done bool
}

func (t *Tx) bucket(table kvstore.Table) (*bolt.Bucket, error) {
	b := t.tx.Bucket(bucketName(table))
	if b == nil {
		return nil, errors.Wrapf(errs.InternalError, "bucket for table %d does not exist", table)
	}
	return b, nil
}

func (t *Tx) Get(table kvstore.Table, key []byte) ([]byte, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	// bolt values are only valid for the life of the transaction
	value := b.Get(key)
	if value == nil {
		return nil, errors.WithStack(errs.NotFound)
	}
	return bytes.Clone(value), nil
}

func (t *Tx) Put(table kvstore.Table, key, value []byte) error {
	if !t.tx.Writable() {
		return errors.WithStack(kvstore.ErrReadOnly)
	}
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return errors.WithStack(b.Put(key, value))
}

func (t *Tx) Delete(table kvstore.Table, key []byte) error {
	if !t.tx.Writable() {
		return errors.WithStack(kvstore.ErrReadOnly)
	}
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return errors.WithStack(b.Delete(key))
}

func (t *Tx) ForEach(table kvstore.Table, prefix []byte, fn func(key, value []byte) error) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(bytes.Clone(k), bytes.Clone(v)); err != nil {
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
	if !t.tx.Writable() {
		return errors.WithStack(t.tx.Rollback())
	}
	return errors.Wrap(t.tx.Commit(), "can't commit bolt transaction")
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return errors.WithStack(t.tx.Rollback())
}
