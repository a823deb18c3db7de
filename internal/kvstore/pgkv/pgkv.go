// Package pgkv implements kvstore on a single PostgreSQL table, so the ledger can share
// infrastructure with other services that already run Postgres.
//
// The schema is created by the runes migrations (see cmd migrate):
//
//	CREATE TABLE runes_kv (tbl SMALLINT, key BYTEA, value BYTEA NOT NULL, PRIMARY KEY (tbl, key));
package pgkv

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/internal/postgres"
	"github.com/jackc/pgx/v5"
)

var _ kvstore.DB = (*DB)(nil)

type DB struct {
	db    postgres.DB
	close func()
}

// New wraps an open connection or pool. closeFn, if not nil, is called by Close.
func New(db postgres.DB, closeFn func()) *DB {
	return &DB{db: db, close: closeFn}
}

func (d *DB) Begin(ctx context.Context, writable bool) (kvstore.Tx, error) {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	if writable {
		opts.AccessMode = pgx.ReadWrite
	}
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "can't begin postgres transaction")
	}
	return &Tx{ctx: ctx, tx: tx}, nil
}

func (d *DB) Close() error {
	if d.close != nil {
		d.close()
	}
	return nil
}

// Tx keeps the context of Begin since kvstore calls carry none.
type Tx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *Tx) Get(table kvstore.Table, key []byte) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRow(t.ctx, `SELECT value FROM runes_kv WHERE tbl = $1 AND key = $2`, int16(table), key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "postgres get")
	}
	return value, nil
}

func (t *Tx) Put(table kvstore.Table, key, value []byte) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO runes_kv (tbl, key, value) VALUES ($1, $2, $3) ON CONFLICT (tbl, key) DO UPDATE SET value = EXCLUDED.value`,
		int16(table), key, value,
	)
	return errors.Wrap(err, "postgres put")
}

func (t *Tx) Delete(table kvstore.Table, key []byte) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM runes_kv WHERE tbl = $1 AND key = $2`, int16(table), key)
	return errors.Wrap(err, "postgres delete")
}

func (t *Tx) ForEach(table kvstore.Table, prefix []byte, fn func(key, value []byte) error) error {
	// a nil slice is sent as NULL, which matches no key
	if prefix == nil {
		prefix = []byte{}
	}
	var rows pgx.Rows
	var err error
	if end := kvstore.PrefixEnd(prefix); end != nil {
		rows, err = t.tx.Query(t.ctx,
			`SELECT key, value FROM runes_kv WHERE tbl = $1 AND key >= $2 AND key < $3 ORDER BY key`,
			int16(table), prefix, end,
		)
	} else {
		rows, err = t.tx.Query(t.ctx,
			`SELECT key, value FROM runes_kv WHERE tbl = $1 AND key >= $2 ORDER BY key`,
			int16(table), prefix,
		)
	}
	if err != nil {
		return errors.Wrap(err, "postgres scan")
	}
	defer rows.Close()

	// rows are buffered so fn may issue statements on the same transaction
	type kv struct{ key, value []byte }
	var entries []kv
	for rows.Next() {
		var e kv
		if err := rows.Scan(&e.key, &e.value); err != nil {
			return errors.Wrap(err, "postgres scan row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "postgres scan rows")
	}
	rows.Close()

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) Commit() error {
	return errors.Wrap(t.tx.Commit(t.ctx), "can't commit postgres transaction")
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback(t.ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return errors.Wrap(err, "can't rollback postgres transaction")
}
