package kv

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
)

// undo journal entry layout, keyed by height(8) | sequence(4):
//
//	table(1) | present(1) | uvarint key length | key | previous value

type undoEntry struct {
	table   kvstore.Table
	key     []byte
	present bool
	prev    []byte
}

func encodeUndoEntry(e undoEntry) []byte {
	buf := make([]byte, 0, 2+binary.MaxVarintLen64+len(e.key)+len(e.prev))
	present := byte(0)
	if e.present {
		present = 1
	}
	buf = append(buf, byte(e.table), present)
	buf = binary.AppendUvarint(buf, uint64(len(e.key)))
	buf = append(buf, e.key...)
	return append(buf, e.prev...)
}

func decodeUndoEntry(data []byte) (undoEntry, error) {
	if len(data) < 3 {
		return undoEntry{}, errors.Wrap(errs.InternalError, "undo entry too short")
	}
	e := undoEntry{table: kvstore.Table(data[0]), present: data[1] == 1}
	keyLength, n := binary.Uvarint(data[2:])
	if n <= 0 || uint64(len(data)-2-n) < keyLength {
		return undoEntry{}, errors.Wrap(errs.InternalError, "invalid undo entry key length")
	}
	offset := 2 + n
	e.key = data[offset : offset+int(keyLength)]
	e.prev = data[offset+int(keyLength):]
	return e, nil
}

func (r *RepositoryWithTx) StartBlock(height uint64) {
	r.journaling = true
	r.height = height
	r.sequence = 0
	clear(r.journaled)
}

// journal records the current value of table/key before its first write in the block.
func (r *RepositoryWithTx) journal(table kvstore.Table, key []byte) error {
	if !r.journaling {
		return nil
	}
	id := string(append([]byte{byte(table)}, key...))
	if _, ok := r.journaled[id]; ok {
		return nil
	}

	entry := undoEntry{table: table, key: key}
	prev, err := r.tx.Get(table, key)
	switch {
	case err == nil:
		entry.present = true
		entry.prev = prev
	case !errors.Is(err, errs.NotFound):
		return errors.Wrap(err, "failed to read value to journal")
	}

	journalKey := binary.BigEndian.AppendUint32(heightKey(r.height), r.sequence)
	if err := r.tx.Put(TableUndoJournal, journalKey, encodeUndoEntry(entry)); err != nil {
		return errors.Wrap(err, "failed to write undo journal")
	}
	r.sequence++
	r.journaled[id] = struct{}{}
	return nil
}

func (r *RepositoryWithTx) put(table kvstore.Table, key, value []byte) error {
	if err := r.journal(table, key); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(r.tx.Put(table, key, value))
}

func (r *RepositoryWithTx) delete(table kvstore.Table, key []byte) error {
	if err := r.journal(table, key); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(r.tx.Delete(table, key))
}

func (r *RepositoryWithTx) RevertBlocksSince(_ context.Context, height uint64) (uint64, error) {
	value, err := r.tx.Get(TableIndexerState, keyLatestHeight)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to get latest height")
	}
	latest := binary.BigEndian.Uint64(value)

	var reverted uint64
	for h := latest; h >= height; h-- {
		if err := r.revertBlock(h); err != nil {
			return reverted, errors.Wrapf(err, "failed to revert block %d", h)
		}
		reverted++
		if h == 0 {
			break
		}
	}
	return reverted, nil
}

func (r *RepositoryWithTx) revertBlock(height uint64) error {
	var (
		keys    [][]byte
		entries []undoEntry
	)
	if err := r.tx.ForEach(TableUndoJournal, heightKey(height), func(key, value []byte) error {
		entry, err := decodeUndoEntry(value)
		if err != nil {
			return errors.WithStack(err)
		}
		keys = append(keys, key)
		entries = append(entries, entry)
		return nil
	}); err != nil {
		return errors.Wrap(err, "failed to read undo journal")
	}
	if len(entries) == 0 {
		return errors.Wrapf(errs.Unsupported, "no undo journal for block %d, it is older than the undo retention", height)
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		if e.present {
			err = r.tx.Put(e.table, e.key, e.prev)
		} else {
			err = r.tx.Delete(e.table, e.key)
		}
		if err != nil {
			return errors.Wrap(err, "failed to apply undo entry")
		}
	}
	for _, key := range keys {
		if err := r.tx.Delete(TableUndoJournal, key); err != nil {
			return errors.Wrap(err, "failed to delete undo journal")
		}
	}
	return nil
}

func (r *RepositoryWithTx) PruneUndoJournal(_ context.Context, height uint64) error {
	var keys [][]byte
	err := r.tx.ForEach(TableUndoJournal, nil, func(key, _ []byte) error {
		if binary.BigEndian.Uint64(key) >= height {
			return errStopIteration
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return errors.Wrap(err, "failed to scan undo journal")
	}
	for _, key := range keys {
		if err := r.tx.Delete(TableUndoJournal, key); err != nil {
			return errors.Wrap(err, "failed to delete undo journal")
		}
	}
	return nil
}
