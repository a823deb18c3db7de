package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
)

// errStopIteration ends a ForEach early.
var errStopIteration = errors.New("stop iteration")

// AddPendingEvents appends a batch to the outbox. Outbox writes are not journaled:
// a reverted block keeps its batch, the consumer has to see it before the reorg.
func (r *RepositoryWithTx) AddPendingEvents(_ context.Context, events []event.Event) error {
	sequence := uint64(0)
	value, err := r.tx.Get(TableIndexerState, keyOutboxSeq)
	switch {
	case err == nil:
		if len(value) != 8 {
			return errors.Wrapf(errs.InternalError, "invalid outbox sequence length %d", len(value))
		}
		sequence = binary.BigEndian.Uint64(value)
	case !errors.Is(err, errs.NotFound):
		return errors.Wrap(err, "failed to get outbox sequence")
	}

	data, err := json.Marshal(events)
	if err != nil {
		return errors.Wrap(err, "failed to marshal events")
	}
	if err := r.tx.Put(TablePendingEvents, heightKey(sequence), data); err != nil {
		return errors.Wrap(err, "failed to put pending events")
	}
	return errors.Wrap(r.tx.Put(TableIndexerState, keyOutboxSeq, heightKey(sequence+1)), "failed to put outbox sequence")
}

// GetPendingEvents returns the outbox, oldest batch first.
func (r *Repository) GetPendingEvents(ctx context.Context) ([][]event.Event, error) {
	return view(ctx, r.db, func(rd reader) ([][]event.Event, error) {
		var batches [][]event.Event
		err := rd.tx.ForEach(TablePendingEvents, nil, func(key, value []byte) error {
			var events []event.Event
			if err := json.Unmarshal(value, &events); err != nil {
				return errors.Wrapf(err, "failed to unmarshal pending events %x", key)
			}
			batches = append(batches, events)
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to iterate pending events")
		}
		return batches, nil
	})
}

// AckPendingEvents removes the oldest batch of the outbox.
func (r *Repository) AckPendingEvents(ctx context.Context) error {
	err := kvstore.Update(ctx, r.db, func(tx kvstore.Tx) error {
		var oldest []byte
		err := tx.ForEach(TablePendingEvents, nil, func(key, _ []byte) error {
			oldest = key
			return errStopIteration
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			return errors.WithStack(err)
		}
		if oldest == nil {
			return errors.Wrap(errs.NotFound, "outbox is empty")
		}
		return tx.Delete(TablePendingEvents, oldest)
	})
	return errors.Wrap(err, "failed to ack pending events")
}
