package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// DefaultBufferSize is the capacity of the event channel when none is configured.
const DefaultBufferSize = 1024

// ErrConsumerStopped is returned by Emit once the consumer has given up.
var ErrConsumerStopped = errors.New("event consumer stopped")

// Emitter delivers events to a single consumer through a bounded channel.
// Telemetry events are dropped when the channel is full; ledger events wait for room,
// for the context to be done or for the consumer to fail. A nil *Emitter discards everything.
type Emitter struct {
	ch        chan Event
	dropped   atomic.Uint64
	closeOnce sync.Once

	failed   chan struct{}
	failOnce sync.Once
	failErr  error
}

func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Emitter{
		ch:     make(chan Event, bufferSize),
		failed: make(chan struct{}),
	}
}

// Events returns the channel to consume. It is closed by Close.
func (e *Emitter) Events() <-chan Event {
	if e == nil {
		return nil
	}
	return e.ch
}

// Emit sends ev according to its class. Only ledger events can fail, when ctx is done first.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if e == nil {
		return nil
	}
	if ev.Type.Class() == ClassTelemetry {
		select {
		case e.ch <- ev:
		default:
			e.dropped.Add(1)
		}
		return nil
	}
	select {
	case <-e.failed:
		return errors.Wrapf(e.failErr, "can't deliver %s event", ev.Type)
	default:
	}
	select {
	case e.ch <- ev:
		return nil
	case <-e.failed:
		return errors.Wrapf(e.failErr, "can't deliver %s event", ev.Type)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "can't deliver %s event", ev.Type)
	}
}

// Fail is called by the consumer when it stops for good. Every later ledger Emit returns
// an error wrapping ErrConsumerStopped instead of waiting for room.
func (e *Emitter) Fail(cause error) {
	if e == nil {
		return
	}
	e.failOnce.Do(func() {
		e.failErr = ErrConsumerStopped
		if cause != nil {
			e.failErr = errors.WithSecondaryError(errors.Wrap(ErrConsumerStopped, cause.Error()), cause)
		}
		close(e.failed)
	})
}

// Dropped returns the number of telemetry events discarded so far.
func (e *Emitter) Dropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Close closes the event channel. Emit must not be called afterwards.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.ch)
	})
}
