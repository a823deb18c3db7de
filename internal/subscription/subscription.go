// Package subscription forwards a stream of values from a producer goroutine to a client channel.
package subscription

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
)

// SubscriptionBufferSize is the number of values a producer can send ahead of the client.
var SubscriptionBufferSize = 8

// Subscription forwards values sent by a producer to the client channel, in order.
//
// The stream ends either when the producer calls Close, after every value sent so far has been
// delivered, or when the client calls Unsubscribe, dropping whatever is still buffered.
// Done is closed in both cases.
type Subscription[T any] struct {
	channel chan<- T
	in      chan T
	err     chan error

	quitOnce  sync.Once
	closeOnce sync.Once
	quit      chan struct{}
	closing   chan struct{}
	quitDone  chan struct{}
}

func NewSubscription[T any](channel chan<- T) *Subscription[T] {
	subscription := &Subscription[T]{
		channel:  channel,
		in:       make(chan T, SubscriptionBufferSize),
		err:      make(chan error, SubscriptionBufferSize),
		quit:     make(chan struct{}),
		closing:  make(chan struct{}),
		quitDone: make(chan struct{}),
	}
	go subscription.run()
	return subscription
}

func (s *Subscription[T]) Unsubscribe() {
	_ = s.UnsubscribeWithContext(context.Background())
}

// UnsubscribeWithContext stops forwarding and waits for the forwarding loop to exit.
func (s *Subscription[T]) UnsubscribeWithContext(ctx context.Context) (err error) {
	s.quitOnce.Do(func() {
		select {
		case s.quit <- struct{}{}:
			<-s.quitDone
		case <-s.quitDone:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return errors.WithStack(err)
}

// Close ends the stream from the producer side. Send must not be called afterwards.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

// Client returns a client subscription for this subscription.
func (s *Subscription[T]) Client() *ClientSubscription[T] {
	return &ClientSubscription[T]{
		subscription: s,
	}
}

// Err returns the error channel of the subscription.
func (s *Subscription[T]) Err() <-chan error {
	return s.err
}

// Done returns the done channel of the subscription
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.quitDone
}

// IsClosed returns status of the subscription
func (s *Subscription[T]) IsClosed() bool {
	select {
	case <-s.quitDone:
		return true
	default:
		return false
	}
}

// Send queues a value for the client. It fails once the stream has ended.
func (s *Subscription[T]) Send(ctx context.Context, value T) error {
	select {
	case s.in <- value:
	case <-s.quitDone:
		return errors.Wrap(errs.InternalError, "subscription is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	return nil
}

// SendError sends an error to the subscription error channel. If the subscription is closed, it returns an error.
func (s *Subscription[T]) SendError(ctx context.Context, err error) error {
	select {
	case s.err <- err:
	case <-s.quitDone:
		return errors.Wrap(errs.InternalError, "subscription is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	return nil
}

func (s *Subscription[T]) run() {
	defer close(s.quitDone)

	for {
		select {
		case <-s.quit:
			return
		case value := <-s.in:
			if !s.forward(value) {
				return
			}
		case <-s.closing:
			// flush what the producer sent before closing
			for {
				select {
				case value := <-s.in:
					if !s.forward(value) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// forward returns false when the client unsubscribed while the value was pending.
func (s *Subscription[T]) forward(value T) bool {
	select {
	case s.channel <- value:
		return true
	case <-s.quit:
		return false
	}
}
