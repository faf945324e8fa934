// Package bus moves invocation envelopes between the daemon and its
// transports.
package bus

import (
	"context"
	"sync/atomic"

	"calc/internal/errors"
	"calc/internal/host"
)

var (
	ErrQueueFull   = errors.New("request queue full")
	ErrQueueClosed = errors.New("request queue closed")
)

// Envelope is the unit passed through the in-memory queue. Done, when set,
// receives the response once the request has been handled.
type Envelope struct {
	Request host.Request
	Done    func(host.Response)
}

// Finish hands resp to Done if the envelope has one.
func (e Envelope) Finish(resp host.Response) {
	if e.Done != nil {
		e.Done(resp)
	}
}

// Queue is a bounded request queue with a single consumer.
type Queue struct {
	ch     chan Envelope
	closed atomic.Bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Envelope, capacity)}
}

// Len reports how many envelopes are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// TryPublish enqueues an envelope without blocking.
func (q *Queue) TryPublish(e Envelope) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish enqueues an envelope, waiting for room until ctx is done.
func (q *Queue) Publish(ctx context.Context, e Envelope) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting new envelopes. Waiting envelopes are
// still delivered by Run.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Run consumes envelopes until the context is done or the queue is closed
// and drained.
func (q *Queue) Run(ctx context.Context, handler func(Envelope)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
