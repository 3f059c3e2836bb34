package history

import (
	"context"
	"errors"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/log"
)

// ErrQueueClosed is returned by Submit after the queue's Run loop exited.
var ErrQueueClosed = errors.New("history queue closed")

type queueItem struct {
	event  *TxEvent
	result chan error
}

// Queue serializes history events through a single consumer goroutine so
// the reconciler never sees concurrent mutations. Submitters block until
// their event has been fully applied and get its outcome back.
type Queue struct {
	rec   *Reconciler
	items chan queueItem
	done  chan struct{}
}

// NewQueue creates a queue feeding the given reconciler. buffer bounds how
// many events may be in flight before Submit blocks.
func NewQueue(rec *Reconciler, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		rec:   rec,
		items: make(chan queueItem, buffer),
		done:  make(chan struct{}),
	}
}

// Run consumes events until ctx is cancelled. It is the only goroutine that
// touches the reconciler.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			err := q.rec.ProcessEvent(item.event)
			if err != nil {
				// Validation rejects nil events; don't dereference one here.
				evt := log.Sync.Error().Err(err)
				if item.event != nil {
					evt = evt.Str("tx_id", item.event.TxID.String())
				}
				evt.Msg("history event rejected")
			}
			item.result <- err
		}
	}
}

// Submit enqueues an event and waits for it to be processed. The returned
// error is the reconciler's verdict for this event.
func (q *Queue) Submit(ctx context.Context, ev *TxEvent) error {
	item := queueItem{event: ev, result: make(chan error, 1)}
	select {
	case q.items <- item:
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-item.result:
		return err
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
