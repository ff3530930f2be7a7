package shell

import (
	"context"
	"errors"
	"sync"
)

// errSessionGone is returned by acquire when the session a caller was
// waiting for died first.
var errSessionGone = errors.New("session gone")

// ticketQueue grants exclusive use of the session in strict arrival order.
// Unlike sync.Mutex it never lets a late arrival overtake a waiter.
type ticketQueue struct {
	mu      sync.Mutex
	owned   bool
	waiters []chan struct{}
}

// acquire blocks until the caller owns the session, ctx is done, or abort
// is closed. On success the caller must call release.
func (q *ticketQueue) acquire(ctx context.Context, abort <-chan struct{}) error {
	q.mu.Lock()
	if !q.owned {
		q.owned = true
		q.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	q.waiters = append(q.waiters, ticket)
	q.mu.Unlock()

	var err error
	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-abort:
		err = errSessionGone
	}

	q.mu.Lock()
	for i, w := range q.waiters {
		if w == ticket {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			q.mu.Unlock()
			return err
		}
	}
	q.mu.Unlock()

	// Ownership was handed over while giving up; pass it on.
	q.release()
	return err
}

// release hands ownership to the oldest waiter, or marks the queue idle.
func (q *ticketQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiters) == 0 {
		q.owned = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// pending returns the number of callers waiting behind the owner.
func (q *ticketQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// busy reports whether the session is owned.
func (q *ticketQueue) busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.owned
}
