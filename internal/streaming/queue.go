package streaming

import (
	"errors"
	"slices"
	"sync"
)

var (
	// ErrQueueClosed is returned by Push and Pop once the queue is closed.
	ErrQueueClosed = errors.New("session queue closed")

	// ErrAlreadyQueued is returned when pushing a session that is still queued.
	ErrAlreadyQueued = errors.New("session already queued")
)

// Queue is the FIFO of sessions waiting for the scheduler. Admission
// listeners and the scheduler append at the tail; only the scheduler pops the
// head. Pop blocks on a condition variable while the queue is empty.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Session
	closed bool
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends s at the tail and wakes the scheduler.
func (q *Queue) Push(s *Session) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if slices.Contains(q.items, s) {
		return ErrAlreadyQueued
	}
	q.items = append(q.items, s)
	q.cond.Signal()
	return nil
}

// Pop removes and returns the head session, blocking until one is available.
// After Close it returns ErrQueueClosed even if sessions remain.
func (q *Queue) Pop() (*Session, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, ErrQueueClosed
	}
	s := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return s, nil
}

// Len returns the number of queued sessions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue, wakes a blocked Pop and hands back the sessions
// that were still waiting so the caller can release them. Calling Close
// again returns nil.
func (q *Queue) Close() []*Session {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	q.cond.Broadcast()
	return rest
}
