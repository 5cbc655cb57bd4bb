// Package queue provides a blocking FIFO work queue with a close/drain protocol
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/jzx17/drainpool/pkg/types"
)

// Option configures a WorkQueue
type Option func(*options)

type options struct {
	capacity int
	clock    types.Clock
}

// WithCapacity bounds the queue to capacity pending items. Add blocks while a
// bounded queue is full. A capacity <= 0 means unbounded, which is the default.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithClock sets the clock used by TakeWithTimeout
func WithClock(clock types.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Stats holds a snapshot of queue counters
type Stats struct {
	// Added is the number of items accepted by Add or TryAdd
	Added int64
	// Taken is the number of items handed out to takers
	Taken int64
	// Pending is the number of items waiting in the queue
	Pending int
	// Capacity is the configured bound, 0 when unbounded
	Capacity int
	// Closed reports whether Close has been called
	Closed bool
}

// WorkQueue is a thread-safe FIFO queue. Any number of producers may Add and
// any number of consumers may Take concurrently. Every added item is handed
// to exactly one taker.
//
// Once Close has been called, Add fails with types.ErrQueueClosed while Take
// keeps returning the remaining items; when the queue is both closed and
// empty it is drained, and it stays drained forever.
type WorkQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []T
	capacity int
	closed   bool

	added int64
	taken int64

	clock types.Clock
}

// New creates a new work queue
func New[T any](opts ...Option) *WorkQueue[T] {
	o := &options{clock: types.NewRealClock()}
	for _, opt := range opts {
		opt(o)
	}

	capacity := o.capacity
	if capacity < 0 {
		capacity = 0
	}

	q := &WorkQueue[T]{
		capacity: capacity,
		clock:    o.clock,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Add appends item at the tail of the queue and wakes at most one blocked
// taker. On a bounded queue Add blocks until there is room; if the queue is
// closed while waiting it returns types.ErrQueueClosed without inserting.
func (q *WorkQueue[T]) Add(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.full() {
		q.notFull.Wait()
	}
	if q.closed {
		return types.ErrQueueClosed
	}

	q.push(item)
	return nil
}

// TryAdd appends item without blocking. It returns types.ErrQueueFull when a
// bounded queue has no room.
func (q *WorkQueue[T]) TryAdd(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return types.ErrQueueClosed
	}
	if q.full() {
		return types.ErrQueueFull
	}

	q.push(item)
	return nil
}

// Take removes and returns the item at the head of the queue, blocking while
// the queue is empty and open. It returns false once the queue is closed and
// empty; after that every call returns false immediately.
func (q *WorkQueue[T]) Take() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	return q.pop()
}

// TakeWithTimeout is Take bounded by timeout. It returns types.ErrTimeout if
// no item arrived in time, in which case nothing was consumed, and
// types.ErrQueueDrained once the queue is closed and empty.
func (q *WorkQueue[T]) TakeWithTimeout(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return q.tryTake(types.ErrTimeout)
	}

	timer := q.clock.NewTimer(timeout)
	defer timer.Stop()

	return q.takeUntil(func(done <-chan struct{}) bool {
		select {
		case <-timer.C():
			return true
		case <-done:
			return false
		}
	}, types.ErrTimeout)
}

// TakeContext is Take bounded by ctx. It returns ctx.Err() if ctx ends before
// an item arrives and types.ErrQueueDrained once the queue is closed and empty.
func (q *WorkQueue[T]) TakeContext(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		return q.tryTake(err)
	}

	item, err := q.takeUntil(func(done <-chan struct{}) bool {
		select {
		case <-ctx.Done():
			return true
		case <-done:
			return false
		}
	}, context.Canceled)
	if err == context.Canceled {
		err = ctx.Err()
	}
	return item, err
}

// Close marks the queue closed and wakes every blocked taker and adder.
// Calling Close more than once has no further effect.
func (q *WorkQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of pending items
func (q *WorkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity of a bounded queue, or 0 when unbounded
func (q *WorkQueue[T]) Cap() int {
	return q.capacity
}

// IsClosed reports whether Close has been called
func (q *WorkQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// IsDrained reports whether the queue is closed and empty
func (q *WorkQueue[T]) IsDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Stats returns a snapshot of the queue counters
func (q *WorkQueue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Added:    q.added,
		Taken:    q.taken,
		Pending:  len(q.items),
		Capacity: q.capacity,
		Closed:   q.closed,
	}
}

// takeUntil blocks like Take until an item arrives, the queue drains, or
// expired reports true. expired runs on its own goroutine and must return
// false as soon as done is closed.
func (q *WorkQueue[T]) takeUntil(expired func(done <-chan struct{}) bool, expiredErr error) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 && !q.closed {
		timedOut := false
		done := make(chan struct{})
		defer close(done)

		go func() {
			if !expired(done) {
				return
			}
			q.mu.Lock()
			timedOut = true
			q.mu.Unlock()
			q.notEmpty.Broadcast()
		}()

		for len(q.items) == 0 && !q.closed && !timedOut {
			q.notEmpty.Wait()
		}
	}

	if len(q.items) == 0 && !q.closed {
		var zero T
		return zero, expiredErr
	}
	return q.popOrDrained()
}

// tryTake takes an item if one is immediately available
func (q *WorkQueue[T]) tryTake(emptyErr error) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 && !q.closed {
		var zero T
		return zero, emptyErr
	}
	return q.popOrDrained()
}

func (q *WorkQueue[T]) popOrDrained() (T, error) {
	item, ok := q.pop()
	if !ok {
		return item, types.ErrQueueDrained
	}
	return item, nil
}

// full reports whether a bounded queue is at capacity. Callers hold q.mu.
func (q *WorkQueue[T]) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// push appends item. Callers hold q.mu and have checked closed and full.
func (q *WorkQueue[T]) push(item T) {
	q.items = append(q.items, item)
	q.added++
	q.notEmpty.Signal()
}

// pop removes the head item. Callers hold q.mu.
func (q *WorkQueue[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// drop the queue's reference so ownership passes to the taker alone
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	q.taken++

	if q.capacity > 0 {
		q.notFull.Signal()
	}
	return item, true
}
