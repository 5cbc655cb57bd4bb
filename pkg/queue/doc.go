/*
Package queue implements WorkQueue, the shared channel between producers and
the workers of a pool.

# Semantics

  - Add inserts at the tail and wakes at most one blocked taker.
  - Take removes from the head, blocking while the queue is empty and open.
  - Close stops further insertion and wakes every blocked taker.
  - A queue that is closed and empty is drained. Take returns false on a
    drained queue without blocking, every time.

Items added by a single producer are taken in insertion order. Items from
concurrent producers interleave in an unspecified order, but every item is
handed to exactly one taker.

# Bounded queues

By default the queue is unbounded. WithCapacity turns Add into a blocking
call that waits for room, which applies backpressure to fast producers;
TryAdd fails fast with types.ErrQueueFull instead.

# Timed takes

TakeWithTimeout and TakeContext never consume an item when they give up.
They report types.ErrTimeout or the context error, and types.ErrQueueDrained
once nothing more can arrive:

	q := queue.New[string]()
	go func() {
		defer q.Close()
		for _, s := range input {
			_ = q.Add(s)
		}
	}()

	for {
		s, err := q.TakeWithTimeout(time.Second)
		switch {
		case errors.Is(err, types.ErrQueueDrained):
			return
		case errors.Is(err, types.ErrTimeout):
			continue
		}
		handle(s)
	}
*/
package queue
