package extsort

import "sync"

// Queue is an unbounded, closable FIFO shared by every stage of a job. It is
// the only synchronization point between sort workers, merge workers and the
// coordinator.
type Queue[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	buffer   []T
	closed   bool
}

// NewQueue returns an open, empty queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Put appends value to the tail of the queue and wakes one waiting consumer.
// It returns false and drops value when the queue has been closed or
// cancelled.
func (q *Queue[T]) Put(value T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.buffer = append(q.buffer, value)
	q.nonEmpty.Signal()

	return true
}

// Take blocks until an item is available or the queue is closed. It returns
// the head of the queue, or the zero value and false once the queue is closed
// and drained.
func (q *Queue[T]) Take() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buffer) == 0 && !q.closed {
		q.nonEmpty.Wait()
	}

	var value T
	if len(q.buffer) == 0 {
		return value, false
	}

	value = q.buffer[0]
	var zero T
	q.buffer[0] = zero
	q.buffer = q.buffer[1:]

	return value, true
}

// Close stops the queue from accepting new items. Buffered items can still be
// taken.
func (q *Queue[T]) Close() {
	q.close(false)
}

// Cancel closes the queue and discards every buffered item.
func (q *Queue[T]) Cancel() {
	q.close(true)
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Closed reports whether Close or Cancel has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) close(clear bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true

	if clear {
		q.buffer = nil
	}

	q.nonEmpty.Broadcast()
}
