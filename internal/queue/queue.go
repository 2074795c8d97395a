package queue

import "github.com/airsched/go-airsched-server/internal/class"

// Queue is a bounded FIFO of samples for a single class. All operations are
// O(1); the zero value is not usable, use New. Not safe for concurrent use:
// the scheduler serializes access under its own mutex.
type Queue struct {
	buf   []class.Sample
	head  int
	count int
}

// New creates a queue with the given capacity (class.QueueCap in production).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = class.QueueCap
	}
	return &Queue{buf: make([]class.Sample, capacity)}
}

// Len returns the number of queued samples.
func (q *Queue) Len() int { return q.count }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// PushBack appends a sample; it reports false when the queue is full.
func (q *Queue) PushBack(s *class.Sample) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = *s
	q.count++
	return true
}

// PushFront re-inserts a sample at the head so FIFO order is preserved when
// an assembly pass has to hand one back. Reports false when full.
func (q *Queue) PushFront(s *class.Sample) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
	q.buf[q.head] = *s
	q.count++
	return true
}

// PopFront removes and returns the oldest sample; nil when empty.
func (q *Queue) PopFront() *class.Sample {
	if q.count == 0 {
		return nil
	}
	s := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return &s
}

// Front returns the oldest sample without removing it; nil when empty.
// The pointer is only valid until the next mutation.
func (q *Queue) Front() *class.Sample {
	if q.count == 0 {
		return nil
	}
	return &q.buf[q.head]
}
