// Implements the delivery queues that hold messages awaiting dispatch.
// Messages are linked through their own next field, so enqueuing a chain
// costs one walk of the chain and no allocation.

package sim

import (
	"fmt"
	"strings"
	"sync"
)

// Queue is a FIFO of messages that also tracks the earliest delivery time of
// its contents. It does not sort: messages leave in submission order.
// The zero value is an empty queue. Not safe for concurrent use.
type Queue struct {
	head, tail *Message
	n          int
	earliest   Time
}

// Enqueue appends a message or a pre-linked chain at the tail.
func (q *Queue) Enqueue(m *Message) {
	if m == nil {
		panic("Queue.Enqueue: message must not be nil")
	}
	if q.n == 0 {
		q.earliest = MaxTime
	}
	last := m
	for {
		q.n++
		q.earliest = min(q.earliest, last.deliveryTime)
		if last.next == nil {
			break
		}
		last = last.next
	}
	if q.tail == nil {
		q.head = m
	} else {
		q.tail.next = m
	}
	q.tail = last
}

// Dequeue removes and returns the head, or nil when the queue is empty.
// The earliest time is recomputed only when the head held it.
func (q *Queue) Dequeue() *Message {
	m := q.head
	if m == nil {
		return nil
	}
	q.head = m.next
	m.next = nil
	q.n--
	if q.head == nil {
		q.tail = nil
		q.earliest = MaxTime
		return m
	}
	if m.deliveryTime == q.earliest {
		q.rescan()
	}
	return m
}

// DequeueAll detaches the whole queue and returns it as a chain.
func (q *Queue) DequeueAll() *Message {
	head := q.head
	q.head, q.tail, q.n = nil, nil, 0
	q.earliest = MaxTime
	return head
}

func (q *Queue) rescan() {
	q.earliest = MaxTime
	for m := q.head; m != nil; m = m.next {
		q.earliest = min(q.earliest, m.deliveryTime)
	}
}

// Peek returns the head without removing it.
func (q *Queue) Peek() *Message { return q.head }

// Len returns the number of queued messages.
func (q *Queue) Len() int { return q.n }

// Earliest returns the smallest delivery time in the queue; ok is false when
// the queue is empty.
func (q *Queue) Earliest() (t Time, ok bool) {
	if q.n == 0 {
		return MaxTime, false
	}
	return q.earliest, true
}

func (q *Queue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for m := q.head; m != nil; m = m.next {
		sb.WriteString(fmt.Sprintf("%d@%d", m.naturalOrder, m.deliveryTime))
		if m.next != nil {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// SyncQueue is a Queue guarded by a mutex, used by worker goroutines to hand
// messages back to their partition. Ordering between producers is the order
// in which their Enqueue calls acquire the lock.
type SyncQueue struct {
	mu sync.Mutex
	q  Queue
}

func (s *SyncQueue) Enqueue(m *Message) {
	s.mu.Lock()
	s.q.Enqueue(m)
	s.mu.Unlock()
}

func (s *SyncQueue) Dequeue() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Dequeue()
}

func (s *SyncQueue) DequeueAll() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DequeueAll()
}

func (s *SyncQueue) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

func (s *SyncQueue) Earliest() (Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Earliest()
}
