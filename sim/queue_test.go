package sim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timed(p *Partition, t Time) *Message {
	m := p.New(1, 1, 1)
	m.SetDeliveryTime(t)
	return m
}

func TestQueue_FIFOWithEarliest(t *testing.T) {
	// GIVEN messages due at 5, 1, 3 enqueued in that order
	p, _ := newTestPartition(t)
	q := &Queue{}
	a, b, c := timed(p, 5), timed(p, 1), timed(p, 3)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	// THEN the earliest time is 1 but order is submission order
	e, ok := q.Earliest()
	assert.True(t, ok)
	assert.Equal(t, Time(1), e)
	assert.Equal(t, 3, q.Len())

	// WHEN dequeuing
	assert.Same(t, a, q.Dequeue())
	e, _ = q.Earliest()
	assert.Equal(t, Time(1), e)
	assert.Same(t, b, q.Dequeue())

	// THEN the earliest time is recomputed once the minimum leaves
	e, _ = q.Earliest()
	assert.Equal(t, Time(3), e)
	assert.Same(t, c, q.Dequeue())
	assert.Nil(t, q.Dequeue())
	_, ok = q.Earliest()
	assert.False(t, ok)
}

func TestQueue_EnqueueChain(t *testing.T) {
	p, _ := newTestPartition(t)
	q := &Queue{}
	q.Enqueue(timed(p, 9))
	q.Enqueue(Chain(timed(p, 4), timed(p, 7)))
	assert.Equal(t, 3, q.Len())
	e, _ := q.Earliest()
	assert.Equal(t, Time(4), e)
	assert.Equal(t, "[0@9 0@4 0@7]", q.String())

	head := q.DequeueAll()
	assert.Len(t, Unchain(head), 3)
	assert.Zero(t, q.Len())
	assert.Nil(t, q.Peek())
}

func TestQueue_EnqueueNil_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "Queue.Enqueue: message must not be nil", func() {
		(&Queue{}).Enqueue(nil)
	})
}

func TestSyncQueue_ConcurrentProducers(t *testing.T) {
	// GIVEN 8 producers each enqueuing 100 detached messages
	var sq SyncQueue
	var wg sync.WaitGroup
	const producers, each = 8, 100
	for w := 0; w < producers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				m := NewDetached(0, 1, 1, EventType(w))
				m.SetDeliveryTime(Time(w*each + i))
				sq.Enqueue(m)
			}
		}()
	}
	wg.Wait()

	// THEN nothing is lost and each producer's messages keep their order
	require.Equal(t, producers*each, sq.Len())
	e, ok := sq.Earliest()
	assert.True(t, ok)
	assert.Equal(t, Time(0), e)
	last := make(map[EventType]Time)
	n := 0
	for m := sq.Dequeue(); m != nil; m = sq.Dequeue() {
		if prev, seen := last[m.Event()]; seen {
			assert.Less(t, prev, m.DeliveryTime())
		}
		last[m.Event()] = m.DeliveryTime()
		n++
	}
	assert.Equal(t, producers*each, n)
	assert.Nil(t, sq.DequeueAll())
}
