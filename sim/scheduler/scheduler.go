// Package scheduler implements the time-ordered event list partitions
// deliver into. Events are kept in a binary heap keyed by delivery time,
// with ties broken by natural order so runs are deterministic.
package scheduler

import (
	"container/heap"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bfrggit/qualnet-up-sub002/sim"
)

// EventQueue implements heap.Interface and orders messages by delivery time,
// then by natural order.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []*sim.Message

func (eq EventQueue) Len() int { return len(eq) }
func (eq EventQueue) Less(i, j int) bool {
	ti, tj := eq[i].DeliveryTime(), eq[j].DeliveryTime()
	if ti != tj {
		return ti < tj
	}
	return eq[i].NaturalOrder() < eq[j].NaturalOrder()
}
func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(*sim.Message))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*eq = old[0 : n-1]
	return item
}

// Handler consumes a delivered message. It owns the message and must free,
// re-send or otherwise dispose of it.
type Handler func(m *sim.Message) error

// Scheduler holds one partition's clock and pending events.
type Scheduler struct {
	clock     sim.Time
	queue     EventQueue
	processed int64
}

// New returns an empty scheduler at time zero.
func New() *Scheduler {
	return &Scheduler{queue: make(EventQueue, 0)}
}

// Insert takes ownership of a Sent message. Its delivery time must already
// be stamped at Now()+delay.
func (s *Scheduler) Insert(m *sim.Message, delay sim.Time) {
	if m.State() != sim.StateSent {
		panic(fmt.Sprintf("Scheduler.Insert: message %v is not sent", m))
	}
	if m.DeliveryTime() != s.clock+delay {
		panic(fmt.Sprintf("Scheduler.Insert: message %v stamped for %v, expected %v", m, m.DeliveryTime(), s.clock+delay))
	}
	heap.Push(&s.queue, m)
}

// Now returns the current simulation time.
func (s *Scheduler) Now() sim.Time { return s.clock }

// Len returns the number of pending events.
func (s *Scheduler) Len() int { return len(s.queue) }

// Processed returns the number of events dispatched so far.
func (s *Scheduler) Processed() int64 { return s.processed }

// NextTime returns the delivery time of the earliest pending event.
func (s *Scheduler) NextTime() (sim.Time, bool) {
	if len(s.queue) == 0 {
		return sim.MaxTime, false
	}
	return s.queue[0].DeliveryTime(), true
}

// RunUntil dispatches, in order, every event due strictly before limit, then
// advances the clock to limit. It stops at the first handler error.
func (s *Scheduler) RunUntil(limit sim.Time, h Handler) (int, error) {
	n := 0
	for len(s.queue) > 0 && s.queue[0].DeliveryTime() < limit {
		// get the next event to be simulated
		m := heap.Pop(&s.queue).(*sim.Message)
		// advance the clock
		s.clock = m.DeliveryTime()
		logrus.Tracef("[t %v] dispatching %v", s.clock, m)
		m.Deliver()
		s.processed++
		n++
		if err := h(m); err != nil {
			return n, fmt.Errorf("handling %v at %v: %w", m, s.clock, err)
		}
	}
	if s.clock < limit {
		s.clock = limit
	}
	return n, nil
}

// Drain removes every pending event without dispatching it, delivering each
// so the caller can free it.
func (s *Scheduler) Drain() []*sim.Message {
	out := make([]*sim.Message, 0, len(s.queue))
	for len(s.queue) > 0 {
		m := heap.Pop(&s.queue).(*sim.Message)
		m.Deliver()
		out = append(out, m)
	}
	return out
}
