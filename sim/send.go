package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrCausality is returned by Receive when a remote message is due before
// the receiving partition's clock.
var ErrCausality = errors.New("remote message arrived in the past")

// checkDelay panics unless delay is finite, non-negative and does not
// overflow the clock.
func (p *Partition) checkDelay(m *Message, op string, delay Time) {
	if delay < 0 || delay >= MaxTime {
		usagef(m, op, "delay %d out of range", delay)
	}
	if now := p.Now(); now > MaxTime-delay {
		usagef(m, op, "delay %d overflows clock at %d", delay, now)
	}
}

// stamp assigns delivery time and natural order and marks m Sent.
func (p *Partition) stamp(m *Message, op string, delay Time) {
	m.deliveryTime = p.Now() + delay
	m.naturalOrder = p.nextNaturalOrder()
	m.scheduled = true
	m.transition(op, StateSent)
}

// Send hands m to the scheduler for delivery at Now()+delay. m must be
// Active; ownership passes to the scheduler.
func (p *Partition) Send(m *Message, delay Time) {
	if m == nil {
		usagef(nil, "Partition.Send", "nil message")
	}
	p.checkDelay(m, "Partition.Send", delay)
	p.stamp(m, "Partition.Send", delay)
	if p.observer != nil {
		p.observer.OnSend(m, p.id)
	}
	p.sched.Insert(m, delay)
}

// SendRemote queues m for delivery on partition dest at Now()+delay. The
// message stays in an outbox until FlushRemote serializes it. Sending to the
// partition itself is a local Send.
func (p *Partition) SendRemote(m *Message, dest int32, delay Time) {
	if dest == p.id {
		p.Send(m, delay)
		return
	}
	if m == nil {
		usagef(nil, "Partition.SendRemote", "nil message")
	}
	p.checkDelay(m, "Partition.SendRemote", delay)
	p.stamp(m, "Partition.SendRemote", delay)
	q := p.outbox[dest]
	if q == nil {
		q = &Queue{}
		p.outbox[dest] = q
	}
	q.Enqueue(m)
	if p.observer != nil {
		p.observer.OnSend(m, dest)
	}
}

// Deliver hands a Sent message to its consumer, making it Active again.
// Schedulers and transports call it exactly once per Send.
func (m *Message) Deliver() {
	m.transition("Message.Deliver", StateActive)
	m.scheduled = false
}

// PendingRemote returns the number of messages waiting in outboxes and the
// earliest of their delivery times.
func (p *Partition) PendingRemote() (int, Time) {
	n, earliest := 0, MaxTime
	for _, q := range p.outbox {
		if t, ok := q.Earliest(); ok {
			earliest = min(earliest, t)
		}
		n += q.Len()
	}
	return n, earliest
}

// FlushRemote serializes every outbox into one frame per destination and
// passes it to send. Serialized messages are freed.
func (p *Partition) FlushRemote(send func(dest int32, frame []byte) error) error {
	for _, dest := range p.outboxDestinations() {
		q := p.outbox[dest]
		if q.Len() == 0 {
			continue
		}
		n := q.Len()
		head := q.DequeueAll()
		for m := head; m != nil; m = m.next {
			m.Deliver()
		}
		frame := p.MarshalList(head)
		logrus.Debugf("partition %d: flushing %d messages (%d bytes) to partition %d", p.id, n, len(frame), dest)
		if err := send(dest, frame); err != nil {
			return fmt.Errorf("flushing to partition %d: %w", dest, err)
		}
	}
	return nil
}

// Receive decodes a frame produced by FlushRemote and schedules each message
// at the delivery time its sender stamped.
func (p *Partition) Receive(frame []byte) (int, error) {
	head, _, err := p.UnmarshalList(frame)
	if err != nil {
		return 0, fmt.Errorf("partition %d receiving: %w", p.id, err)
	}
	now := p.Now()
	for m := head; m != nil; m = m.next {
		if m.deliveryTime < now {
			p.FreeList(head)
			return 0, fmt.Errorf("partition %d receiving message due at %v, now %v: %w", p.id, m.deliveryTime, now, ErrCausality)
		}
	}
	n := 0
	for m := head; m != nil; {
		next := m.next
		m.next = nil
		delay := m.deliveryTime - now
		m.naturalOrder = p.nextNaturalOrder()
		m.scheduled = true
		m.transition("Partition.Receive", StateSent)
		p.sched.Insert(m, delay)
		n++
		m = next
	}
	return n, nil
}

// Inbox returns the queue worker goroutines use to hand messages to p.
// It is the only part of a partition that may be touched from another
// goroutine.
func (p *Partition) Inbox() *SyncQueue { return p.inbox }

// DrainInbox sends every message waiting in the inbox, each at the delivery
// time its producer requested or now if that has passed. Detached messages
// carrying a packet get their sequence number and creation time here, since
// no partition counter was reachable when the packet was allocated. It
// returns the number of messages drained.
func (p *Partition) DrainInbox() int {
	head := p.inbox.DequeueAll()
	now := p.Now()
	n := 0
	for m := head; m != nil; {
		next := m.next
		m.next = nil
		if m.detached && m.payload != nil && m.sequence == 0 {
			m.sequence = p.nextSequence()
			m.creationTime = now
		}
		p.Send(m, max(m.deliveryTime-now, 0))
		n++
		m = next
	}
	return n
}
