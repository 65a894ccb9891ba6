package sim

import (
	"errors"
	"testing"
)

// fakeScheduler records inserts and exposes a settable clock. Tests inside
// package sim cannot import sim/scheduler without an import cycle.
type fakeScheduler struct {
	now      Time
	inserted []*Message
	delays   []Time
}

func (s *fakeScheduler) Insert(m *Message, delay Time) {
	s.inserted = append(s.inserted, m)
	s.delays = append(s.delays, delay)
}

func (s *fakeScheduler) Now() Time { return s.now }

// deliverAll hands every inserted message back to the test, Active.
func (s *fakeScheduler) deliverAll() []*Message {
	out := s.inserted
	for _, m := range out {
		m.Deliver()
	}
	s.inserted, s.delays = nil, nil
	return out
}

func newTestPartition(t *testing.T) (*Partition, *fakeScheduler) {
	t.Helper()
	return newTestPartitionWith(t, 0, DefaultConfig())
}

func newTestPartitionWith(t *testing.T, id int32, cfg Config) (*Partition, *fakeScheduler) {
	t.Helper()
	s := &fakeScheduler{}
	return NewPartition(id, cfg, s), s
}

// newPacket allocates a message with a packet of size bytes filled with
// their index.
func newPacket(t *testing.T, p *Partition, size int) *Message {
	t.Helper()
	m := p.New(3, 100, 1)
	if err := m.AllocPacket(size, 100); err != nil {
		t.Fatalf("AllocPacket(%d): %v", size, err)
	}
	for i, b := 0, m.Packet(); i < len(b); i++ {
		b[i] = byte(i)
	}
	return m
}

// usagePanic runs f and returns the UsageError it panicked with, or nil.
func usagePanic(f func()) (ue *UsageError) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				errors.As(err, &ue)
			}
		}
	}()
	f()
	return nil
}
