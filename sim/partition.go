package sim

import (
	"fmt"
	"sort"
)

// Scheduler is the time-ordered event list a partition delivers into.
// Insert takes ownership of a Sent message and must eventually hand it to a
// consumer (after calling Deliver) at Now()+delay.
type Scheduler interface {
	Insert(m *Message, delay Time)
	Now() Time
}

// NewSchedulerFunc builds the default Scheduler when NewPartition is given
// nil. It is set by sim/scheduler's init() to break the import cycle.
var NewSchedulerFunc func() Scheduler

// Observer receives lifecycle notifications. It is called synchronously on
// the partition's goroutine.
type Observer interface {
	// OnSend is called after m has been stamped and handed off. dest equals
	// the sending partition for local delivery.
	OnSend(m *Message, dest int32)
	// OnFree is called before m's contents are released.
	OnFree(m *Message)
}

// Partition is one execution context of the simulation. It owns the free
// lists, the natural-order and sequence counters, and the outbound queues
// toward other partitions. All methods except Inbox().Enqueue must be called
// from the partition's own goroutine.
type Partition struct {
	id       int32
	cfg      Config
	pools    *pools
	sched    Scheduler
	observer Observer

	naturalOrder int64
	sequence     int64

	outbox map[int32]*Queue
	inbox  *SyncQueue
}

// NewPartition creates a partition delivering into sched.
// Panics if cfg is invalid or no scheduler is available.
func NewPartition(id int32, cfg Config, sched Scheduler) *Partition {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("NewPartition: invalid config: %v", err))
	}
	if sched == nil {
		if NewSchedulerFunc == nil {
			panic("NewPartition: no scheduler given and NewSchedulerFunc not registered (import sim/scheduler)")
		}
		sched = NewSchedulerFunc()
	}
	return &Partition{
		id:     id,
		cfg:    cfg,
		pools:  newPools(cfg),
		sched:  sched,
		outbox: make(map[int32]*Queue),
		inbox:  &SyncQueue{},
	}
}

// ID returns the partition id.
func (p *Partition) ID() int32 { return p.id }

// Config returns the allocator parameters.
func (p *Partition) Config() Config { return p.cfg }

// Scheduler returns the scheduler messages are delivered into.
func (p *Partition) Scheduler() Scheduler { return p.sched }

// Now returns the scheduler's current time.
func (p *Partition) Now() Time { return p.sched.Now() }

// SetObserver installs o, or removes the observer when o is nil.
func (p *Partition) SetObserver(o Observer) { p.observer = o }

// Stats returns a snapshot of the partition's pools.
func (p *Partition) Stats() AllocatorStats { return p.pools.stats() }

// New returns an Active message with every field defaulted, reusing the most
// recently freed message when one is pooled.
func (p *Partition) New(layer Layer, protocol Protocol, event EventType) *Message {
	m := p.pools.acquireEvent()
	if m == nil {
		m = &Message{}
	} else {
		m.transition("Partition.New", StateActive)
	}
	m.reset(p.id, p, layer, protocol, event)
	return m
}

// Duplicate returns a deep copy of src allocated from p. Payload and owned
// attachments are copied into fresh storage; the timer expiry and the
// detached marker take their defaults.
func (p *Partition) Duplicate(src *Message) (*Message, error) {
	src.mustBeLive("Partition.Duplicate")
	dst := p.New(src.layer, src.protocol, src.event)
	dst.originNode = src.originNode
	dst.instance = src.instance
	dst.naturalOrder = src.naturalOrder
	dst.sequence = src.sequence
	dst.originProtocol = src.originProtocol
	dst.deliveryTime = src.deliveryTime
	dst.eotTime = src.eotTime
	dst.scheduled = src.scheduled
	dst.creationTime = src.creationTime
	dst.virtualSize = src.virtualSize
	dst.headerProtocols = src.headerProtocols
	dst.headerSizes = src.headerSizes
	dst.numHeaders = src.numHeaders
	dst.bookkeeping = append(dst.bookkeeping, src.bookkeeping...)
	if src.spectrum != nil {
		s := *src.spectrum
		dst.spectrum = &s
	}
	if src.payload != nil {
		buf, pooled, err := acquirePayload(p.pools, len(src.payload))
		if err != nil {
			p.Free(dst)
			return nil, fmt.Errorf("duplicating payload: %w", err)
		}
		copy(buf, src.payload)
		dst.payload, dst.payloadPooled = buf, pooled
		dst.start = src.start
		dst.packetSize = src.packetSize
	}
	if err := CopyInfos(dst, src); err != nil {
		p.Free(dst)
		return nil, fmt.Errorf("duplicating attachments: %w", err)
	}
	return dst, nil
}

// Free releases m's payload and attachments and recycles m itself when the
// event pool has room. Freeing a sent, freed or deleted message panics.
func (p *Partition) Free(m *Message) {
	if m == nil {
		usagef(nil, "Partition.Free", "nil message")
	}
	if m.state != StateActive {
		usagef(m, "Partition.Free", "message is %s", m.state)
	}
	if p.observer != nil {
		p.observer.OnFree(m)
	}
	m.releaseContents()
	if !m.detached && m.owner == p && p.pools.releaseEvent(m) {
		m.transition("Partition.Free", StateFreed)
		return
	}
	m.transition("Partition.Free", StateDeleted)
}

// FreeList frees every message of a chain.
func (p *Partition) FreeList(head *Message) {
	for m := head; m != nil; {
		next := m.next
		m.next = nil
		p.Free(m)
		m = next
	}
}

// releaseContents returns the payload and attachments to the allocator that
// produced them.
func (m *Message) releaseContents() {
	a := m.alloc()
	releasePayload(a, m.payload, m.payloadPooled)
	m.payload, m.payloadPooled = nil, false
	m.start, m.packetSize = 0, 0
	for i := range m.infos {
		m.infos[i].release(a)
		m.infos[i] = infoRecord{}
	}
	m.infos = m.infos[:0]
	m.bookkeeping = m.bookkeeping[:0]
	m.next = nil
}

func (p *Partition) nextNaturalOrder() int64 {
	p.naturalOrder++
	return p.naturalOrder
}

func (p *Partition) nextSequence() int64 {
	p.sequence++
	return p.sequence
}

// outboxDestinations returns outbox keys in ascending order so frames are
// flushed deterministically.
func (p *Partition) outboxDestinations() []int32 {
	dests := make([]int32, 0, len(p.outbox))
	for d := range p.outbox {
		dests = append(dests, d)
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i] < dests[j] })
	return dests
}
