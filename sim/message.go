// Defines Message, the event object every protocol action travels in: a
// classification triple, scheduling metadata, an optional packet with a
// stack of headers, typed attachments and a lifecycle state.

package sim

// Message is a simulation event, optionally carrying a packet.
//
// A Message belongs to exactly one owner at a time: the protocol layer that
// built it, the scheduler or transport after Send, and the consumer after
// delivery. The consumer must eventually pass it to Partition.Free exactly once.
type Message struct {
	// identity
	partition      int32
	originNode     NodeID
	layer          Layer
	protocol       Protocol
	event          EventType
	instance       int32
	naturalOrder   int64
	sequence       int64
	originProtocol Protocol

	// scheduling
	deliveryTime Time
	eotTime      Time
	scheduled    bool
	timerExpiry  Time // local to the owning partition, never serialized

	// packet: payload[start:start+packetSize] is the packet
	payload       []byte
	payloadPooled bool
	start         int
	packetSize    int
	virtualSize   int
	creationTime  Time

	infos  []infoRecord
	inline [InlineInfoSize]byte

	headerProtocols [MaxHeaders]Protocol
	headerSizes     [MaxHeaders]int32
	numHeaders      int

	bookkeeping []PackRecord
	spectrum    *Spectrum

	state    State
	detached bool
	owner    *Partition // nil when detached

	next *Message
}

// reset returns m to its freshly created form, keeping reusable slice capacity.
func (m *Message) reset(partition int32, owner *Partition, layer Layer, protocol Protocol, event EventType) {
	infos := m.infos[:0]
	book := m.bookkeeping[:0]
	*m = Message{}
	m.infos = infos
	m.bookkeeping = book
	m.partition = partition
	m.owner = owner
	m.layer = layer
	m.protocol = protocol
	m.event = event
	m.state = StateActive
}

// NewDetached allocates a message outside any partition's pools. Worker
// goroutines use it to build events they hand back through a partition's
// Inbox; none of its storage is ever recycled. Its packet gets a sequence
// number and creation time only when DrainInbox takes it in.
func NewDetached(partition int32, layer Layer, protocol Protocol, event EventType) *Message {
	m := &Message{}
	m.reset(partition, nil, layer, protocol, event)
	m.detached = true
	return m
}

// alloc returns the pools backing m's storage, nil for detached messages.
func (m *Message) alloc() *pools {
	if m.owner == nil {
		return nil
	}
	return m.owner.pools
}

// Partition returns the id of the owning partition.
func (m *Message) Partition() int32 { return m.partition }

// Layer returns the layer the message is addressed to.
func (m *Message) Layer() Layer { return m.layer }

// Protocol returns the protocol the message is addressed to.
func (m *Message) Protocol() Protocol { return m.protocol }

// Event returns the event type.
func (m *Message) Event() EventType { return m.event }

// SetClass changes the classification triple, e.g. when a layer hands a
// message up the stack.
func (m *Message) SetClass(layer Layer, protocol Protocol, event EventType) {
	m.mustBeActive("Message.SetClass")
	m.layer, m.protocol, m.event = layer, protocol, event
}

func (m *Message) OriginNode() NodeID { return m.originNode }

func (m *Message) SetOriginNode(n NodeID) {
	m.mustBeActive("Message.SetOriginNode")
	m.originNode = n
}

func (m *Message) Instance() int32 { return m.instance }

func (m *Message) SetInstance(i int32) {
	m.mustBeActive("Message.SetInstance")
	m.instance = i
}

// NaturalOrder returns the tie-breaking order stamped when the message was sent.
func (m *Message) NaturalOrder() int64 { return m.naturalOrder }

// Sequence returns the packet-trace sequence number assigned by AllocPacket.
func (m *Message) Sequence() int64 { return m.sequence }

// OriginProtocol returns the protocol that created the packet.
func (m *Message) OriginProtocol() Protocol { return m.originProtocol }

// DeliveryTime returns the time the message is (or was) due.
func (m *Message) DeliveryTime() Time { return m.deliveryTime }

// SetDeliveryTime is used by worker goroutines to request an absolute
// delivery time for a message they hand back through an Inbox.
func (m *Message) SetDeliveryTime(t Time) {
	m.mustBeActive("Message.SetDeliveryTime")
	m.deliveryTime = t
}

// EOT returns the end-of-transmission time.
func (m *Message) EOT() Time { return m.eotTime }

func (m *Message) SetEOT(t Time) {
	m.mustBeActive("Message.SetEOT")
	m.eotTime = t
}

// Scheduled reports whether the message is on the main timeline.
func (m *Message) Scheduled() bool { return m.scheduled }

// TimerExpiry returns the expiry recorded when the message is used as a timer.
func (m *Message) TimerExpiry() Time { return m.timerExpiry }

func (m *Message) SetTimerExpiry(t Time) {
	m.mustBeActive("Message.SetTimerExpiry")
	m.timerExpiry = t
}

// CreationTime returns the time the packet was allocated.
func (m *Message) CreationTime() Time { return m.creationTime }

// Spectrum returns the physical-layer tail, or nil.
func (m *Message) Spectrum() *Spectrum { return m.spectrum }

func (m *Message) SetSpectrum(s *Spectrum) {
	m.mustBeActive("Message.SetSpectrum")
	if s == nil {
		m.spectrum = nil
		return
	}
	cp := *s
	m.spectrum = &cp
}

// State returns the lifecycle state.
func (m *Message) State() State { return m.state }

// Detached reports whether the message was allocated outside the pools.
func (m *Message) Detached() bool { return m.detached }

// Next returns the following message in a chain.
func (m *Message) Next() *Message { return m.next }

// SetNext links m to n, building a chain for queues and list codecs.
func (m *Message) SetNext(n *Message) { m.next = n }

// Chain links msgs in order and returns the head.
func Chain(msgs ...*Message) *Message {
	var head, tail *Message
	for _, m := range msgs {
		if m == nil {
			continue
		}
		m.next = nil
		if head == nil {
			head = m
		} else {
			tail.next = m
		}
		tail = m
	}
	return head
}

// Unchain splits a chain into a slice, clearing every link.
func Unchain(head *Message) []*Message {
	var out []*Message
	for m := head; m != nil; {
		next := m.next
		m.next = nil
		out = append(out, m)
		m = next
	}
	return out
}
