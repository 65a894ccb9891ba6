package sim

// AllocPacket materializes the packet of a message that has none. The payload
// is size plus the partition's headroom, with the packet at the end so
// headers can be pushed without copying. Unless origin is
// ProtocolPayloadOnly, one header-trace entry covering size bytes is recorded.
func (m *Message) AllocPacket(size int, origin Protocol) error {
	m.mustBeActive("Message.AllocPacket")
	if m.payload != nil {
		usagef(m, "Message.AllocPacket", "packet already allocated (%d bytes)", m.packetSize)
	}
	if size < 0 {
		usagef(m, "Message.AllocPacket", "negative packet size %d", size)
	}
	if err := m.allocRaw(size); err != nil {
		return err
	}
	m.originProtocol = origin
	if origin != ProtocolPayloadOnly {
		m.pushTrace("Message.AllocPacket", origin, size)
	}
	if m.owner != nil {
		m.sequence = m.owner.nextSequence()
		m.creationTime = m.owner.Now()
	}
	return nil
}

// allocRaw materializes a packet of size bytes with no header trace and
// without consuming a sequence number. Fragmentation, packing and the codec
// use it; they set sequence and trace themselves.
func (m *Message) allocRaw(size int) error {
	headroom := DefaultConfig().Headroom
	if m.owner != nil {
		headroom = m.owner.cfg.Headroom
	}
	buf, pooled, err := acquirePayload(m.alloc(), size+headroom)
	if err != nil {
		return err
	}
	m.payload, m.payloadPooled = buf, pooled
	m.start = headroom
	m.packetSize = size
	m.numHeaders = 0
	return nil
}

// HasPacket reports whether a packet has been allocated.
func (m *Message) HasPacket() bool { return m.payload != nil }

// Packet returns the packet bytes. The slice aliases the payload and is
// invalidated by header and packet-size changes.
func (m *Message) Packet() []byte {
	m.mustBeLive("Message.Packet")
	if m.payload == nil {
		return nil
	}
	return m.payload[m.start : m.start+m.packetSize]
}

// PacketSize returns the number of materialized packet bytes.
func (m *Message) PacketSize() int { return m.packetSize }

// VirtualSize returns the number of bytes accounted for but not stored.
func (m *Message) VirtualSize() int { return m.virtualSize }

// TotalSize returns the real plus virtual size.
func (m *Message) TotalSize() int { return m.packetSize + m.virtualSize }

// PayloadSize returns the allocated payload length, headroom included.
func (m *Message) PayloadSize() int { return len(m.payload) }

// Headroom returns the free bytes in front of the packet.
func (m *Message) Headroom() int { return m.start }

// AddVirtualPayload grows the size-only part of the packet.
func (m *Message) AddVirtualPayload(n int) {
	m.mustBeActive("Message.AddVirtualPayload")
	if n < 0 {
		usagef(m, "Message.AddVirtualPayload", "negative size %d", n)
	}
	m.virtualSize += n
}

// RemoveVirtualPayload shrinks the size-only part of the packet.
func (m *Message) RemoveVirtualPayload(n int) {
	m.mustBeActive("Message.RemoveVirtualPayload")
	if n < 0 || n > m.virtualSize {
		usagef(m, "Message.RemoveVirtualPayload", "cannot remove %d of %d virtual bytes", n, m.virtualSize)
	}
	m.virtualSize -= n
}

// AddHeader pushes a header of size bytes tagged proto in front of the
// packet. Running out of headroom panics: the configured headroom is too
// small for the protocol stack.
func (m *Message) AddHeader(size int, proto Protocol) {
	m.mustBeActive("Message.AddHeader")
	mustBeSize(m, "Message.AddHeader", size)
	m.moveFront("Message.AddHeader", size)
	m.pushTrace("Message.AddHeader", proto, size)
}

// RemoveHeader pops the most recently pushed header. proto must match the
// traced tag; size is trusted.
func (m *Message) RemoveHeader(size int, proto Protocol) {
	m.mustBeActive("Message.RemoveHeader")
	mustBeSize(m, "Message.RemoveHeader", size)
	if m.numHeaders == 0 {
		usagef(m, "Message.RemoveHeader", "no header to remove for protocol %d", proto)
	}
	top := m.headerProtocols[m.numHeaders-1]
	if top != proto {
		usagef(m, "Message.RemoveHeader", "header order violated: top is protocol %d, removing %d", top, proto)
	}
	m.moveFront("Message.RemoveHeader", -size)
	m.numHeaders--
	m.headerProtocols[m.numHeaders] = ProtocolNone
	m.headerSizes[m.numHeaders] = 0
}

// ExpandPacket grows the packet at the front without recording a header.
func (m *Message) ExpandPacket(size int) {
	m.mustBeActive("Message.ExpandPacket")
	mustBeSize(m, "Message.ExpandPacket", size)
	m.moveFront("Message.ExpandPacket", size)
}

// ShrinkPacket removes size bytes from the front without touching the trace.
func (m *Message) ShrinkPacket(size int) {
	m.mustBeActive("Message.ShrinkPacket")
	mustBeSize(m, "Message.ShrinkPacket", size)
	m.moveFront("Message.ShrinkPacket", -size)
}

// moveFront moves the packet start by delta bytes toward the payload start
// (delta > 0 grows the packet). The packet must stay inside the payload.
func (m *Message) moveFront(op string, delta int) {
	if m.payload == nil {
		usagef(m, op, "no packet allocated")
	}
	start := m.start - delta
	size := m.packetSize + delta
	if start < 0 {
		usagef(m, op, "headroom exhausted: need %d bytes, have %d", delta, m.start)
	}
	if size < 0 || start+size > len(m.payload) {
		usagef(m, op, "packet underflow: removing %d of %d bytes", -delta, m.packetSize)
	}
	m.start, m.packetSize = start, size
}

func (m *Message) pushTrace(op string, proto Protocol, size int) {
	if m.numHeaders >= MaxHeaders {
		usagef(m, op, "header trace full (%d headers)", MaxHeaders)
	}
	m.headerProtocols[m.numHeaders] = proto
	m.headerSizes[m.numHeaders] = int32(size)
	m.numHeaders++
}

// NumHeaders returns the number of traced headers.
func (m *Message) NumHeaders() int { return m.numHeaders }

// HeaderTrace returns the traced headers in push order.
func (m *Message) HeaderTrace() []HeaderEntry {
	out := make([]HeaderEntry, m.numHeaders)
	for i := range out {
		out[i] = HeaderEntry{Protocol: m.headerProtocols[i], Size: int(m.headerSizes[i])}
	}
	return out
}

// copyTrace copies src's header trace verbatim.
func (m *Message) copyTrace(src *Message) {
	m.headerProtocols = src.headerProtocols
	m.headerSizes = src.headerSizes
	m.numHeaders = src.numHeaders
}

func mustBeSize(m *Message, op string, size int) {
	if size < 0 {
		usagef(m, op, "negative size %d", size)
	}
}
