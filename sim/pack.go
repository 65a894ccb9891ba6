package sim

import "fmt"

// Pack aggregates a chain of messages into one message carrying their
// concatenated packets and all of their attachments, and frees the chain.
// One PackRecord per input remembers its sizes and attachment range so
// Unpack can rebuild it. Header traces are not carried; sub-messages come
// back as plain payload.
func (p *Partition) Pack(head *Message) (*Message, error) {
	if head == nil {
		return nil, nil
	}
	realSize, virtualSize := 0, 0
	for m := head; m != nil; m = m.next {
		m.mustBeActive("Partition.Pack")
		realSize += m.packetSize
		virtualSize += m.virtualSize
	}
	out := p.New(head.layer, head.protocol, head.event)
	out.originNode = head.originNode
	out.instance = head.instance
	if err := out.allocRaw(realSize); err != nil {
		p.Free(out)
		return nil, fmt.Errorf("packing: %w", err)
	}
	out.virtualSize = virtualSize
	dst := out.Packet()
	off := 0
	for m := head; m != nil; m = m.next {
		off += copy(dst[off:], m.Packet())
		lo := len(out.infos)
		if err := AppendInfos(out, m, false); err != nil {
			p.Free(out)
			return nil, fmt.Errorf("packing attachments: %w", err)
		}
		out.bookkeeping = append(out.bookkeeping, PackRecord{
			RealSize:    m.packetSize,
			VirtualSize: m.virtualSize,
			InfoLo:      lo,
			InfoHi:      len(out.infos),
		})
	}
	p.FreeList(head)
	return out, nil
}

// Unpack rebuilds the chain a packed message was made from and frees the
// packed message. Attachments removed with RemoveInfoInRange stay removed.
func (p *Partition) Unpack(packed *Message) (*Message, error) {
	packed.mustBeActive("Partition.Unpack")
	if len(packed.bookkeeping) == 0 {
		usagef(packed, "Partition.Unpack", "message is not packed")
	}
	realSize, virtualSize := 0, 0
	for _, rec := range packed.bookkeeping {
		realSize += rec.RealSize
		virtualSize += rec.VirtualSize
	}
	if realSize != packed.packetSize || virtualSize != packed.virtualSize {
		usagef(packed, "Partition.Unpack", "packed sizes %d+%d do not match records %d+%d",
			packed.packetSize, packed.virtualSize, realSize, virtualSize)
	}
	src := packed.Packet()
	msgs := make([]*Message, 0, len(packed.bookkeeping))
	fail := func(err error) (*Message, error) {
		for _, m := range msgs {
			p.Free(m)
		}
		return nil, fmt.Errorf("unpacking: %w", err)
	}
	off := 0
	for _, rec := range packed.bookkeeping {
		m := p.New(packed.layer, packed.protocol, packed.event)
		msgs = append(msgs, m)
		m.originNode = packed.originNode
		m.instance = packed.instance
		if err := m.allocRaw(rec.RealSize); err != nil {
			return fail(err)
		}
		off += copy(m.Packet(), src[off:off+rec.RealSize])
		m.virtualSize = rec.VirtualSize
		lo, hi := packed.clampInfoRange(rec.InfoLo, rec.InfoHi)
		for i := lo; i < hi; i++ {
			if packed.infos[i].typ == InfoUndefined {
				continue
			}
			fresh, err := m.copyInfo(&packed.infos[i])
			if err != nil {
				return fail(err)
			}
			m.infos = append(m.infos, fresh)
		}
	}
	p.Free(packed)
	return Chain(msgs...), nil
}

// PackRecords returns the sub-message records of a packed message.
func (m *Message) PackRecords() []PackRecord {
	return append([]PackRecord(nil), m.bookkeeping...)
}
