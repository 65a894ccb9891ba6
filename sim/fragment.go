package sim

import "fmt"

// Fragment splits m into ceil(TotalSize/unit) fragments of at most unit
// logical bytes and frees m. Real bytes are consumed before virtual ones, so
// a fragment is all real, all virtual, or a real prefix with a virtual rest.
// Every fragment carries copies of m's attachments; the first also inherits
// the sequence number, origin protocol and header trace. A message no larger
// than unit, including an empty one, is returned as the only fragment.
func (p *Partition) Fragment(m *Message, unit int) ([]*Message, error) {
	m.mustBeActive("Partition.Fragment")
	if unit <= 0 {
		usagef(m, "Partition.Fragment", "fragment unit must be > 0, got %d", unit)
	}
	total := m.TotalSize()
	if total <= unit {
		return []*Message{m}, nil
	}
	frags := make([]*Message, 0, (total+unit-1)/unit)
	for off := 0; off < total; off += unit {
		f, err := p.sliceFragment(m, off, min(off+unit, total))
		if err != nil {
			for _, done := range frags {
				p.Free(done)
			}
			return nil, fmt.Errorf("fragmenting %d bytes at offset %d: %w", total, off, err)
		}
		frags = append(frags, f)
	}
	p.Free(m)
	return frags, nil
}

// FragmentInTwo splits m into a head of unit logical bytes and a tail with
// the rest. With reuse, m itself is shrunk in place to become the tail and
// the caller gives up its reference to m; otherwise m is left untouched and
// still owned by the caller. A message no larger than unit is returned as the
// head with a nil tail.
func (p *Partition) FragmentInTwo(m *Message, unit int, reuse bool) (head, tail *Message, err error) {
	m.mustBeActive("Partition.FragmentInTwo")
	if unit <= 0 {
		usagef(m, "Partition.FragmentInTwo", "fragment unit must be > 0, got %d", unit)
	}
	total := m.TotalSize()
	if total <= unit {
		return m, nil, nil
	}
	head, err = p.sliceFragment(m, 0, unit)
	if err != nil {
		return nil, nil, fmt.Errorf("fragmenting head: %w", err)
	}
	if !reuse {
		tail, err = p.sliceFragment(m, unit, total)
		if err != nil {
			p.Free(head)
			return nil, nil, fmt.Errorf("fragmenting tail: %w", err)
		}
		return head, tail, nil
	}
	realHead := min(unit, m.packetSize)
	if realHead > 0 {
		m.moveFront("Partition.FragmentInTwo", -realHead)
	}
	m.virtualSize -= unit - realHead
	m.headerProtocols = [MaxHeaders]Protocol{}
	m.headerSizes = [MaxHeaders]int32{}
	m.numHeaders = 0
	m.sequence = 0
	m.originProtocol = ProtocolNone
	return head, m, nil
}

// sliceFragment copies logical bytes [off, end) of m into a new message.
func (p *Partition) sliceFragment(m *Message, off, end int) (*Message, error) {
	realLen := 0
	if off < m.packetSize {
		realLen = min(end, m.packetSize) - off
	}
	f := p.New(m.layer, m.protocol, m.event)
	f.originNode = m.originNode
	f.instance = m.instance
	f.creationTime = m.creationTime
	if m.payload != nil {
		if err := f.allocRaw(realLen); err != nil {
			p.Free(f)
			return nil, err
		}
	}
	if realLen > 0 {
		copy(f.Packet(), m.Packet()[off:off+realLen])
	}
	f.virtualSize = end - off - realLen
	if err := CopyInfos(f, m); err != nil {
		p.Free(f)
		return nil, err
	}
	if off == 0 {
		f.sequence = m.sequence
		f.originProtocol = m.originProtocol
		f.copyTrace(m)
	}
	return f, nil
}

// Reassemble merges fragments, in order, into one message and frees them.
// No fragments yields nil; a single fragment is returned as is.
func (p *Partition) Reassemble(frags []*Message) (*Message, error) {
	switch len(frags) {
	case 0:
		return nil, nil
	case 1:
		return frags[0], nil
	}
	out, err := p.merge("Partition.Reassemble", frags)
	if err != nil {
		return nil, err
	}
	for _, f := range frags {
		p.Free(f)
	}
	return out, nil
}

// ReassemblePair merges two fragments into a new message. The inputs are not
// freed. A missing second fragment returns first unchanged; a missing first
// fragment with a present second is ErrMissingFirstFragment.
func (p *Partition) ReassemblePair(first, second *Message) (*Message, error) {
	switch {
	case first == nil && second == nil:
		return nil, nil
	case first == nil:
		return nil, ErrMissingFirstFragment
	case second == nil:
		return first, nil
	}
	return p.merge("Partition.ReassemblePair", []*Message{first, second})
}

// merge concatenates the real bytes of frags, sums their virtual sizes and
// takes everything else from the first fragment. The result has a packet only
// if some fragment has one.
func (p *Partition) merge(op string, frags []*Message) (*Message, error) {
	realSize, virtualSize := 0, 0
	hasPacket := false
	for _, f := range frags {
		if f == nil {
			usagef(nil, op, "nil fragment")
		}
		f.mustBeActive(op)
		realSize += f.packetSize
		virtualSize += f.virtualSize
		hasPacket = hasPacket || f.payload != nil
	}
	first := frags[0]
	out := p.New(first.layer, first.protocol, first.event)
	out.originNode = first.originNode
	out.instance = first.instance
	out.creationTime = first.creationTime
	if hasPacket {
		if err := out.allocRaw(realSize); err != nil {
			p.Free(out)
			return nil, fmt.Errorf("reassembling %d fragments: %w", len(frags), err)
		}
		dst := out.Packet()
		off := 0
		for _, f := range frags {
			off += copy(dst[off:], f.Packet())
		}
	}
	out.virtualSize = virtualSize
	if err := CopyInfos(out, first); err != nil {
		p.Free(out)
		return nil, fmt.Errorf("reassembling %d fragments: %w", len(frags), err)
	}
	out.sequence = first.sequence
	out.originProtocol = first.originProtocol
	out.copyTrace(first)
	return out, nil
}
