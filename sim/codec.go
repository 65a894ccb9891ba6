package sim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire layout of one message, little endian, no version field:
//
//	snapshot     fixed-size scalar fields and the header-trace arrays
//	packet       packetSize bytes
//	infos        u32 count, then per record: u16 tag, u32 size, size bytes
//	bookkeeping  u32 count, then per record: 4 x u32
//	spectrum     f64 frequency, f64 bandwidth (zeros when absent)
//
// Timer expiry and the detached marker are local to a partition and are not
// encoded.

// snapshotSize is the encoded length of the fixed scalar section.
const snapshotSize = 4 + 4 + 2 + 2 + 4 + 4 + // partition, origin node, layer, protocol, event, instance
	8 + 8 + 2 + // natural order, sequence, origin protocol
	8 + 8 + 1 + 8 + // delivery, eot, scheduled, creation
	4 + 4 + 1 + 1 + // packet size, virtual size, has packet, header count
	MaxHeaders*2 + MaxHeaders*4

// Marshal serializes m.
func Marshal(m *Message) []byte {
	return AppendMessage(make([]byte, 0, m.EncodedSize()), m)
}

// EncodedSize returns the length of m's serialized form.
func (m *Message) EncodedSize() int {
	n := snapshotSize + m.packetSize + 4 + 4 + 4*4*len(m.bookkeeping) + 16
	for i := range m.infos {
		n += 2 + 4 + len(m.infos[i].buf)
	}
	return n
}

// AppendMessage appends the serialized form of m to dst.
func AppendMessage(dst []byte, m *Message) []byte {
	m.mustBeLive("AppendMessage")
	le := binary.LittleEndian
	dst = le.AppendUint32(dst, uint32(m.partition))
	dst = le.AppendUint32(dst, uint32(m.originNode))
	dst = le.AppendUint16(dst, uint16(m.layer))
	dst = le.AppendUint16(dst, uint16(m.protocol))
	dst = le.AppendUint32(dst, uint32(m.event))
	dst = le.AppendUint32(dst, uint32(m.instance))
	dst = le.AppendUint64(dst, uint64(m.naturalOrder))
	dst = le.AppendUint64(dst, uint64(m.sequence))
	dst = le.AppendUint16(dst, uint16(m.originProtocol))
	dst = le.AppendUint64(dst, uint64(m.deliveryTime))
	dst = le.AppendUint64(dst, uint64(m.eotTime))
	dst = append(dst, boolByte(m.scheduled))
	dst = le.AppendUint64(dst, uint64(m.creationTime))
	dst = le.AppendUint32(dst, uint32(m.packetSize))
	dst = le.AppendUint32(dst, uint32(m.virtualSize))
	dst = append(dst, boolByte(m.payload != nil))
	dst = append(dst, uint8(m.numHeaders))
	for _, proto := range m.headerProtocols {
		dst = le.AppendUint16(dst, uint16(proto))
	}
	for _, size := range m.headerSizes {
		dst = le.AppendUint32(dst, uint32(size))
	}

	if m.payload != nil {
		dst = append(dst, m.Packet()...)
	}

	dst = le.AppendUint32(dst, uint32(len(m.infos)))
	for i := range m.infos {
		rec := &m.infos[i]
		dst = le.AppendUint16(dst, uint16(rec.typ))
		dst = le.AppendUint32(dst, uint32(len(rec.buf)))
		dst = append(dst, rec.buf...)
	}

	dst = le.AppendUint32(dst, uint32(len(m.bookkeeping)))
	for _, rec := range m.bookkeeping {
		dst = le.AppendUint32(dst, uint32(rec.RealSize))
		dst = le.AppendUint32(dst, uint32(rec.VirtualSize))
		dst = le.AppendUint32(dst, uint32(rec.InfoLo))
		dst = le.AppendUint32(dst, uint32(rec.InfoHi))
	}

	var freq, bw float64
	if m.spectrum != nil {
		freq, bw = m.spectrum.Frequency, m.spectrum.Bandwidth
	}
	dst = le.AppendUint64(dst, math.Float64bits(freq))
	dst = le.AppendUint64(dst, math.Float64bits(bw))
	return dst
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// reader consumes little-endian fields and remembers the first short read.
type reader struct {
	buf   []byte
	off   int
	short bool
}

func (r *reader) take(n int) []byte {
	if r.short || n < 0 || len(r.buf)-r.off < n {
		r.short = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

// Unmarshal decodes one message from the front of data into a fresh message
// allocated from p, and returns it with the number of bytes consumed. The
// message is Active; its timer expiry and detached marker take defaults.
func (p *Partition) Unmarshal(data []byte) (*Message, int, error) {
	r := &reader{buf: data}
	m, err := p.decode(r)
	if err != nil {
		return nil, 0, err
	}
	return m, r.off, nil
}

func (p *Partition) decode(r *reader) (*Message, error) {
	if r.remaining() < snapshotSize {
		return nil, fmt.Errorf("decoding snapshot: need %d bytes, have %d: %w", snapshotSize, r.remaining(), ErrShortBuffer)
	}
	partition := int32(r.u32())
	originNode := NodeID(r.u32())
	layer := Layer(r.u16())
	protocol := Protocol(r.u16())
	event := EventType(r.u32())

	m := p.New(layer, protocol, event)
	m.partition = partition
	m.originNode = originNode
	m.instance = int32(r.u32())
	m.naturalOrder = int64(r.u64())
	m.sequence = int64(r.u64())
	m.originProtocol = Protocol(r.u16())
	m.deliveryTime = Time(r.u64())
	m.eotTime = Time(r.u64())
	m.scheduled = r.u8() != 0
	m.creationTime = Time(r.u64())
	packetSize := int(r.u32())
	virtualSize := int(r.u32())
	hasPacket := r.u8() != 0
	numHeaders := int(r.u8())
	var protos [MaxHeaders]Protocol
	var sizes [MaxHeaders]int32
	for i := range protos {
		protos[i] = Protocol(r.u16())
	}
	for i := range sizes {
		sizes[i] = int32(r.u32())
	}

	fail := func(err error) (*Message, error) {
		p.Free(m)
		return nil, err
	}
	if numHeaders > MaxHeaders {
		return fail(fmt.Errorf("decoding header trace: %d headers exceeds %d: %w", numHeaders, MaxHeaders, ErrCorruptFrame))
	}
	if !hasPacket && (packetSize > 0 || numHeaders > 0) {
		return fail(fmt.Errorf("decoding packet: %d bytes and %d headers without a packet: %w", packetSize, numHeaders, ErrCorruptFrame))
	}
	if packetSize > r.remaining() {
		return fail(fmt.Errorf("decoding packet: need %d bytes, have %d: %w", packetSize, r.remaining(), ErrShortBuffer))
	}
	if hasPacket {
		if err := m.allocRaw(packetSize); err != nil {
			return fail(fmt.Errorf("decoding packet: %w", err))
		}
		copy(m.Packet(), r.take(packetSize))
	}
	m.virtualSize = virtualSize
	m.headerProtocols, m.headerSizes, m.numHeaders = protos, sizes, numHeaders

	count := int(r.u32())
	for i := 0; i < count && !r.short; i++ {
		typ := InfoType(r.u16())
		size := int(r.u32())
		if typ == InfoUndefined {
			if size != 0 {
				return fail(fmt.Errorf("decoding attachment %d: undefined slot with %d bytes: %w", i, size, ErrCorruptFrame))
			}
			m.infos = append(m.infos, infoRecord{})
			continue
		}
		if size <= 0 || size > r.remaining() {
			return fail(fmt.Errorf("decoding attachment %d: size %d with %d bytes left: %w", i, size, r.remaining(), ErrShortBuffer))
		}
		rec, err := m.newInfo(typ, size)
		if err != nil {
			return fail(fmt.Errorf("decoding attachment %d: %w", i, err))
		}
		copy(rec.buf, r.take(size))
		m.infos = append(m.infos, rec)
	}

	count = int(r.u32())
	for i := 0; i < count && !r.short; i++ {
		m.bookkeeping = append(m.bookkeeping, PackRecord{
			RealSize:    int(r.u32()),
			VirtualSize: int(r.u32()),
			InfoLo:      int(r.u32()),
			InfoHi:      int(r.u32()),
		})
	}

	freq := math.Float64frombits(r.u64())
	bw := math.Float64frombits(r.u64())
	if r.short {
		return fail(fmt.Errorf("decoding message: %w", ErrShortBuffer))
	}
	if len(m.bookkeeping) > 0 {
		realSum, virtualSum := 0, 0
		for _, rec := range m.bookkeeping {
			realSum += rec.RealSize
			virtualSum += rec.VirtualSize
		}
		if realSum != packetSize || virtualSum != virtualSize {
			return fail(fmt.Errorf("decoding pack records: sizes %d+%d do not match packet %d+%d: %w",
				realSum, virtualSum, packetSize, virtualSize, ErrCorruptFrame))
		}
	}
	if freq != 0 || bw != 0 {
		m.spectrum = &Spectrum{Frequency: freq, Bandwidth: bw}
	}
	return m, nil
}

// MarshalList serializes a chain of messages behind a u32 count, freeing
// each message once it is encoded.
func (p *Partition) MarshalList(head *Message) []byte {
	count, size := 0, 4
	for m := head; m != nil; m = m.next {
		count++
		size += m.EncodedSize()
	}
	dst := binary.LittleEndian.AppendUint32(make([]byte, 0, size), uint32(count))
	for m := head; m != nil; {
		next := m.next
		m.next = nil
		dst = AppendMessage(dst, m)
		p.Free(m)
		m = next
	}
	return dst
}

// UnmarshalList decodes a list written by MarshalList and returns the
// rebuilt chain with the number of bytes consumed. On error nothing decoded
// so far is kept.
func (p *Partition) UnmarshalList(data []byte) (*Message, int, error) {
	r := &reader{buf: data}
	count := int(r.u32())
	if r.short {
		return nil, 0, fmt.Errorf("decoding list count: %w", ErrShortBuffer)
	}
	var head, tail *Message
	for i := 0; i < count; i++ {
		m, err := p.decode(r)
		if err != nil {
			p.FreeList(head)
			return nil, 0, fmt.Errorf("decoding list entry %d of %d: %w", i, count, err)
		}
		if head == nil {
			head = m
		} else {
			tail.next = m
		}
		tail = m
	}
	return head, r.off, nil
}
