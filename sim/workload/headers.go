package workload

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bfrggit/qualnet-up-sub002/sim"
)

// ErrBadHeader is returned when a received header does not describe the
// packet it sits on.
var ErrBadHeader = errors.New("malformed header")

const (
	ipVersionIHL = 0x45
	ipTTL        = 64
)

// pushUDP prepends a UDP-style header to m's packet.
func pushUDP(m *sim.Message, srcPort, dstPort uint16) {
	m.AddHeader(UDPHeaderSize, ProtocolUDP)
	h := m.Packet()[:UDPHeaderSize]
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint16(h[4:6], uint16(m.TotalSize()))
	binary.BigEndian.PutUint16(h[6:8], 0)
}

// pushIP prepends an IPv4-style header to m's packet.
func pushIP(m *sim.Message, id uint16, src, dst sim.NodeID) {
	m.AddHeader(IPHeaderSize, ProtocolIP)
	h := m.Packet()[:IPHeaderSize]
	clear(h)
	h[0] = ipVersionIHL
	binary.BigEndian.PutUint16(h[2:4], uint16(m.TotalSize()))
	binary.BigEndian.PutUint16(h[4:6], id)
	h[8] = ipTTL
	h[9] = byte(ProtocolUDP)
	binary.BigEndian.PutUint32(h[12:16], uint32(src))
	binary.BigEndian.PutUint32(h[16:20], uint32(dst))
}

// ipHeader is the decoded subset of the IP-style header.
type ipHeader struct {
	length uint16
	id     uint16
	src    sim.NodeID
	dst    sim.NodeID
}

// popIP validates and removes the IP-style header.
func popIP(m *sim.Message) (ipHeader, error) {
	if m.PacketSize() < IPHeaderSize {
		return ipHeader{}, fmt.Errorf("packet of %d bytes has no IP header: %w", m.PacketSize(), ErrBadHeader)
	}
	h := m.Packet()[:IPHeaderSize]
	ip := ipHeader{
		length: binary.BigEndian.Uint16(h[2:4]),
		id:     binary.BigEndian.Uint16(h[4:6]),
		src:    sim.NodeID(binary.BigEndian.Uint32(h[12:16])),
		dst:    sim.NodeID(binary.BigEndian.Uint32(h[16:20])),
	}
	if h[0] != ipVersionIHL || h[9] != byte(ProtocolUDP) {
		return ip, fmt.Errorf("IP version %#x protocol %d: %w", h[0], h[9], ErrBadHeader)
	}
	if int(ip.length) != m.TotalSize()&0xffff {
		return ip, fmt.Errorf("IP length %d, packet %d: %w", ip.length, m.TotalSize(), ErrBadHeader)
	}
	m.RemoveHeader(IPHeaderSize, ProtocolIP)
	return ip, nil
}

// popUDP validates and removes the UDP-style header, returning the ports.
func popUDP(m *sim.Message) (srcPort, dstPort uint16, err error) {
	if m.PacketSize() < UDPHeaderSize {
		return 0, 0, fmt.Errorf("packet of %d bytes has no UDP header: %w", m.PacketSize(), ErrBadHeader)
	}
	h := m.Packet()[:UDPHeaderSize]
	srcPort = binary.BigEndian.Uint16(h[0:2])
	dstPort = binary.BigEndian.Uint16(h[2:4])
	if n := binary.BigEndian.Uint16(h[4:6]); int(n) != m.TotalSize()&0xffff {
		return 0, 0, fmt.Errorf("UDP length %d, packet %d: %w", n, m.TotalSize(), ErrBadHeader)
	}
	m.RemoveHeader(UDPHeaderSize, ProtocolUDP)
	return srcPort, dstPort, nil
}
