package sim

import (
	"fmt"
	"math"
)

// Time is simulation time in nanoseconds.
type Time int64

// MaxTime is the "never" sentinel. It is not a legal delivery delay.
const MaxTime Time = math.MaxInt64

// Common time units.
const (
	Nanosecond  Time = 1
	Microsecond      = 1000 * Nanosecond
	Millisecond      = 1000 * Microsecond
	Second           = 1000 * Millisecond
)

func (t Time) String() string {
	if t == MaxTime {
		return "never"
	}
	return fmt.Sprintf("%d.%09ds", int64(t)/int64(Second), int64(t)%int64(Second))
}

// NodeID identifies a simulated node.
type NodeID uint32

// Layer identifies the protocol-stack layer a message is addressed to.
type Layer int16

// Protocol identifies a protocol within a layer. It is also the tag recorded
// in the header trace.
type Protocol uint16

const (
	// ProtocolNone is the zero protocol tag.
	ProtocolNone Protocol = 0
	// ProtocolPayloadOnly reserves packet space without recording a header.
	ProtocolPayloadOnly Protocol = math.MaxUint16
)

// EventType is the protocol-specific meaning of a message.
type EventType int32

// InfoType tags an attachment ("info field").
type InfoType uint16

const (
	// InfoUndefined marks a released slot that may be reused.
	InfoUndefined InfoType = 0
	// InfoDefault is the per-message default attachment, stored inline when small.
	InfoDefault InfoType = 1
	// InfoUser is the first tag available to protocol clients.
	InfoUser InfoType = 16
)

// Spectrum is the optional physical-layer tail of a message.
type Spectrum struct {
	Frequency float64
	Bandwidth float64
}

// HeaderEntry is one element of a message's header trace.
type HeaderEntry struct {
	Protocol Protocol
	Size     int
}

// PackRecord describes one sub-message of a packed message: its sizes and the
// half-open range [InfoLo, InfoHi) of attachments it contributed.
type PackRecord struct {
	RealSize    int
	VirtualSize int
	InfoLo      int
	InfoHi      int
}
