package workload

import "github.com/bfrggit/qualnet-up-sub002/sim"

// Stack layers used by the clients in this package.
const (
	LayerNetwork   sim.Layer = 3
	LayerTransport sim.Layer = 4
	LayerApp       sim.Layer = 5
)

// Protocol tags. UDP and IP use their IANA numbers so header traces read
// naturally in dumps.
const (
	ProtocolIP    sim.Protocol = 4
	ProtocolUDP   sim.Protocol = 17
	ProtocolCBR   sim.Protocol = 100
	ProtocolProbe sim.Protocol = 101
)

// Event types.
const (
	EventTimer sim.EventType = 1
	EventData  sim.EventType = 2
	EventProbe sim.EventType = 3
)

// Attachment tags.
const (
	InfoFragment  = sim.InfoUser
	InfoTimestamp = sim.InfoUser + 1
)

// Header and attachment sizes in bytes.
const (
	UDPHeaderSize = 8
	IPHeaderSize  = 20

	appInfoSize      = 4 + 8 // origin node, application sequence
	fragmentInfoSize = 4 + 8 + 2 + 2
	timestampSize    = 8
)
