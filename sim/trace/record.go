// Package trace provides lifecycle-trace recording for message analysis.
// Recorders observe a partition's sends and frees; summaries aggregate them
// across partitions.
package trace

import (
	"fmt"

	"github.com/bfrggit/qualnet-up-sub002/sim"
)

// Class is a message's (layer, protocol, event) classification.
type Class struct {
	Layer    sim.Layer
	Protocol sim.Protocol
	Event    sim.EventType
}

// ClassOf returns m's classification.
func ClassOf(m *sim.Message) Class {
	return Class{Layer: m.Layer(), Protocol: m.Protocol(), Event: m.Event()}
}

func (c Class) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Layer, c.Protocol, c.Event)
}

// ClassCounts counts lifecycle events of one classification.
type ClassCounts struct {
	Sends       int
	RemoteSends int
	Frees       int
}

// RecordKind distinguishes lifecycle records.
type RecordKind string

const (
	KindSend RecordKind = "send"
	KindFree RecordKind = "free"
)

// LifecycleRecord captures a single send or free.
type LifecycleRecord struct {
	Kind     RecordKind
	Class    Class
	Order    int64    // natural order stamped at send
	Sequence int64    // packet-trace sequence number (0 for non-packets)
	Clock    sim.Time // delivery time at the moment of the event
	Dest     int32    // destination partition for sends
	Bytes    int      // real + virtual packet size
}
