package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when the partition's memory budget cannot
	// satisfy an allocation.
	ErrOutOfMemory = errors.New("message allocator exhausted")
	// ErrShortBuffer is returned when a serialized message is truncated.
	ErrShortBuffer = errors.New("serialized message truncated")
	// ErrCorruptFrame is returned when serialized fields are out of range.
	ErrCorruptFrame = errors.New("serialized message corrupt")
	// ErrMissingFirstFragment is returned by ReassemblePair when only the
	// second fragment is present.
	ErrMissingFirstFragment = errors.New("first fragment missing")
)

// UsageError reports a violated message contract (double free, free while
// sent, header pop out of order, ...). It is raised with panic: the caller has
// a protocol bug and the run must stop before shared pools are corrupted.
type UsageError struct {
	Op       string
	Reason   string
	Layer    Layer
	Protocol Protocol
	Event    EventType
	Order    int64
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s (layer=%d protocol=%d event=%d order=%d)",
		e.Op, e.Reason, e.Layer, e.Protocol, e.Event, e.Order)
}

// usagef panics with a UsageError identifying m.
func usagef(m *Message, op, format string, args ...any) {
	err := &UsageError{Op: op, Reason: fmt.Sprintf(format, args...)}
	if m != nil {
		err.Layer, err.Protocol, err.Event, err.Order = m.layer, m.protocol, m.event, m.naturalOrder
	}
	panic(err)
}
