// Package transport carries serialized message lists between partitions.
// Each frame is wrapped in an envelope with a batch id and a checksum of the
// body; the hub keeps one FIFO inbox per registered partition.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var (
	// ErrChecksum is returned when a frame body does not match its checksum.
	ErrChecksum = errors.New("frame checksum mismatch")
	// ErrUnknownPartition is returned for sends to an unregistered partition.
	ErrUnknownPartition = errors.New("unknown partition")
	// ErrShortFrame is returned when a frame is shorter than its envelope.
	ErrShortFrame = errors.New("frame shorter than envelope")
)

// envelopeSize is batch id + source + destination + checksum.
const envelopeSize = 16 + 4 + 4 + 8

// Envelope is the decoded header of a frame.
type Envelope struct {
	BatchID  uuid.UUID
	Source   int32
	Dest     int32
	Checksum uint64
	Body     []byte
}

// Encode wraps body in an envelope with a fresh batch id.
func Encode(src, dest int32, body []byte) []byte {
	id := uuid.New()
	frame := make([]byte, 0, envelopeSize+len(body))
	frame = append(frame, id[:]...)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(src))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(dest))
	frame = binary.LittleEndian.AppendUint64(frame, xxhash.Sum64(body))
	return append(frame, body...)
}

// Decode parses and verifies a frame.
func Decode(frame []byte) (Envelope, error) {
	if len(frame) < envelopeSize {
		return Envelope{}, fmt.Errorf("decoding %d-byte frame: %w", len(frame), ErrShortFrame)
	}
	var env Envelope
	copy(env.BatchID[:], frame[:16])
	env.Source = int32(binary.LittleEndian.Uint32(frame[16:20]))
	env.Dest = int32(binary.LittleEndian.Uint32(frame[20:24]))
	env.Checksum = binary.LittleEndian.Uint64(frame[24:32])
	env.Body = frame[envelopeSize:]
	if got := xxhash.Sum64(env.Body); got != env.Checksum {
		return Envelope{}, fmt.Errorf("batch %s from partition %d: got %016x want %016x: %w",
			env.BatchID, env.Source, got, env.Checksum, ErrChecksum)
	}
	return env, nil
}

// Stats counts hub traffic.
type Stats struct {
	Frames uint64
	Bytes  uint64
}

// Hub is an in-process transport between partitions. It is safe for
// concurrent use.
type Hub struct {
	mu      sync.Mutex
	inboxes map[int32][][]byte
	stats   Stats
}

// NewHub creates a hub with an inbox for each of the given partitions.
func NewHub(partitions ...int32) *Hub {
	h := &Hub{inboxes: make(map[int32][][]byte, len(partitions))}
	for _, id := range partitions {
		h.inboxes[id] = nil
	}
	return h
}

// Send enqueues body for dest.
func (h *Hub) Send(src, dest int32, body []byte) error {
	frame := Encode(src, dest, body)
	h.mu.Lock()
	defer h.mu.Unlock()
	inbox, ok := h.inboxes[dest]
	if !ok {
		return fmt.Errorf("sending from %d to %d: %w", src, dest, ErrUnknownPartition)
	}
	h.inboxes[dest] = append(inbox, frame)
	h.stats.Frames++
	h.stats.Bytes += uint64(len(frame))
	return nil
}

// Poll removes and verifies every frame waiting for dest, in arrival order.
func (h *Hub) Poll(dest int32) ([]Envelope, error) {
	h.mu.Lock()
	frames, ok := h.inboxes[dest]
	if ok {
		h.inboxes[dest] = nil
	}
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("polling %d: %w", dest, ErrUnknownPartition)
	}
	out := make([]Envelope, 0, len(frames))
	for _, f := range frames {
		env, err := Decode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Pending returns the number of frames waiting across all inboxes.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, frames := range h.inboxes {
		n += len(frames)
	}
	return n
}

// Stats returns a snapshot of traffic counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
