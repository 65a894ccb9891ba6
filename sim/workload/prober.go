package workload

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/bfrggit/qualnet-up-sub002/sim"
)

// Prober runs on a worker goroutine and hands detached probe messages to its
// partition through the partition's inbox. It never touches the partition
// itself.
type Prober struct {
	partition int32
	count     int
	size      int
	rng       *rand.Rand
	seq       uint64
}

// NewProber creates a producer of count probes of size bytes per window.
func NewProber(partition int32, count, size int, rng *rand.Rand) *Prober {
	return &Prober{partition: partition, count: count, size: size, rng: rng}
}

// Produce enqueues the probes for window [from, to), each due at a random
// time inside it.
func (w *Prober) Produce(ctx context.Context, inbox *sim.SyncQueue, from, to sim.Time) error {
	span := int64(to - from)
	for i := 0; i < w.count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.seq++
		m := sim.NewDetached(w.partition, LayerApp, ProtocolProbe, EventProbe)
		if w.size > 0 {
			if err := m.AllocPacket(w.size, ProtocolProbe); err != nil {
				return fmt.Errorf("probe %d: %w", w.seq, err)
			}
			FillPattern(m.Packet(), w.seq)
		}
		info, err := m.AddInfo(8, sim.InfoDefault)
		if err != nil {
			return fmt.Errorf("probe %d: %w", w.seq, err)
		}
		binary.LittleEndian.PutUint64(info, w.seq)
		due := from
		if span > 0 {
			due += sim.Time(w.rng.Int63n(span))
		}
		m.SetDeliveryTime(due)
		inbox.Enqueue(m)
	}
	return nil
}
