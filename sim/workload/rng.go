package workload

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// PartitionedRNG provides isolated RNG streams per partition and subsystem,
// so a run is reproducible regardless of how partitions are scheduled onto
// goroutines.
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a new partitioned RNG with the given master seed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns an RNG for the given subsystem name.
// The subsystem RNG is created lazily and deterministically derived from the master seed.
// Multiple calls with the same name return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, exists := p.subsystems[name]; exists {
		return rng
	}
	rng := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.subsystems[name] = rng
	return rng
}

// ForPartition returns the RNG of one subsystem within a partition.
// Not safe for concurrent use: callers fetch every stream before partitions start.
func (p *PartitionedRNG) ForPartition(subsystem string, partition int32) *rand.Rand {
	return p.ForSubsystem(fmt.Sprintf("%s_%d", subsystem, partition))
}

// deriveSeed computes masterSeed XOR fnv64a(name), independent of call order.
func (p *PartitionedRNG) deriveSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return p.masterSeed ^ int64(h.Sum64())
}

// Subsystem names.
const (
	SubsystemArrival = "arrival"
	SubsystemProbe   = "probe"
)
