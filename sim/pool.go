package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// freeList is a bounded stack of previously used blocks of one class.
// It is not safe for concurrent use.
type freeList[T any] struct {
	items []T
	max   int
	stats PoolStats
}

func newFreeList[T any](max int) *freeList[T] {
	return &freeList[T]{max: max}
}

// get pops the most recently released block.
func (f *freeList[T]) get() (T, bool) {
	var zero T
	n := len(f.items)
	if n == 0 {
		f.stats.Misses++
		return zero, false
	}
	item := f.items[n-1]
	f.items[n-1] = zero
	f.items = f.items[:n-1]
	f.stats.Hits++
	return item, true
}

// put retains item unless the list is full. It reports whether it was kept.
func (f *freeList[T]) put(item T) bool {
	if len(f.items) >= f.max {
		f.stats.Dropped++
		return false
	}
	f.items = append(f.items, item)
	f.stats.Retained++
	return true
}

// PoolStats counts free-list traffic for one block class.
type PoolStats struct {
	Hits     uint64 // acquires served from the list
	Misses   uint64 // acquires that fell back to the general allocator
	Retained uint64 // releases kept for reuse
	Dropped  uint64 // releases handed back to the general allocator
	Resident int    // blocks currently held
}

// AllocatorStats is a snapshot of a partition's pools.
type AllocatorStats struct {
	Events    PoolStats
	Infos     PoolStats
	Payloads  PoolStats
	LiveBytes int64 // payload and attachment bytes currently handed out
	PeakBytes int64
}

// pools holds the per-partition free lists. Blocks cross partitions only as
// serialized bytes, so no locking is needed.
type pools struct {
	cfg       Config
	events    *freeList[*Message]
	infos     *freeList[[]byte]
	payloads  *freeList[[]byte]
	liveBytes int64
	peakBytes int64
}

func newPools(cfg Config) *pools {
	return &pools{
		cfg:      cfg,
		events:   newFreeList[*Message](cfg.EventPoolCap),
		infos:    newFreeList[[]byte](cfg.InfoPoolCap),
		payloads: newFreeList[[]byte](cfg.PayloadPoolCap),
	}
}

func (p *pools) charge(n int) error {
	if p.cfg.MemoryLimit > 0 && p.liveBytes+int64(n) > p.cfg.MemoryLimit {
		logrus.Warnf("allocator budget exhausted: live=%d request=%d limit=%d", p.liveBytes, n, p.cfg.MemoryLimit)
		return fmt.Errorf("allocating %d bytes with %d of %d live: %w", n, p.liveBytes, p.cfg.MemoryLimit, ErrOutOfMemory)
	}
	p.liveBytes += int64(n)
	if p.liveBytes > p.peakBytes {
		p.peakBytes = p.liveBytes
	}
	return nil
}

func (p *pools) refund(n int) {
	p.liveBytes -= int64(n)
}

// acquireEvent returns a recycled message, or nil when the pool is empty.
func (p *pools) acquireEvent() *Message {
	m, ok := p.events.get()
	if !ok {
		return nil
	}
	return m
}

func (p *pools) releaseEvent(m *Message) bool {
	return p.events.put(m)
}

// acquirePayload returns a zeroed buffer of length size. Buffers no larger
// than the payload block come from the free list.
func (p *pools) acquirePayload(size int) ([]byte, bool, error) {
	if err := p.charge(size); err != nil {
		return nil, false, err
	}
	if size > p.cfg.PayloadBlockSize {
		logrus.Debugf("payload of %d bytes exceeds pooled block size %d", size, p.cfg.PayloadBlockSize)
		return make([]byte, size), false, nil
	}
	block, ok := p.payloads.get()
	if !ok {
		return make([]byte, size, p.cfg.PayloadBlockSize), true, nil
	}
	block = block[:size]
	clear(block)
	return block, true, nil
}

func (p *pools) releasePayload(buf []byte, pooled bool) {
	p.refund(len(buf))
	if !pooled || cap(buf) != p.cfg.PayloadBlockSize {
		return
	}
	p.payloads.put(buf[:0])
}

// acquireInfo returns a zeroed attachment buffer of length size.
func (p *pools) acquireInfo(size int) ([]byte, bool, error) {
	if err := p.charge(size); err != nil {
		return nil, false, err
	}
	if size > InlineInfoSize {
		return make([]byte, size), false, nil
	}
	block, ok := p.infos.get()
	if !ok {
		return make([]byte, size, InlineInfoSize), true, nil
	}
	block = block[:size]
	clear(block)
	return block, true, nil
}

func (p *pools) releaseInfo(buf []byte, pooled bool) {
	p.refund(len(buf))
	if !pooled || cap(buf) != InlineInfoSize {
		return
	}
	p.infos.put(buf[:0])
}

func (p *pools) stats() AllocatorStats {
	s := AllocatorStats{
		Events:    p.events.stats,
		Infos:     p.infos.stats,
		Payloads:  p.payloads.stats,
		LiveBytes: p.liveBytes,
		PeakBytes: p.peakBytes,
	}
	s.Events.Resident = len(p.events.items)
	s.Infos.Resident = len(p.infos.items)
	s.Payloads.Resident = len(p.payloads.items)
	return s
}

// Helpers used by Message for storage that may or may not be pooled.
// A nil *pools means the message is detached and always uses the heap.

func acquirePayload(p *pools, size int) ([]byte, bool, error) {
	if p == nil {
		return make([]byte, size), false, nil
	}
	return p.acquirePayload(size)
}

func releasePayload(p *pools, buf []byte, pooled bool) {
	if p != nil && buf != nil {
		p.releasePayload(buf, pooled)
	}
}

func acquireInfo(p *pools, size int) ([]byte, bool, error) {
	if p == nil {
		return make([]byte, size), false, nil
	}
	return p.acquireInfo(size)
}

func releaseInfo(p *pools, buf []byte, pooled bool) {
	if p != nil {
		p.releaseInfo(buf, pooled)
	}
}
