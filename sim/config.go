package sim

import "fmt"

// InlineInfoSize is the capacity of a message's inline attachment buffer and
// the block size of the pooled attachment free list.
const InlineInfoSize = 112

// MaxHeaders bounds the header trace of a single message.
const MaxHeaders = 16

// Config groups the per-partition allocator parameters.
type Config struct {
	Headroom         int   `yaml:"headroom"`           // bytes reserved in front of every new packet for headers
	EventPoolCap     int   `yaml:"event_pool_cap"`     // max freed messages retained for reuse
	InfoPoolCap      int   `yaml:"info_pool_cap"`      // max attachment blocks retained
	PayloadPoolCap   int   `yaml:"payload_pool_cap"`   // max payload blocks retained
	PayloadBlockSize int   `yaml:"payload_block_size"` // size of a pooled payload block; bigger payloads use the heap
	MemoryLimit      int64 `yaml:"memory_limit"`       // live payload+attachment bytes allowed (0 = unlimited)
}

// DefaultConfig returns the allocator parameters used when none are given.
func DefaultConfig() Config {
	return Config{
		Headroom:         512,
		EventPoolCap:     10000,
		InfoPoolCap:      10000,
		PayloadPoolCap:   1000,
		PayloadBlockSize: 2048,
	}
}

// Validate checks that all sizes and caps are in range.
func (c Config) Validate() error {
	if c.Headroom < 0 {
		return fmt.Errorf("headroom must be non-negative, got %d", c.Headroom)
	}
	if c.EventPoolCap < 0 || c.InfoPoolCap < 0 || c.PayloadPoolCap < 0 {
		return fmt.Errorf("pool caps must be non-negative, got event=%d info=%d payload=%d",
			c.EventPoolCap, c.InfoPoolCap, c.PayloadPoolCap)
	}
	if c.PayloadBlockSize <= c.Headroom {
		return fmt.Errorf("payload_block_size (%d) must exceed headroom (%d)", c.PayloadBlockSize, c.Headroom)
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("memory_limit must be non-negative, got %d", c.MemoryLimit)
	}
	return nil
}
