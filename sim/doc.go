// Package sim provides the message substrate of a partitioned discrete-event
// network simulator: the event object every protocol action travels in, and
// the allocators, header stack, fragmentation, serialization and delivery
// queues that move millions of them per run.
//
// # Reading Guide
//
// Start with these files to understand the core:
//   - message.go: Message fields and accessors
//   - state.go: the lifecycle state machine (Active → Sent → Active → Freed|Deleted)
//   - partition.go: per-partition allocator, New/Duplicate/Free
//   - send.go: local and remote send, inbox hand-off from worker goroutines
//
// Then the mechanisms protocol layers use:
//   - header.go: AllocPacket, AddHeader/RemoveHeader, virtual payload
//   - info.go: typed attachments with an inline fast path for the default one
//   - fragment.go / pack.go: fragmentation, reassembly, aggregation
//   - codec.go: the cross-partition wire format
//   - queue.go: FIFO delivery queues, plain and mutex-guarded
//
// # Architecture
//
// Collaborators live in sub-packages:
//   - sim/scheduler/: time-ordered event list (implements Scheduler)
//   - sim/transport/: in-process hub carrying frames between partitions
//   - sim/cluster/: runs partitions concurrently in lookahead-bounded epochs
//   - sim/workload/: protocol clients driving the core
//   - sim/trace/: lifecycle trace recording (implements Observer)
//
// sim/scheduler registers the default scheduler via init() into
// NewSchedulerFunc, breaking the import cycle between sim/ and its
// implementation.
//
// # Errors
//
// Contract violations (double free, free while sent, header pop out of
// order, zero-size attachment, bad delay) panic with *UsageError naming the
// message's layer/protocol/event and natural order. Allocator exhaustion is
// returned as ErrOutOfMemory. Data-shape cases (reassembling without a first
// fragment, fragmenting an empty packet) have documented results instead.
package sim
