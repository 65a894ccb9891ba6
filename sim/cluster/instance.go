// Package cluster runs partitions of the message core concurrently. Time is
// cut into epochs of one lookahead; within an epoch each partition runs on
// its own goroutine, and between epochs the messages they addressed to each
// other are serialized, carried by the transport hub and scheduled at the
// receiver.
package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/scheduler"
	"github.com/bfrggit/qualnet-up-sub002/sim/transport"
	"github.com/sirupsen/logrus"
)

// Protocol is the code a partition runs. It owns every message Handle
// receives.
type Protocol interface {
	Start(p *sim.Partition) error
	Handle(p *sim.Partition, m *sim.Message) error
	// Finish releases whatever the protocol still holds at the horizon.
	Finish(p *sim.Partition)
}

// Worker produces messages off the partition's goroutine. It may only use
// the inbox it is given.
type Worker interface {
	// Produce enqueues messages due in [from, to).
	Produce(ctx context.Context, inbox *sim.SyncQueue, from, to sim.Time) error
}

// Instance is one partition with its scheduler and protocol.
//
// Thread-safety: NOT thread-safe. All methods except those of the
// partition's inbox must be called from one goroutine at a time.
type Instance struct {
	partition *sim.Partition
	sched     *scheduler.Scheduler
	protocol  Protocol
	worker    Worker

	received int
	drained  int
}

// Partition returns the instance's partition.
func (in *Instance) Partition() *sim.Partition { return in.partition }

// Protocol returns the protocol running on the instance.
func (in *Instance) Protocol() Protocol { return in.protocol }

// Scheduler returns the instance's event list.
func (in *Instance) Scheduler() *scheduler.Scheduler { return in.sched }

func (in *Instance) handle(m *sim.Message) error {
	return in.protocol.Handle(in.partition, m)
}

// drain schedules what the worker handed over during the previous epoch.
func (in *Instance) drain() {
	in.drained += in.partition.DrainInbox()
}

// runEpoch processes every event before end and flushes remote sends to the
// hub. A panic raised by the partition is returned as an error.
func (in *Instance) runEpoch(end sim.Time, hub *transport.Hub) (n int, err error) {
	id := in.partition.ID()
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("partition %d panicked: %w", id, e)
			} else {
				err = fmt.Errorf("partition %d panicked: %v", id, r)
			}
		}
	}()
	n, err = in.sched.RunUntil(end, in.handle)
	if err != nil {
		return n, fmt.Errorf("partition %d: %w", id, err)
	}
	err = in.partition.FlushRemote(func(dest int32, frame []byte) error {
		return hub.Send(id, dest, frame)
	})
	return n, err
}

// receive schedules every frame waiting on the hub. Frames are taken in
// source order so the result does not depend on goroutine timing.
func (in *Instance) receive(hub *transport.Hub) error {
	id := in.partition.ID()
	envs, err := hub.Poll(id)
	if err != nil {
		return fmt.Errorf("partition %d: %w", id, err)
	}
	sort.SliceStable(envs, func(i, j int) bool { return envs[i].Source < envs[j].Source })
	for _, env := range envs {
		n, err := in.partition.Receive(env.Body)
		if err != nil {
			return fmt.Errorf("batch %s from partition %d: %w", env.BatchID, env.Source, err)
		}
		in.received += n
	}
	return nil
}

// finish lets the protocol release its state and frees every message still
// queued anywhere on the partition. It returns how many were in flight.
func (in *Instance) finish() int {
	in.protocol.Finish(in.partition)
	pending := in.sched.Drain()
	for _, m := range pending {
		in.partition.Free(m)
	}
	inbox := in.partition.Inbox().DequeueAll()
	n := len(pending)
	for m := inbox; m != nil; m = m.Next() {
		n++
	}
	in.partition.FreeList(inbox)
	logrus.Debugf("partition %d: %d messages in flight at horizon", in.partition.ID(), n)
	return n
}
