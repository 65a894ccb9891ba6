package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	sends map[int32]int
	frees int
}

func (o *countingObserver) OnSend(_ *Message, dest int32) {
	if o.sends == nil {
		o.sends = make(map[int32]int)
	}
	o.sends[dest]++
}

func (o *countingObserver) OnFree(*Message) { o.frees++ }

func TestSend_StampsAndHandsOff(t *testing.T) {
	// GIVEN a partition at t=10
	p, s := newTestPartition(t)
	s.now = 10
	obs := &countingObserver{}
	p.SetObserver(obs)

	// WHEN two messages are sent
	a, b := p.New(1, 1, 1), p.New(1, 1, 2)
	p.Send(a, 5)
	p.Send(b, 0)

	// THEN each is stamped, marked sent and given to the scheduler in order
	assert.Equal(t, Time(15), a.DeliveryTime())
	assert.Equal(t, Time(10), b.DeliveryTime())
	assert.Equal(t, int64(1), a.NaturalOrder())
	assert.Equal(t, int64(2), b.NaturalOrder())
	assert.True(t, a.Scheduled())
	assert.Equal(t, StateSent, a.State())
	assert.Equal(t, []*Message{a, b}, s.inserted)
	assert.Equal(t, []Time{5, 0}, s.delays)
	assert.Equal(t, 2, obs.sends[0])

	// WHEN the scheduler delivers them
	for _, m := range s.deliverAll() {
		assert.Equal(t, StateActive, m.State())
		assert.False(t, m.Scheduled())
		p.Free(m)
	}
	assert.Equal(t, 2, obs.frees)
}

func TestSend_BadDelay_Panics(t *testing.T) {
	p, s := newTestPartition(t)
	s.now = 10
	m := p.New(1, 1, 1)

	ue := usagePanic(func() { p.Send(m, -1) })
	require.NotNil(t, ue)
	assert.Equal(t, "delay -1 out of range", ue.Reason)

	ue = usagePanic(func() { p.Send(m, MaxTime) })
	require.NotNil(t, ue)

	ue = usagePanic(func() { p.Send(m, MaxTime-5) })
	require.NotNil(t, ue)
	assert.Contains(t, ue.Reason, "overflows clock at 10")
	assert.Equal(t, StateActive, m.State(), "a rejected send leaves the message with its owner")
}

func TestSendRemote_FlushReceive(t *testing.T) {
	// GIVEN two partitions at t=100
	src, srcSched := newTestPartitionWith(t, 0, DefaultConfig())
	dst, dstSched := newTestPartitionWith(t, 1, DefaultConfig())
	srcSched.now, dstSched.now = 100, 100

	m := newPacket(t, src, 64)
	m.AddHeader(8, 17)
	m.SetOriginNode(3)
	info, err := m.AddInfo(4, InfoDefault)
	require.NoError(t, err)
	copy(info, "ping")
	other := src.New(2, 2, 2)

	// WHEN both are sent to partition 1 and the outbox is flushed
	src.SendRemote(m, 1, 50)
	src.SendRemote(other, 1, 20)
	n, earliest := src.PendingRemote()
	assert.Equal(t, 2, n)
	assert.Equal(t, Time(120), earliest)

	var frames [][]byte
	require.NoError(t, src.FlushRemote(func(dest int32, frame []byte) error {
		assert.Equal(t, int32(1), dest)
		frames = append(frames, frame)
		return nil
	}))
	require.Len(t, frames, 1)
	n, _ = src.PendingRemote()
	assert.Zero(t, n)
	assert.Empty(t, srcSched.inserted)

	got, err := dst.Receive(frames[0])
	require.NoError(t, err)

	// THEN the receiver schedules copies at the sender's delivery times
	assert.Equal(t, 2, got)
	require.Len(t, dstSched.inserted, 2)
	assert.Equal(t, []Time{50, 20}, dstSched.delays)
	recv := dstSched.deliverAll()[0]
	assert.Equal(t, Time(150), recv.DeliveryTime())
	assert.Equal(t, int32(0), recv.Partition())
	assert.Equal(t, NodeID(3), recv.OriginNode())
	assert.Equal(t, []byte("ping"), recv.Info(InfoDefault))
	assert.Equal(t, []HeaderEntry{{Protocol: 100, Size: 64}, {Protocol: 17, Size: 8}}, recv.HeaderTrace())
	recv.RemoveHeader(8, 17)
	assert.Equal(t, 64, recv.PacketSize())
	assert.Equal(t, byte(63), recv.Packet()[63])
}

func TestReceive_InThePast_ReturnsErrCausality(t *testing.T) {
	src, _ := newTestPartitionWith(t, 0, DefaultConfig())
	dst, dstSched := newTestPartitionWith(t, 1, DefaultConfig())
	src.SendRemote(src.New(1, 1, 1), 1, 10)
	var frame []byte
	require.NoError(t, src.FlushRemote(func(_ int32, f []byte) error {
		frame = f
		return nil
	}))

	dstSched.now = 11
	n, err := dst.Receive(frame)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrCausality)
	assert.Empty(t, dstSched.inserted)
}

func TestFlushRemote_SendError_Wrapped(t *testing.T) {
	p, _ := newTestPartition(t)
	p.SendRemote(p.New(1, 1, 1), 3, 0)
	boom := errors.New("link down")
	err := p.FlushRemote(func(int32, []byte) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "partition 3")
}

func TestSendRemote_ToSelf_IsLocal(t *testing.T) {
	p, s := newTestPartitionWith(t, 2, DefaultConfig())
	p.SendRemote(p.New(1, 1, 1), 2, 7)
	assert.Len(t, s.inserted, 1)
	n, _ := p.PendingRemote()
	assert.Zero(t, n)
}

func TestDrainInbox_SchedulesAtRequestedTimeOrNow(t *testing.T) {
	// GIVEN a partition at t=100 and two worker messages, one overdue
	p, s := newTestPartition(t)
	s.now = 100
	late := NewDetached(0, 1, 1, 1)
	late.SetDeliveryTime(50)
	future := NewDetached(0, 1, 1, 2)
	future.SetDeliveryTime(150)
	p.Inbox().Enqueue(late)
	p.Inbox().Enqueue(future)

	// WHEN the inbox is drained
	n := p.DrainInbox()

	// THEN both are scheduled in hand-off order, the overdue one now
	assert.Equal(t, 2, n)
	assert.Equal(t, []*Message{late, future}, s.inserted)
	assert.Equal(t, []Time{0, 50}, s.delays)
	assert.Equal(t, Time(100), late.DeliveryTime())
	assert.Zero(t, p.Inbox().Len())
}

func TestDrainInbox_StampsSequenceOnDetachedPackets(t *testing.T) {
	// GIVEN a partition that already numbered one packet, and two worker
	// messages: one with a packet, one without
	p, s := newTestPartition(t)
	local := p.New(1, 1, 1)
	require.NoError(t, local.AllocPacket(4, 1))
	s.now = 200
	withPacket := NewDetached(0, 1, 1, 1)
	require.NoError(t, withPacket.AllocPacket(16, 9))
	bare := NewDetached(0, 1, 1, 2)
	assert.Zero(t, withPacket.Sequence())
	p.Inbox().Enqueue(withPacket)
	p.Inbox().Enqueue(bare)

	// WHEN the inbox is drained
	p.DrainInbox()

	// THEN the packet continues the partition's numbering and is stamped
	// with the drain time; the message without a packet stays unnumbered
	assert.Equal(t, int64(1), local.Sequence())
	assert.Equal(t, int64(2), withPacket.Sequence())
	assert.Equal(t, Time(200), withPacket.CreationTime())
	assert.Zero(t, bare.Sequence())
}
