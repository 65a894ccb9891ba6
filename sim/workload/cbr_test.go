package workload

import (
	"context"
	"encoding/binary"
	"math/rand"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/scheduler"
)

func TestMain(m *testing.M) {
	// Corruption tests log warnings on purpose.
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

// runSingle runs one CBR partition, sending to itself, until limit and then
// tears it down, returning the client and the partition.
func runSingle(t *testing.T, cfg CBRConfig, limit sim.Time) (*CBR, *sim.Partition) {
	t.Helper()
	sched := scheduler.New()
	p := sim.NewPartition(0, sim.DefaultConfig(), sched)
	c, err := NewCBR(cfg, 0, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, c.Start(p))
	_, err = sched.RunUntil(limit, func(m *sim.Message) error { return c.Handle(p, m) })
	require.NoError(t, err)
	c.Finish(p)
	for _, m := range sched.Drain() {
		p.Free(m)
	}
	return c, p
}

func TestCBR_DeliversEveryDatagramIntact(t *testing.T) {
	// GIVEN the default source: 1228-byte datagrams fragmented at 576
	cfg := DefaultCBRConfig()

	// WHEN it runs for 20 intervals
	c, p := runSingle(t, cfg, 20*sim.Millisecond)

	// THEN every datagram that had time to arrive was reassembled and verified
	s := c.Stats()
	assert.Zero(t, s.Corrupt)
	assert.Positive(t, s.Delivered)
	assert.Equal(t, 3*s.Sent, s.FragmentsSent)
	assert.Equal(t, int64(cfg.PacketSize)*s.Delivered, s.BytesDelivered)
	assert.Equal(t, int64(1228)*s.Sent, s.BytesSent)
	assert.Equal(t, cfg.RemoteDelay, s.MeanLatency())
	assert.LessOrEqual(t, s.Delivered, s.Sent)

	// AND nothing is left allocated after teardown
	assert.Zero(t, c.Pending())
	assert.Zero(t, p.Stats().LiveBytes)
}

func TestCBR_VirtualPayloadAndPoisson(t *testing.T) {
	cfg := DefaultCBRConfig()
	cfg.Arrival = ArrivalPoisson
	cfg.PacketSize = 64
	cfg.VirtualSize = 4000
	cfg.MTU = 1500

	c, p := runSingle(t, cfg, 50*sim.Millisecond)
	s := c.Stats()
	assert.Zero(t, s.Corrupt)
	assert.Positive(t, s.Delivered)
	assert.Equal(t, 3*s.Sent, s.FragmentsSent, "4092 bytes at 1500")
	assert.Equal(t, int64(4064)*s.Delivered, s.BytesDelivered)
	assert.Zero(t, p.Stats().LiveBytes)
}

func TestCBR_FinishCountsIncomplete(t *testing.T) {
	// GIVEN one fragment of a three-fragment datagram
	p := newPartition(t)
	c, err := NewCBR(DefaultCBRConfig(), 0, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	f := p.New(LayerNetwork, ProtocolIP, EventData)
	fi, err := f.AddInfo(fragmentInfoSize, InfoFragment)
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(fi[14:16], 3)
	require.NoError(t, c.Handle(p, f))
	assert.Equal(t, 1, c.Pending())

	// WHEN the client finishes
	c.Finish(p)

	// THEN the partial datagram is discarded
	assert.Equal(t, int64(1), c.Stats().Incomplete)
	assert.Equal(t, sim.StateFreed, f.State())
}

func TestCBR_CorruptInputIsCountedNotFatal(t *testing.T) {
	p := newPartition(t)
	c, err := NewCBR(DefaultCBRConfig(), 0, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	// no fragment info
	require.NoError(t, c.Handle(p, p.New(LayerNetwork, ProtocolIP, EventData)))

	// a complete single-fragment datagram with no IP header
	m := newDatagram(t, p, 8)
	fi, err := m.AddInfo(fragmentInfoSize, InfoFragment)
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(fi[14:16], 1)
	require.NoError(t, c.Handle(p, m))

	assert.Equal(t, int64(2), c.Stats().Corrupt)
	assert.Zero(t, c.Stats().Delivered)
	assert.Zero(t, p.Stats().LiveBytes)
}

func TestCBR_UnexpectedEvent(t *testing.T) {
	p := newPartition(t)
	c, err := NewCBR(DefaultCBRConfig(), 0, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	m := p.New(LayerApp, ProtocolCBR, 99)

	err = c.Handle(p, m)
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
	assert.NotEqual(t, sim.StateActive, m.State())
}

func TestCBR_StartNeedsHeadroom(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Headroom = 16
	p := sim.NewPartition(0, cfg, scheduler.New())
	c, err := NewCBR(DefaultCBRConfig(), 0, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.ErrorContains(t, c.Start(p), "headroom 16")
}

func TestCBRConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CBRConfig)
		wantErr string
	}{
		{name: "default", mutate: func(*CBRConfig) {}},
		{name: "zero interval", mutate: func(c *CBRConfig) { c.Interval = 0 }, wantErr: "interval"},
		{name: "unknown arrival", mutate: func(c *CBRConfig) { c.Arrival = "x" }, wantErr: "arrival"},
		{name: "oversized datagram", mutate: func(c *CBRConfig) { c.VirtualSize = 70000 }, wantErr: "16-bit"},
		{name: "zero mtu", mutate: func(c *CBRConfig) { c.MTU = 0 }, wantErr: "mtu"},
		{name: "no nodes", mutate: func(c *CBRConfig) { c.NodesPerPartition = 0 }, wantErr: "nodes per partition"},
		{name: "negative probes", mutate: func(c *CBRConfig) { c.ProbesPerEpoch = -1 }, wantErr: "probe"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultCBRConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestProber_ProducesDetachedProbesInWindow(t *testing.T) {
	// GIVEN a prober of five 32-byte probes
	w := NewProber(0, 5, 32, rand.New(rand.NewSource(3)))
	var inbox sim.SyncQueue

	// WHEN it produces for [100, 200)
	require.NoError(t, w.Produce(context.Background(), &inbox, 100, 200))

	// THEN five detached probes wait in the inbox, due inside the window
	require.Equal(t, 5, inbox.Len())
	for i, m := range sim.Unchain(inbox.DequeueAll()) {
		assert.True(t, m.Detached())
		assert.GreaterOrEqual(t, m.DeliveryTime(), sim.Time(100))
		assert.Less(t, m.DeliveryTime(), sim.Time(200))
		seq := binary.LittleEndian.Uint64(m.Info(sim.InfoDefault))
		assert.Equal(t, uint64(i+1), seq)
		assert.Equal(t, -1, VerifyPattern(m.Packet(), seq))
	}
}

func TestProber_HandledByPartition(t *testing.T) {
	// GIVEN probes handed to a partition's inbox
	sched := scheduler.New()
	p := sim.NewPartition(0, sim.DefaultConfig(), sched)
	c, err := NewCBR(DefaultCBRConfig(), 0, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, NewProber(0, 4, 16, rand.New(rand.NewSource(3))).Produce(context.Background(), p.Inbox(), 0, 10))

	// WHEN the partition drains its inbox and runs
	assert.Equal(t, 4, p.DrainInbox())
	_, err = sched.RunUntil(10, func(m *sim.Message) error { return c.Handle(p, m) })

	// THEN every probe was verified and freed
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Stats().Probes)
	assert.Zero(t, c.Stats().Corrupt)
}

func TestProber_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var inbox sim.SyncQueue
	err := NewProber(0, 3, 0, rand.New(rand.NewSource(1))).Produce(ctx, &inbox, 0, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inbox.Len())
}
