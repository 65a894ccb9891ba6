package cluster

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/workload"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

func newDeployment(partitions int) DeploymentConfig {
	return DeploymentConfig{
		NumPartitions: partitions,
		Horizon:       20 * sim.Millisecond,
		Lookahead:     sim.Millisecond,
		Message:       sim.DefaultConfig(),
	}
}

// cbrComponents wires one CBR client and optionally a prober per partition,
// fetching every RNG stream up front.
func cbrComponents(t *testing.T, d DeploymentConfig, cfg workload.CBRConfig, seed int64) (Components, []*workload.CBR) {
	t.Helper()
	rng := workload.NewPartitionedRNG(seed)
	clients := make([]*workload.CBR, d.NumPartitions)
	return Components{
		Protocol: func(p *sim.Partition) (Protocol, error) {
			c, err := workload.NewCBR(cfg, p.ID(), d.NumPartitions, rng.ForPartition(workload.SubsystemArrival, p.ID()))
			clients[p.ID()] = c
			return c, err
		},
		Worker: func(p *sim.Partition) Worker {
			if cfg.ProbesPerEpoch == 0 {
				return nil
			}
			return workload.NewProber(p.ID(), cfg.ProbesPerEpoch, cfg.ProbeSize, rng.ForPartition(workload.SubsystemProbe, p.ID()))
		},
	}, clients
}

func sumStats(clients []*workload.CBR) workload.CBRStats {
	var s workload.CBRStats
	for _, c := range clients {
		s.Add(c.Stats())
	}
	return s
}

func TestClusterSimulator_CrossPartitionDelivery(t *testing.T) {
	// GIVEN three partitions sending CBR traffic around a ring, with probes
	d := newDeployment(3)
	cfg := workload.DefaultCBRConfig()
	cfg.ProbesPerEpoch = 2
	comps, clients := cbrComponents(t, d, cfg, 42)
	cs, err := NewClusterSimulator(d, comps)
	require.NoError(t, err)

	// WHEN the cluster runs to the horizon
	res, err := cs.Run(context.Background())
	require.NoError(t, err)

	// THEN every epoch ran and every fragment crossed partitions intact
	assert.Equal(t, 20, res.Epochs)
	s := sumStats(clients)
	assert.Zero(t, s.Corrupt)
	assert.Zero(t, s.Incomplete)
	assert.Positive(t, s.Delivered)
	assert.Equal(t, int(s.FragmentsSent), res.Received)
	assert.Equal(t, 3*s.Delivered, s.FragmentsReceived)
	assert.Equal(t, cfg.RemoteDelay, s.MeanLatency())
	assert.Positive(t, res.Transport.Frames)

	// AND probes produced in one epoch were handled in the next
	assert.Equal(t, int64(19*3*cfg.ProbesPerEpoch), s.Probes)
	assert.Equal(t, int(s.Probes), res.Drained)

	// AND what remains at the horizon is timers, the last probes and
	// fragments due later
	timers := 3 * cfg.NodesPerPartition
	lastProbes := 3 * cfg.ProbesPerEpoch
	assert.Equal(t, timers+lastProbes+int(s.FragmentsSent-s.FragmentsReceived), res.InFlight)

	// AND every partition released all of its storage
	require.Len(t, res.Allocator, 3)
	for i, a := range res.Allocator {
		assert.Zero(t, a.LiveBytes, "partition %d", i)
	}
}

func TestClusterSimulator_Deterministic(t *testing.T) {
	run := func() (*Result, workload.CBRStats) {
		d := newDeployment(4)
		cfg := workload.DefaultCBRConfig()
		cfg.Arrival = workload.ArrivalPoisson
		cfg.ProbesPerEpoch = 3
		comps, clients := cbrComponents(t, d, cfg, 7)
		cs, err := NewClusterSimulator(d, comps)
		require.NoError(t, err)
		res, err := cs.Run(context.Background())
		require.NoError(t, err)
		return res, sumStats(clients)
	}

	res1, stats1 := run()
	res2, stats2 := run()
	assert.Equal(t, res1, res2)
	assert.Equal(t, stats1, stats2)
}

func TestClusterSimulator_SinglePartition(t *testing.T) {
	d := newDeployment(1)
	comps, clients := cbrComponents(t, d, workload.DefaultCBRConfig(), 1)
	cs, err := NewClusterSimulator(d, comps)
	require.NoError(t, err)

	res, err := cs.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Received, "a single partition sends to itself")
	assert.Zero(t, res.Transport.Frames)
	assert.Positive(t, clients[0].Stats().Delivered)
}

func TestClusterSimulator_RemoteDelayBelowLookahead_ReturnsErrCausality(t *testing.T) {
	// GIVEN a link delay shorter than the epoch
	d := newDeployment(2)
	cfg := workload.DefaultCBRConfig()
	cfg.RemoteDelay = sim.Nanosecond
	comps, _ := cbrComponents(t, d, cfg, 1)
	cs, err := NewClusterSimulator(d, comps)
	require.NoError(t, err)

	// WHEN the cluster runs
	_, err = cs.Run(context.Background())

	// THEN the receiver rejects messages due in its past
	assert.ErrorIs(t, err, sim.ErrCausality)
}

// doubleFree frees every message it is given twice.
type doubleFree struct{}

func (doubleFree) Start(p *sim.Partition) error {
	p.Send(p.New(1, 1, 1), 0)
	return nil
}

func (doubleFree) Handle(p *sim.Partition, m *sim.Message) error {
	p.Free(m)
	p.Free(m)
	return nil
}

func (doubleFree) Finish(*sim.Partition) {}

func TestClusterSimulator_PartitionPanic_ReturnsError(t *testing.T) {
	cs, err := NewClusterSimulator(newDeployment(2), Components{
		Protocol: func(*sim.Partition) (Protocol, error) { return doubleFree{}, nil },
	})
	require.NoError(t, err)

	_, err = cs.Run(context.Background())

	var ue *sim.UsageError
	require.True(t, errors.As(err, &ue), "got %v", err)
	assert.Equal(t, "Partition.Free", ue.Op)
	assert.Contains(t, err.Error(), "panicked")
}

func TestClusterSimulator_CancelledContext(t *testing.T) {
	d := newDeployment(2)
	comps, _ := cbrComponents(t, d, workload.DefaultCBRConfig(), 1)
	cs, err := NewClusterSimulator(d, comps)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = cs.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClusterSimulator_RunTwice_Panics(t *testing.T) {
	d := newDeployment(1)
	d.Horizon = d.Lookahead
	comps, _ := cbrComponents(t, d, workload.DefaultCBRConfig(), 1)
	cs, err := NewClusterSimulator(d, comps)
	require.NoError(t, err)
	_, err = cs.Run(context.Background())
	require.NoError(t, err)
	assert.PanicsWithValue(t, "ClusterSimulator.Run() called more than once", func() {
		_, _ = cs.Run(context.Background())
	})
}

func TestNewClusterSimulator_ProtocolError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewClusterSimulator(newDeployment(2), Components{
		Protocol: func(*sim.Partition) (Protocol, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewClusterSimulator(newDeployment(2), Components{})
	assert.ErrorContains(t, err, "no protocol factory")
}

func TestDeploymentConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DeploymentConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*DeploymentConfig) {}},
		{name: "no partitions", mutate: func(d *DeploymentConfig) { d.NumPartitions = 0 }, wantErr: "partitions"},
		{name: "zero horizon", mutate: func(d *DeploymentConfig) { d.Horizon = 0 }, wantErr: "horizon"},
		{name: "infinite horizon", mutate: func(d *DeploymentConfig) { d.Horizon = sim.MaxTime }, wantErr: "horizon"},
		{name: "zero lookahead", mutate: func(d *DeploymentConfig) { d.Lookahead = 0 }, wantErr: "lookahead"},
		{name: "bad message config", mutate: func(d *DeploymentConfig) { d.Message.Headroom = -1 }, wantErr: "message config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newDeployment(2)
			tc.mutate(&d)
			err := d.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestDeploymentConfig_Epochs(t *testing.T) {
	d := newDeployment(1)
	assert.Equal(t, 20, d.Epochs())
	d.Horizon = 2*sim.Millisecond + 1
	assert.Equal(t, 3, d.Epochs())
}
