package cluster

import (
	"context"
	"fmt"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/scheduler"
	"github.com/bfrggit/qualnet-up-sub002/sim/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Components builds the per-partition collaborators. Protocol is required;
// Worker and Observer may be nil, and may return nil to skip a partition.
type Components struct {
	Protocol func(p *sim.Partition) (Protocol, error)
	Worker   func(p *sim.Partition) Worker
	Observer func(p *sim.Partition) sim.Observer
}

// Result summarizes a finished run.
type Result struct {
	Epochs    int
	Events    int64 // messages dispatched by all schedulers
	Received  int   // messages that crossed partitions
	Drained   int   // messages handed over by workers
	InFlight  int   // messages still queued at the horizon
	Allocator []sim.AllocatorStats
	Transport transport.Stats
}

// ClusterSimulator runs NumPartitions partitions in lookahead-bounded epochs.
// Partitions only interact through the hub, between epochs, so an epoch can
// run them in parallel without affecting the outcome.
type ClusterSimulator struct {
	config    DeploymentConfig
	instances []*Instance
	hub       *transport.Hub
	hasRun    bool
}

// NewClusterSimulator creates the partitions and their collaborators.
func NewClusterSimulator(config DeploymentConfig, comps Components) (*ClusterSimulator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment: %w", err)
	}
	if comps.Protocol == nil {
		return nil, fmt.Errorf("invalid deployment: no protocol factory")
	}
	ids := make([]int32, config.NumPartitions)
	instances := make([]*Instance, config.NumPartitions)
	for idx := range instances {
		id := int32(idx)
		ids[idx] = id
		sched := scheduler.New()
		p := sim.NewPartition(id, config.Message, sched)
		if comps.Observer != nil {
			if o := comps.Observer(p); o != nil {
				p.SetObserver(o)
			}
		}
		proto, err := comps.Protocol(p)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", id, err)
		}
		in := &Instance{partition: p, sched: sched, protocol: proto}
		if comps.Worker != nil {
			in.worker = comps.Worker(p)
		}
		instances[idx] = in
	}
	return &ClusterSimulator{
		config:    config,
		instances: instances,
		hub:       transport.NewHub(ids...),
	}, nil
}

// Instances returns the partitions' instances in id order.
func (c *ClusterSimulator) Instances() []*Instance {
	return c.instances
}

// Hub returns the transport carrying frames between partitions.
func (c *ClusterSimulator) Hub() *transport.Hub {
	return c.hub
}

// Run starts every protocol and advances all partitions to the horizon.
// Panics if called more than once.
func (c *ClusterSimulator) Run(ctx context.Context) (*Result, error) {
	if c.hasRun {
		panic("ClusterSimulator.Run() called more than once")
	}
	c.hasRun = true
	logrus.Infof("running %d partitions to %v in epochs of %v", len(c.instances), c.config.Horizon, c.config.Lookahead)

	for _, in := range c.instances {
		if err := in.protocol.Start(in.partition); err != nil {
			return nil, fmt.Errorf("starting partition %d: %w", in.partition.ID(), err)
		}
	}

	res := &Result{}
	for start := sim.Time(0); start < c.config.Horizon; {
		end := min(start+c.config.Lookahead, c.config.Horizon)
		n, err := c.epoch(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("epoch [%v, %v): %w", start, end, err)
		}
		res.Epochs++
		logrus.Debugf("epoch [%v, %v): %d events", start, end, n)
		start = end
	}

	for _, in := range c.instances {
		res.Events += in.sched.Processed()
		res.Received += in.received
		res.Drained += in.drained
		res.InFlight += in.finish()
		res.Allocator = append(res.Allocator, in.partition.Stats())
	}
	res.Transport = c.hub.Stats()
	logrus.Infof("finished %d epochs: %d events, %d cross-partition messages, %d in flight",
		res.Epochs, res.Events, res.Received, res.InFlight)
	return res, nil
}

// epoch runs every partition over [start, end) while workers produce for
// the next window, then exchanges frames. Inboxes are drained before any
// worker starts so a window's hand-offs are always scheduled one epoch later.
func (c *ClusterSimulator) epoch(ctx context.Context, start, end sim.Time) (int, error) {
	for _, in := range c.instances {
		in.drain()
	}
	counts := make([]int, len(c.instances))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range c.instances {
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := in.runEpoch(end, c.hub)
			counts[i] = n
			return err
		})
		if in.worker != nil {
			g.Go(func() error {
				return in.worker.Produce(gctx, in.partition.Inbox(), end, end+c.config.Lookahead)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	g, _ = errgroup.WithContext(ctx)
	for _, in := range c.instances {
		in := in
		g.Go(func() error { return in.receive(c.hub) })
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
