// Package workload provides protocol clients that drive the message core the
// way a network stack does: a constant-bit-rate application whose packets
// pick up UDP- and IP-style headers, are fragmented at an MTU, cross to a
// peer partition and are reassembled and unwrapped there, plus a probe
// producer that runs on a worker goroutine.
package workload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/sirupsen/logrus"
)

// ErrUnexpectedEvent is returned for events no client in this package handles.
var ErrUnexpectedEvent = errors.New("unexpected event")

// CBRConfig parameterizes the constant-bit-rate client.
type CBRConfig struct {
	Interval          sim.Time `yaml:"interval"`            // mean gap between packets per node
	Arrival           string   `yaml:"arrival"`             // constant | poisson | gamma
	ArrivalCV         float64  `yaml:"arrival_cv"`          // gamma only
	PacketSize        int      `yaml:"packet_size"`         // real application bytes
	VirtualSize       int      `yaml:"virtual_size"`        // simulated-only bytes
	MTU               int      `yaml:"mtu"`                 // fragmentation unit
	RemoteDelay       sim.Time `yaml:"remote_delay"`        // link delay to the peer partition
	NodesPerPartition int      `yaml:"nodes_per_partition"` // traffic sources per partition
	ProbesPerEpoch    int      `yaml:"probes_per_epoch"`    // worker-produced probes (0 = none)
	ProbeSize         int      `yaml:"probe_size"`
}

// DefaultCBRConfig returns a 1 ms, 1200-byte source fragmented at 576 bytes.
func DefaultCBRConfig() CBRConfig {
	return CBRConfig{
		Interval:          sim.Millisecond,
		Arrival:           ArrivalConstant,
		PacketSize:        1200,
		MTU:               576,
		RemoteDelay:       sim.Millisecond,
		NodesPerPartition: 4,
		ProbeSize:         64,
	}
}

// Validate checks that the configuration can produce well-formed packets.
func (c CBRConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %d", c.Interval)
	}
	if !IsValidArrival(c.Arrival) {
		return fmt.Errorf("unknown arrival process %q", c.Arrival)
	}
	if c.PacketSize < 0 || c.VirtualSize < 0 {
		return fmt.Errorf("packet sizes must be >= 0, got real=%d virtual=%d", c.PacketSize, c.VirtualSize)
	}
	if total := c.PacketSize + c.VirtualSize + UDPHeaderSize + IPHeaderSize; total > 0xffff {
		return fmt.Errorf("datagram of %d bytes exceeds the 16-bit length field", total)
	}
	if c.MTU <= 0 {
		return fmt.Errorf("mtu must be > 0, got %d", c.MTU)
	}
	if c.RemoteDelay < 0 {
		return fmt.Errorf("remote delay must be >= 0, got %d", c.RemoteDelay)
	}
	if c.NodesPerPartition < 1 {
		return fmt.Errorf("nodes per partition must be >= 1, got %d", c.NodesPerPartition)
	}
	if c.ProbesPerEpoch < 0 || c.ProbeSize < 0 {
		return fmt.Errorf("probe count and size must be >= 0")
	}
	return nil
}

// CBRStats counts one client's traffic.
type CBRStats struct {
	Sent              int64
	FragmentsSent     int64
	BytesSent         int64
	FragmentsReceived int64
	Delivered         int64
	BytesDelivered    int64
	Corrupt           int64
	Incomplete        int64 // datagrams still missing fragments at Finish
	Probes            int64
	LatencySum        sim.Time
}

// Add accumulates o into s.
func (s *CBRStats) Add(o CBRStats) {
	s.Sent += o.Sent
	s.FragmentsSent += o.FragmentsSent
	s.BytesSent += o.BytesSent
	s.FragmentsReceived += o.FragmentsReceived
	s.Delivered += o.Delivered
	s.BytesDelivered += o.BytesDelivered
	s.Corrupt += o.Corrupt
	s.Incomplete += o.Incomplete
	s.Probes += o.Probes
	s.LatencySum += o.LatencySum
}

// MeanLatency returns the mean application-to-application delay.
func (s CBRStats) MeanLatency() sim.Time {
	if s.Delivered == 0 {
		return 0
	}
	return s.LatencySum / sim.Time(s.Delivered)
}

type fragmentKey struct {
	node sim.NodeID
	seq  uint64
}

type reassembly struct {
	frags []*sim.Message
	got   int
}

// CBR is one partition's constant-bit-rate client. Each of its nodes sends
// to the same-numbered node of the next partition (ring order).
type CBR struct {
	cfg        CBRConfig
	partition  int32
	partitions int
	rng        *rand.Rand
	arrival    ArrivalSampler

	appSeq  uint64
	pending map[fragmentKey]*reassembly
	stats   CBRStats
}

// NewCBR creates the client of partition id out of n.
func NewCBR(cfg CBRConfig, id int32, n int, rng *rand.Rand) (*CBR, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CBR config: %w", err)
	}
	arrival, err := NewArrivalSampler(cfg.Arrival, cfg.Interval, cfg.ArrivalCV)
	if err != nil {
		return nil, err
	}
	return &CBR{
		cfg:        cfg,
		partition:  id,
		partitions: n,
		rng:        rng,
		arrival:    arrival,
		pending:    make(map[fragmentKey]*reassembly),
	}, nil
}

// Stats returns the client's counters.
func (c *CBR) Stats() CBRStats { return c.stats }

// Pending returns the number of datagrams awaiting fragments.
func (c *CBR) Pending() int { return len(c.pending) }

// Start schedules one timer per node, each at a random offset within the
// first interval.
func (c *CBR) Start(p *sim.Partition) error {
	if h := p.Config().Headroom; h < UDPHeaderSize+IPHeaderSize {
		return fmt.Errorf("partition %d: headroom %d cannot hold UDP and IP headers", p.ID(), h)
	}
	for k := 0; k < c.cfg.NodesPerPartition; k++ {
		t := p.New(LayerApp, ProtocolCBR, EventTimer)
		t.SetOriginNode(c.node(c.partition, k))
		t.SetInstance(int32(k))
		offset := sim.Time(c.rng.Int63n(int64(c.cfg.Interval)))
		t.SetTimerExpiry(p.Now() + offset)
		p.Send(t, offset)
	}
	return nil
}

// Handle dispatches a delivered message. It owns m.
func (c *CBR) Handle(p *sim.Partition, m *sim.Message) error {
	switch m.Event() {
	case EventTimer:
		return c.onTimer(p, m)
	case EventData:
		return c.onFragment(p, m)
	case EventProbe:
		c.onProbe(p, m)
		return nil
	default:
		err := fmt.Errorf("partition %d: %v: %w", p.ID(), m, ErrUnexpectedEvent)
		p.Free(m)
		return err
	}
}

// Finish discards incomplete reassemblies.
func (c *CBR) Finish(p *sim.Partition) {
	for key, r := range c.pending {
		for _, f := range r.frags {
			if f != nil {
				p.Free(f)
			}
		}
		delete(c.pending, key)
		c.stats.Incomplete++
	}
	if c.stats.Incomplete > 0 {
		logrus.Debugf("partition %d: %d datagrams incomplete at finish", p.ID(), c.stats.Incomplete)
	}
}

func (c *CBR) node(partition int32, k int) sim.NodeID {
	return sim.NodeID(int(partition)*c.cfg.NodesPerPartition + k)
}

func (c *CBR) onTimer(p *sim.Partition, t *sim.Message) error {
	if err := c.sendDatagram(p, t.OriginNode(), int(t.Instance())); err != nil {
		p.Free(t)
		return err
	}
	gap := c.arrival.SampleIAT(c.rng)
	t.SetTimerExpiry(p.Now() + gap)
	p.Send(t, gap)
	return nil
}

// sendDatagram builds one application packet, wraps it in UDP and IP,
// fragments it at the MTU and sends the fragments to the peer partition.
func (c *CBR) sendDatagram(p *sim.Partition, src sim.NodeID, k int) error {
	c.appSeq++
	seq := c.appSeq
	dest := (c.partition + 1) % int32(c.partitions)

	m := p.New(LayerApp, ProtocolCBR, EventData)
	m.SetOriginNode(src)
	m.SetInstance(int32(k))
	if err := m.AllocPacket(c.cfg.PacketSize, ProtocolCBR); err != nil {
		p.Free(m)
		return fmt.Errorf("node %d packet %d: %w", src, seq, err)
	}
	FillPattern(m.Packet(), seq)
	if c.cfg.VirtualSize > 0 {
		m.AddVirtualPayload(c.cfg.VirtualSize)
	}
	app, err := m.AddInfo(appInfoSize, sim.InfoDefault)
	if err != nil {
		p.Free(m)
		return fmt.Errorf("node %d packet %d: %w", src, seq, err)
	}
	binary.LittleEndian.PutUint32(app[0:4], uint32(src))
	binary.LittleEndian.PutUint64(app[4:12], seq)
	ts, err := m.AddInfo(timestampSize, InfoTimestamp)
	if err != nil {
		p.Free(m)
		return fmt.Errorf("node %d packet %d: %w", src, seq, err)
	}
	binary.LittleEndian.PutUint64(ts, uint64(p.Now()))

	pushUDP(m, uint16(k), uint16(k))
	m.SetClass(LayerTransport, ProtocolUDP, EventData)
	pushIP(m, uint16(seq), src, c.node(dest, k))
	m.SetClass(LayerNetwork, ProtocolIP, EventData)
	total := m.TotalSize()

	frags, err := p.Fragment(m, c.cfg.MTU)
	if err != nil {
		p.Free(m)
		return fmt.Errorf("node %d packet %d: %w", src, seq, err)
	}
	for i, f := range frags {
		fi, err := f.AddInfo(fragmentInfoSize, InfoFragment)
		if err != nil {
			for _, rest := range frags[i:] {
				p.Free(rest)
			}
			return fmt.Errorf("node %d packet %d fragment %d: %w", src, seq, i, err)
		}
		binary.LittleEndian.PutUint32(fi[0:4], uint32(src))
		binary.LittleEndian.PutUint64(fi[4:12], seq)
		binary.LittleEndian.PutUint16(fi[12:14], uint16(i))
		binary.LittleEndian.PutUint16(fi[14:16], uint16(len(frags)))
		p.SendRemote(f, dest, c.cfg.RemoteDelay)
	}
	c.stats.Sent++
	c.stats.FragmentsSent += int64(len(frags))
	c.stats.BytesSent += int64(total)
	return nil
}

func (c *CBR) corrupt(p *sim.Partition, m *sim.Message, format string, args ...any) {
	logrus.Warnf("partition %d: dropping %v: %s", p.ID(), m, fmt.Sprintf(format, args...))
	c.stats.Corrupt++
	p.Free(m)
}

func (c *CBR) onFragment(p *sim.Partition, m *sim.Message) error {
	fi := m.Info(InfoFragment)
	if len(fi) != fragmentInfoSize {
		c.corrupt(p, m, "fragment info of %d bytes", len(fi))
		return nil
	}
	key := fragmentKey{
		node: sim.NodeID(binary.LittleEndian.Uint32(fi[0:4])),
		seq:  binary.LittleEndian.Uint64(fi[4:12]),
	}
	idx := int(binary.LittleEndian.Uint16(fi[12:14]))
	count := int(binary.LittleEndian.Uint16(fi[14:16]))
	if count == 0 || idx >= count {
		c.corrupt(p, m, "fragment %d of %d", idx, count)
		return nil
	}
	c.stats.FragmentsReceived++

	r := c.pending[key]
	if r == nil {
		r = &reassembly{frags: make([]*sim.Message, count)}
		c.pending[key] = r
	}
	if len(r.frags) != count || r.frags[idx] != nil {
		c.corrupt(p, m, "duplicate or inconsistent fragment %d of %d", idx, count)
		return nil
	}
	r.frags[idx] = m
	r.got++
	if r.got < count {
		return nil
	}
	delete(c.pending, key)

	whole, err := p.Reassemble(r.frags)
	if err != nil {
		for _, f := range r.frags {
			p.Free(f)
		}
		return fmt.Errorf("partition %d reassembling packet %d of node %d: %w", p.ID(), key.seq, key.node, err)
	}
	c.deliver(p, whole, key)
	return nil
}

// deliver unwraps a reassembled datagram, checks it against what the sender
// built and frees it.
func (c *CBR) deliver(p *sim.Partition, m *sim.Message, key fragmentKey) {
	m.RemoveInfo(InfoFragment)
	ip, err := popIP(m)
	if err != nil {
		c.corrupt(p, m, "%v", err)
		return
	}
	m.SetClass(LayerTransport, ProtocolUDP, EventData)
	if _, _, err := popUDP(m); err != nil {
		c.corrupt(p, m, "%v", err)
		return
	}
	m.SetClass(LayerApp, ProtocolCBR, EventData)

	if ip.src != key.node || ip.id != uint16(key.seq) {
		c.corrupt(p, m, "IP src %d id %d, expected %d/%d", ip.src, ip.id, key.node, uint16(key.seq))
		return
	}
	if tr := m.HeaderTrace(); len(tr) != 1 || tr[0].Protocol != ProtocolCBR {
		c.corrupt(p, m, "header trace %v after unwrapping", tr)
		return
	}
	if m.PacketSize() != c.cfg.PacketSize || m.VirtualSize() != c.cfg.VirtualSize {
		c.corrupt(p, m, "sizes real=%d virtual=%d", m.PacketSize(), m.VirtualSize())
		return
	}
	if at := VerifyPattern(m.Packet(), key.seq); at >= 0 {
		c.corrupt(p, m, "payload differs at byte %d", at)
		return
	}
	app := m.Info(sim.InfoDefault)
	if len(app) != appInfoSize || binary.LittleEndian.Uint64(app[4:12]) != key.seq {
		c.corrupt(p, m, "application info mismatch")
		return
	}
	if ts := m.Info(InfoTimestamp); len(ts) == timestampSize {
		c.stats.LatencySum += p.Now() - sim.Time(binary.LittleEndian.Uint64(ts))
	}
	c.stats.Delivered++
	c.stats.BytesDelivered += int64(m.TotalSize())
	p.Free(m)
}

func (c *CBR) onProbe(p *sim.Partition, m *sim.Message) {
	if info := m.Info(sim.InfoDefault); len(info) == 8 && m.HasPacket() {
		if at := VerifyPattern(m.Packet(), binary.LittleEndian.Uint64(info)); at >= 0 {
			c.corrupt(p, m, "probe payload differs at byte %d", at)
			return
		}
	}
	c.stats.Probes++
	p.Free(m)
}
