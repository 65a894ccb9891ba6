package cmd

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/scheduler"
	"github.com/bfrggit/qualnet-up-sub002/sim/workload"
)

// inspectFrame decodes a MarshalList frame and dumps every message.
func inspectFrame(w io.Writer, data []byte) error {
	p := sim.NewPartition(0, sim.DefaultConfig(), scheduler.New())
	head, n, err := p.UnmarshalList(data)
	if err != nil {
		return err
	}
	if n < len(data) {
		logrus.Warnf("%d trailing bytes after message list", len(data)-n)
	}
	i := 0
	for m := head; m != nil; m = m.Next() {
		fmt.Fprintf(w, "--- message %d (%d bytes encoded) ---\n", i, m.EncodedSize())
		m.Dump(w)
		i++
	}
	p.FreeList(head)
	return nil
}

// sampleFrame builds a short list exercising every encoded section: a
// header stack, inline and out-of-line attachments, virtual payload, a
// spectrum tail and a packed message.
func sampleFrame() ([]byte, error) {
	p := sim.NewPartition(0, sim.DefaultConfig(), scheduler.New())

	data := p.New(workload.LayerNetwork, workload.ProtocolIP, workload.EventData)
	data.SetOriginNode(7)
	if err := data.AllocPacket(32, workload.ProtocolCBR); err != nil {
		return nil, err
	}
	workload.FillPattern(data.Packet(), 1)
	data.AddVirtualPayload(1000)
	app, err := data.AddInfo(12, sim.InfoDefault)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(app, 7)
	ts, err := data.AddInfo(8, workload.InfoTimestamp)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(ts, uint64(250*sim.Microsecond))
	data.AddHeader(workload.UDPHeaderSize, workload.ProtocolUDP)
	data.AddHeader(workload.IPHeaderSize, workload.ProtocolIP)
	data.SetSpectrum(&sim.Spectrum{Frequency: 2.4e9, Bandwidth: 20e6})

	var parts []*sim.Message
	for i := 0; i < 3; i++ {
		m := p.New(workload.LayerApp, workload.ProtocolProbe, workload.EventProbe)
		if err := m.AllocPacket(8*(i+1), workload.ProtocolProbe); err != nil {
			return nil, err
		}
		workload.FillPattern(m.Packet(), uint64(i))
		info, err := m.AddInfo(8, workload.InfoFragment)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(info, uint64(i))
		parts = append(parts, m)
	}
	packed, err := p.Pack(sim.Chain(parts...))
	if err != nil {
		return nil, err
	}
	return p.MarshalList(sim.Chain(data, packed)), nil
}
