package sim

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Dump writes a diagnostic rendering of m: every scalar field, the header
// trace, each attachment as hex, and pack records.
func (m *Message) Dump(w io.Writer) {
	fmt.Fprintf(w, "message layer=%d protocol=%d event=%d state=%s\n", m.layer, m.protocol, m.event, m.state)
	fmt.Fprintf(w, "  partition=%d node=%d instance=%d detached=%t\n", m.partition, m.originNode, m.instance, m.detached)
	fmt.Fprintf(w, "  order=%d seq=%d origin=%d\n", m.naturalOrder, m.sequence, m.originProtocol)
	fmt.Fprintf(w, "  delivery=%v eot=%v scheduled=%t timer=%v created=%v\n",
		m.deliveryTime, m.eotTime, m.scheduled, m.timerExpiry, m.creationTime)
	fmt.Fprintf(w, "  packet=%d virtual=%d payload=%d headroom=%d\n", m.packetSize, m.virtualSize, len(m.payload), m.start)
	if m.spectrum != nil {
		fmt.Fprintf(w, "  frequency=%g bandwidth=%g\n", m.spectrum.Frequency, m.spectrum.Bandwidth)
	}
	for i := 0; i < m.numHeaders; i++ {
		fmt.Fprintf(w, "  header[%d] protocol=%d size=%d\n", i, m.headerProtocols[i], m.headerSizes[i])
	}
	for i := range m.infos {
		rec := &m.infos[i]
		fmt.Fprintf(w, "  info[%d] type=%d size=%d inline=%t\n", i, rec.typ, len(rec.buf), rec.storage == infoInline)
		if len(rec.buf) > 0 {
			for _, line := range strings.SplitAfter(strings.TrimRight(hex.Dump(rec.buf), "\n"), "\n") {
				fmt.Fprintf(w, "    %s", line)
			}
			fmt.Fprintln(w)
		}
	}
	for i, rec := range m.bookkeeping {
		fmt.Fprintf(w, "  pack[%d] real=%d virtual=%d infos=[%d,%d)\n", i, rec.RealSize, rec.VirtualSize, rec.InfoLo, rec.InfoHi)
	}
}

func (m *Message) String() string {
	return fmt.Sprintf("msg(%d/%d/%d #%d @%v %s)", m.layer, m.protocol, m.event, m.naturalOrder, m.deliveryTime, m.state)
}
