package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/bfrggit/qualnet-up-sub002/sim"
)

// printReport writes the run summary in a human-readable form.
func printReport(w io.Writer, out *runOutput) {
	res := out.Result
	fmt.Fprintf(w, "=== Run %s ===\n", out.RunID)
	fmt.Fprintf(w, "Epochs:             %s\n", humanize.Comma(int64(res.Epochs)))
	fmt.Fprintf(w, "Events:             %s\n", humanize.Comma(res.Events))
	fmt.Fprintf(w, "Cross-partition:    %s messages in %s frames (%s)\n",
		humanize.Comma(int64(res.Received)), humanize.Comma(int64(res.Transport.Frames)),
		humanize.IBytes(res.Transport.Bytes))
	fmt.Fprintf(w, "Worker hand-offs:   %s\n", humanize.Comma(int64(res.Drained)))
	fmt.Fprintf(w, "In flight at end:   %s\n", humanize.Comma(int64(res.InFlight)))
	if out.Wall > 0 {
		fmt.Fprintf(w, "Wall time:          %v (%s events/s)\n", out.Wall,
			humanize.CommafWithDigits(float64(res.Events)/out.Wall.Seconds(), 0))
	}

	t := out.Traffic
	fmt.Fprintf(w, "\n=== Traffic ===\n")
	fmt.Fprintf(w, "Datagrams sent:     %s (%s, %s fragments)\n",
		humanize.Comma(t.Sent), humanize.IBytes(uint64(t.BytesSent)), humanize.Comma(t.FragmentsSent))
	fmt.Fprintf(w, "Datagrams received: %s (%s)\n", humanize.Comma(t.Delivered), humanize.IBytes(uint64(t.BytesDelivered)))
	fmt.Fprintf(w, "Mean latency:       %v\n", t.MeanLatency())
	fmt.Fprintf(w, "Corrupt:            %s\n", humanize.Comma(t.Corrupt))
	fmt.Fprintf(w, "Incomplete:         %s\n", humanize.Comma(t.Incomplete))
	if t.Probes > 0 {
		fmt.Fprintf(w, "Probes:             %s\n", humanize.Comma(t.Probes))
	}

	fmt.Fprintf(w, "\n=== Allocator ===\n")
	for i, a := range res.Allocator {
		fmt.Fprintf(w, "partition %d: peak %s, events %s, payloads %s, infos %s\n", i,
			humanize.IBytes(uint64(a.PeakBytes)), poolLine(a.Events), poolLine(a.Payloads), poolLine(a.Infos))
	}

	if s := out.Trace; s != nil && s.UniqueClasses > 0 {
		fmt.Fprintf(w, "\n=== Trace ===\n")
		fmt.Fprintf(w, "Sends: %s (remote %s), frees: %s\n",
			humanize.Comma(int64(s.TotalSends)), humanize.Comma(int64(s.RemoteSends)), humanize.Comma(int64(s.TotalFrees)))
		for _, c := range s.SortedClasses() {
			cc := s.ClassDistribution[c]
			fmt.Fprintf(w, "  %-12s sends=%d remote=%d frees=%d\n", c, cc.Sends, cc.RemoteSends, cc.Frees)
		}
		if s.Truncated > 0 {
			fmt.Fprintf(w, "  (%d records truncated)\n", s.Truncated)
		}
	}
}

func poolLine(s sim.PoolStats) string {
	total := s.Hits + s.Misses
	if total == 0 {
		return "idle"
	}
	return fmt.Sprintf("%.1f%% hit of %s", 100*float64(s.Hits)/float64(total), humanize.Comma(int64(total)))
}
