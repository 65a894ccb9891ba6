package trace

import "sort"

// TraceSummary aggregates statistics from one or more Recorders.
type TraceSummary struct {
	TotalSends        int
	RemoteSends       int
	TotalFrees        int
	Outstanding       int // sends not matched by a free
	UniqueClasses     int
	ClassDistribution map[Class]ClassCounts
	Truncated         int
}

// Summarize computes aggregate statistics from recorders.
// Safe for nil recorders (they contribute nothing).
func Summarize(recorders ...*Recorder) *TraceSummary {
	summary := &TraceSummary{
		ClassDistribution: make(map[Class]ClassCounts),
	}
	for _, r := range recorders {
		if r == nil {
			continue
		}
		summary.Truncated += r.Truncated
		for c, cc := range r.Counts {
			agg := summary.ClassDistribution[c]
			agg.Sends += cc.Sends
			agg.RemoteSends += cc.RemoteSends
			agg.Frees += cc.Frees
			summary.ClassDistribution[c] = agg
			summary.TotalSends += cc.Sends
			summary.RemoteSends += cc.RemoteSends
			summary.TotalFrees += cc.Frees
		}
	}
	summary.Outstanding = summary.TotalSends - summary.TotalFrees
	summary.UniqueClasses = len(summary.ClassDistribution)
	return summary
}

// SortedClasses returns the summarized classes in ascending order.
func (s *TraceSummary) SortedClasses() []Class {
	out := make([]Class, 0, len(s.ClassDistribution))
	for c := range s.ClassDistribution {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Protocol != b.Protocol {
			return a.Protocol < b.Protocol
		}
		return a.Event < b.Event
	})
	return out
}
