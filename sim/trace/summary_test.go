package trace

import "testing"

func TestSummarize_NoRecorders_ZeroValues(t *testing.T) {
	// GIVEN no recorders (tracing disabled everywhere)
	// WHEN summarized
	summary := Summarize(nil, nil)

	// THEN all counts are zero
	if summary.TotalSends != 0 || summary.TotalFrees != 0 || summary.RemoteSends != 0 {
		t.Errorf("expected zero totals, got %+v", summary)
	}
	if summary.UniqueClasses != 0 || len(summary.ClassDistribution) != 0 {
		t.Error("expected empty class distribution")
	}
}

func TestSummarize_MultipleRecorders_AggregatesByClass(t *testing.T) {
	// GIVEN two partitions' recorders sharing one class
	a := NewRecorder(0, TraceConfig{Level: TraceLevelCounts})
	b := NewRecorder(1, TraceConfig{Level: TraceLevelCounts})
	shared := Class{Layer: 5, Protocol: 9, Event: 2}
	a.Counts[shared] = &ClassCounts{Sends: 3, RemoteSends: 1, Frees: 2}
	b.Counts[shared] = &ClassCounts{Sends: 2, RemoteSends: 2, Frees: 2}
	b.Counts[Class{Layer: 1}] = &ClassCounts{Sends: 1}

	// WHEN summarized
	summary := Summarize(a, b)

	// THEN totals and per-class sums are combined
	if summary.TotalSends != 6 || summary.RemoteSends != 3 || summary.TotalFrees != 4 {
		t.Errorf("unexpected totals %+v", summary)
	}
	if summary.Outstanding != 2 {
		t.Errorf("expected 2 outstanding, got %d", summary.Outstanding)
	}
	if summary.UniqueClasses != 2 {
		t.Errorf("expected 2 classes, got %d", summary.UniqueClasses)
	}
	if got := summary.ClassDistribution[shared]; got.Sends != 5 || got.Frees != 4 {
		t.Errorf("unexpected shared class counts %+v", got)
	}
	classes := summary.SortedClasses()
	if classes[0].Layer != 1 || classes[1] != shared {
		t.Errorf("expected classes sorted by layer, got %v", classes)
	}
}
