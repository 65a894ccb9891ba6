package trace

import (
	"testing"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/scheduler"
)

func newTracedPartition(t *testing.T, cfg TraceConfig) (*sim.Partition, *Recorder) {
	t.Helper()
	p := sim.NewPartition(0, sim.DefaultConfig(), scheduler.New())
	r := NewRecorder(p.ID(), cfg)
	if r != nil {
		p.SetObserver(r)
	}
	return p, r
}

func TestNewRecorder_LevelNone_ReturnsNil(t *testing.T) {
	// GIVEN trace level none
	// WHEN a recorder is created
	r := NewRecorder(0, TraceConfig{Level: TraceLevelNone})

	// THEN nothing is recorded at all
	if r != nil {
		t.Fatalf("expected nil recorder for level none, got %+v", r)
	}
}

func TestRecorder_Lifecycle_RecordsSendAndFree(t *testing.T) {
	// GIVEN a partition traced at lifecycle level
	p, r := newTracedPartition(t, TraceConfig{Level: TraceLevelLifecycle})

	// WHEN a packet is sent locally, delivered and freed
	m := p.New(3, 17, 1)
	if err := m.AllocPacket(64, 17); err != nil {
		t.Fatal(err)
	}
	p.Send(m, 5*sim.Microsecond)
	m.Deliver()
	p.Free(m)

	// THEN one send and one free are recorded in order
	if len(r.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(r.Records))
	}
	send, free := r.Records[0], r.Records[1]
	if send.Kind != KindSend || free.Kind != KindFree {
		t.Errorf("expected send then free, got %s then %s", send.Kind, free.Kind)
	}
	if send.Clock != 5*sim.Microsecond {
		t.Errorf("expected send clock 5us, got %v", send.Clock)
	}
	if send.Bytes != 64 || send.Sequence != 1 {
		t.Errorf("expected 64 bytes seq 1, got %d bytes seq %d", send.Bytes, send.Sequence)
	}
	if send.Order != free.Order {
		t.Errorf("free should carry the send's natural order: %d vs %d", send.Order, free.Order)
	}
	cc := r.Counts[Class{Layer: 3, Protocol: 17, Event: 1}]
	if cc == nil || cc.Sends != 1 || cc.Frees != 1 || cc.RemoteSends != 0 {
		t.Errorf("unexpected counts %+v", cc)
	}
}

func TestRecorder_CountsLevel_KeepsNoRecords(t *testing.T) {
	// GIVEN a partition traced at counts level
	p, r := newTracedPartition(t, TraceConfig{Level: TraceLevelCounts})

	// WHEN a message is sent to another partition
	p.SendRemote(p.New(1, 2, 3), 1, sim.Millisecond)

	// THEN it is counted as a remote send but no record is kept
	if len(r.Records) != 0 {
		t.Errorf("expected no records at counts level, got %d", len(r.Records))
	}
	cc := r.Counts[Class{Layer: 1, Protocol: 2, Event: 3}]
	if cc == nil || cc.Sends != 1 || cc.RemoteSends != 1 {
		t.Errorf("unexpected counts %+v", cc)
	}
}

func TestRecorder_MaxRecords_Truncates(t *testing.T) {
	// GIVEN a recorder capped at two records
	p, r := newTracedPartition(t, TraceConfig{Level: TraceLevelLifecycle, MaxRecords: 2})

	// WHEN five messages are freed
	for i := 0; i < 5; i++ {
		p.Free(p.New(1, 1, sim.EventType(i)))
	}

	// THEN two are kept and three counted as truncated
	if len(r.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(r.Records))
	}
	if r.Truncated != 3 {
		t.Errorf("expected 3 truncated, got %d", r.Truncated)
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, level := range []string{"", "none", "counts", "lifecycle"} {
		if !IsValidTraceLevel(level) {
			t.Errorf("expected %q to be valid", level)
		}
	}
	if IsValidTraceLevel("decisions") {
		t.Error("expected decisions to be rejected")
	}
}
