package trace

import "github.com/bfrggit/qualnet-up-sub002/sim"

// TraceLevel controls the verbosity of lifecycle tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelCounts keeps per-classification counters only.
	TraceLevelCounts TraceLevel = "counts"
	// TraceLevelLifecycle additionally records every send and free.
	TraceLevelLifecycle TraceLevel = "lifecycle"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelCounts:    true,
	TraceLevelLifecycle: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level      TraceLevel
	MaxRecords int // cap on recorded lifecycle events per partition (0 = unlimited)
}

// Recorder collects lifecycle events of one partition. It implements
// sim.Observer and, like the partition, is used from a single goroutine.
type Recorder struct {
	Config    TraceConfig
	Partition int32
	Counts    map[Class]*ClassCounts
	Records   []LifecycleRecord
	Truncated int // records dropped past MaxRecords
}

var _ sim.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder ready for recording, or nil when the level
// is none so callers can skip installing it.
func NewRecorder(partition int32, config TraceConfig) *Recorder {
	if config.Level == TraceLevelNone || config.Level == "" {
		return nil
	}
	return &Recorder{
		Config:    config,
		Partition: partition,
		Counts:    make(map[Class]*ClassCounts),
		Records:   make([]LifecycleRecord, 0),
	}
}

func (r *Recorder) counts(m *sim.Message) *ClassCounts {
	c := ClassOf(m)
	cc := r.Counts[c]
	if cc == nil {
		cc = &ClassCounts{}
		r.Counts[c] = cc
	}
	return cc
}

// OnSend counts a send and, at lifecycle level, records it.
func (r *Recorder) OnSend(m *sim.Message, dest int32) {
	cc := r.counts(m)
	cc.Sends++
	remote := dest != r.Partition
	if remote {
		cc.RemoteSends++
	}
	r.record(LifecycleRecord{
		Kind:     KindSend,
		Class:    ClassOf(m),
		Order:    m.NaturalOrder(),
		Sequence: m.Sequence(),
		Clock:    m.DeliveryTime(),
		Dest:     dest,
		Bytes:    m.TotalSize(),
	})
}

// OnFree counts a free and, at lifecycle level, records it.
func (r *Recorder) OnFree(m *sim.Message) {
	r.counts(m).Frees++
	r.record(LifecycleRecord{
		Kind:     KindFree,
		Class:    ClassOf(m),
		Order:    m.NaturalOrder(),
		Sequence: m.Sequence(),
		Clock:    m.DeliveryTime(),
		Dest:     r.Partition,
		Bytes:    m.TotalSize(),
	})
}

func (r *Recorder) record(rec LifecycleRecord) {
	if r.Config.Level != TraceLevelLifecycle {
		return
	}
	if r.Config.MaxRecords > 0 && len(r.Records) >= r.Config.MaxRecords {
		r.Truncated++
		return
	}
	r.Records = append(r.Records, rec)
}
