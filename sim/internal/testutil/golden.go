// Package testutil provides shared test infrastructure for the message core.
// It consolidates the golden message dataset and builders used across the
// sim/ black-box tests and the collaborator packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/scheduler"
)

// GoldenDataset represents the structure of testdata/golden_messages.json.
type GoldenDataset struct {
	Tests []GoldenMessage `json:"tests"`
}

// GoldenMessage is a message recipe and the sizes it must produce.
type GoldenMessage struct {
	Name        string           `json:"name"`
	PacketSize  int              `json:"packet_size"`
	VirtualSize int              `json:"virtual_size"`
	Headers     []GoldenHeader   `json:"headers"`
	Infos       []GoldenInfo     `json:"infos"`
	MTU         int              `json:"mtu"`
	Expected    GoldenMessageOut `json:"expected"`
}

// GoldenHeader is one header pushed after the packet is allocated.
type GoldenHeader struct {
	Protocol sim.Protocol `json:"protocol"`
	Size     int          `json:"size"`
}

// GoldenInfo is one attachment added to the message.
type GoldenInfo struct {
	Type sim.InfoType `json:"type"`
	Size int          `json:"size"`
}

// GoldenMessageOut holds the expected observable sizes.
type GoldenMessageOut struct {
	TotalSize   int `json:"total_size"`
	NumHeaders  int `json:"num_headers"`
	EncodedSize int `json:"encoded_size"`
	Fragments   int `json:"fragments"`
}

// OriginProtocol is the protocol golden packets are allocated with.
const OriginProtocol sim.Protocol = 100

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "golden_messages.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// NewPartition returns partition 0 with the default configuration and its
// own scheduler.
func NewPartition(t *testing.T) *sim.Partition {
	t.Helper()
	return sim.NewPartition(0, sim.DefaultConfig(), scheduler.New())
}

// Build allocates the golden recipe on p. Packet bytes are filled with
// their index so copies can be checked with VerifyIndexPattern.
func (g GoldenMessage) Build(t *testing.T, p *sim.Partition) *sim.Message {
	t.Helper()
	m := p.New(3, OriginProtocol, 2)
	if err := m.AllocPacket(g.PacketSize, OriginProtocol); err != nil {
		t.Fatalf("%s: AllocPacket: %v", g.Name, err)
	}
	FillIndexPattern(m.Packet())
	if g.VirtualSize > 0 {
		m.AddVirtualPayload(g.VirtualSize)
	}
	for _, h := range g.Headers {
		m.AddHeader(h.Size, h.Protocol)
	}
	for _, in := range g.Infos {
		buf, err := m.AddInfo(in.Size, in.Type)
		if err != nil {
			t.Fatalf("%s: AddInfo: %v", g.Name, err)
		}
		for i := range buf {
			buf[i] = byte(in.Type) ^ byte(i)
		}
	}
	return m
}

// FillIndexPattern sets b[i] = byte(i).
func FillIndexPattern(b []byte) {
	for i := range b {
		b[i] = byte(i)
	}
}

// VerifyIndexPattern reports a test error for the first byte of b that
// differs from FillIndexPattern starting at offset.
func VerifyIndexPattern(t *testing.T, b []byte, offset int) {
	t.Helper()
	for i := range b {
		if want := byte(offset + i); b[i] != want {
			t.Errorf("byte %d: got %#x, want %#x", offset+i, b[i], want)
			return
		}
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
