package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/cluster"
	"github.com/bfrggit/qualnet-up-sub002/sim/trace"
	"github.com/bfrggit/qualnet-up-sub002/sim/workload"
	"gopkg.in/yaml.v3"
)

// ClusterSection is the `cluster` section of a run file.
type ClusterSection struct {
	Partitions int      `yaml:"partitions"`
	Horizon    sim.Time `yaml:"horizon"`
	Lookahead  sim.Time `yaml:"lookahead"`
	Seed       int64    `yaml:"seed"`
}

// TraceSection is the `trace` section of a run file.
type TraceSection struct {
	Level      string `yaml:"level"`
	MaxRecords int    `yaml:"max_records"`
}

// RunConfig represents the full run file. All top-level sections must be
// listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Message  sim.Config         `yaml:"message"`
	Cluster  ClusterSection     `yaml:"cluster"`
	Workload workload.CBRConfig `yaml:"workload"`
	Trace    TraceSection       `yaml:"trace"`
}

// DefaultRunConfig returns two partitions exchanging CBR traffic for one
// simulated second.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Message: sim.DefaultConfig(),
		Cluster: ClusterSection{
			Partitions: 2,
			Horizon:    sim.Second,
			Lookahead:  sim.Millisecond,
			Seed:       42,
		},
		Workload: workload.DefaultCBRConfig(),
		Trace:    TraceSection{Level: string(trace.TraceLevelNone)},
	}
}

// LoadRunConfig overlays the YAML file at path on the defaults.
// Unknown fields are errors so typos do not silently fall back to defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	return cfg, nil
}

// Deployment converts the cluster and message sections.
func (c RunConfig) Deployment() cluster.DeploymentConfig {
	return cluster.DeploymentConfig{
		NumPartitions: c.Cluster.Partitions,
		Horizon:       c.Cluster.Horizon,
		Lookahead:     c.Cluster.Lookahead,
		Message:       c.Message,
	}
}

// Validate checks every section and the constraints between them.
func (c RunConfig) Validate() error {
	if err := c.Deployment().Validate(); err != nil {
		return err
	}
	if err := c.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	if c.Cluster.Partitions > 1 && c.Workload.RemoteDelay < c.Cluster.Lookahead {
		return fmt.Errorf("remote delay %v is shorter than lookahead %v", c.Workload.RemoteDelay, c.Cluster.Lookahead)
	}
	if c.Message.Headroom < workload.UDPHeaderSize+workload.IPHeaderSize {
		return fmt.Errorf("headroom %d cannot hold UDP and IP headers", c.Message.Headroom)
	}
	return nil
}
