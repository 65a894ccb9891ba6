package cluster

import (
	"fmt"

	"github.com/bfrggit/qualnet-up-sub002/sim"
)

// DeploymentConfig describes a run of NumPartitions partitions sharing one
// message configuration. NumPartitions must be >= 1.
type DeploymentConfig struct {
	NumPartitions int
	Horizon       sim.Time   // simulated end time (exclusive)
	Lookahead     sim.Time   // epoch length; lower bound on cross-partition delay
	Message       sim.Config // per-partition allocator parameters
}

// Validate checks the deployment parameters.
func (d DeploymentConfig) Validate() error {
	if d.NumPartitions < 1 {
		return fmt.Errorf("partitions must be >= 1, got %d", d.NumPartitions)
	}
	if d.Horizon <= 0 || d.Horizon == sim.MaxTime {
		return fmt.Errorf("horizon must be finite and > 0, got %d", d.Horizon)
	}
	if d.Lookahead <= 0 {
		return fmt.Errorf("lookahead must be > 0, got %d", d.Lookahead)
	}
	if err := d.Message.Validate(); err != nil {
		return fmt.Errorf("message config: %w", err)
	}
	return nil
}

// Epochs returns the number of lookahead windows needed to reach Horizon.
func (d DeploymentConfig) Epochs() int {
	return int((d.Horizon + d.Lookahead - 1) / d.Lookahead)
}
