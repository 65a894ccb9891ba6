// register.go wires the heap scheduler into the sim package's registration
// variable (NewSchedulerFunc). This init() runs when any package imports
// sim/scheduler, breaking the import cycle between sim/ (interface owner)
// and sim/scheduler/ (implementation).
package scheduler

import "github.com/bfrggit/qualnet-up-sub002/sim"

func init() {
	sim.NewSchedulerFunc = func() sim.Scheduler { return New() }
}
