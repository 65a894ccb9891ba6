package cmd

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/bfrggit/qualnet-up-sub002/sim/cluster"
	"github.com/bfrggit/qualnet-up-sub002/sim/trace"
	"github.com/bfrggit/qualnet-up-sub002/sim/workload"
)

var (
	// CLI flags for the run command; each overrides the run file when set
	configPath  string // YAML run file
	partitions  int    // Number of partitions
	horizon     int64  // Simulated end time (ns)
	lookahead   int64  // Epoch length (ns)
	packetSize  int    // CBR packet size (bytes)
	mtu         int    // Fragmentation unit (bytes)
	interval    int64  // CBR inter-packet gap (ns)
	remoteDelay int64  // Cross-partition delay (ns)
	probes      int    // Worker probes per epoch
	seed        int64  // Master seed
	traceLevel  string // none | counts | lifecycle
	logLevel    string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qualnet-sub",
	Short: "Message substrate of a partitioned discrete-event network simulator",
}

// runCmd drives the CBR workload across partitions
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a multi-partition CBR workload",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := DefaultRunConfig()
		if configPath != "" {
			var err error
			if cfg, err = LoadRunConfig(configPath); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		applyRunFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		runID := uuid.New()
		log := logrus.WithField("run", runID.String())
		log.Infof("Starting %d partitions, horizon=%v lookahead=%v packet=%dB mtu=%dB",
			cfg.Cluster.Partitions, cfg.Cluster.Horizon, cfg.Cluster.Lookahead,
			cfg.Workload.PacketSize, cfg.Workload.MTU)

		startTime := time.Now()
		out, err := runWorkload(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Simulation failed: %v", err)
		}
		out.RunID = runID
		out.Wall = time.Since(startTime)
		printReport(os.Stdout, out)
		log.Info("Simulation complete.")
	},
}

// inspectCmd dumps every message of a serialized list
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Decode a serialized message list and dump each message",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		data, err := os.ReadFile(args[0])
		if err != nil {
			logrus.Fatalf("Failed to read frame file: %v", err)
		}
		if err := inspectFrame(os.Stdout, data); err != nil {
			logrus.Fatalf("Failed to decode %s: %v", args[0], err)
		}
	},
}

// encodeSampleCmd writes a frame for use with inspect
var encodeSampleCmd = &cobra.Command{
	Use:   "encode-sample <file>",
	Short: "Write a sample serialized message list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		frame, err := sampleFrame()
		if err != nil {
			logrus.Fatalf("Failed to build sample: %v", err)
		}
		if err := os.WriteFile(args[0], frame, 0o644); err != nil {
			logrus.Fatalf("Failed to write %s: %v", args[0], err)
		}
		logrus.Infof("Wrote %d bytes to %s", len(frame), args[0])
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *RunConfig) {
	f := cmd.Flags()
	if f.Changed("partitions") {
		cfg.Cluster.Partitions = partitions
	}
	if f.Changed("horizon") {
		cfg.Cluster.Horizon = sim.Time(horizon)
	}
	if f.Changed("lookahead") {
		cfg.Cluster.Lookahead = sim.Time(lookahead)
	}
	if f.Changed("seed") {
		cfg.Cluster.Seed = seed
	}
	if f.Changed("packet-size") {
		cfg.Workload.PacketSize = packetSize
	}
	if f.Changed("mtu") {
		cfg.Workload.MTU = mtu
	}
	if f.Changed("interval") {
		cfg.Workload.Interval = sim.Time(interval)
	}
	if f.Changed("remote-delay") {
		cfg.Workload.RemoteDelay = sim.Time(remoteDelay)
	}
	if f.Changed("probes") {
		cfg.Workload.ProbesPerEpoch = probes
	}
	if f.Changed("trace") {
		cfg.Trace.Level = traceLevel
	}
}

// runOutput is everything the report prints.
type runOutput struct {
	RunID   uuid.UUID
	Wall    time.Duration
	Result  *cluster.Result
	Traffic workload.CBRStats
	Trace   *trace.TraceSummary
}

// runWorkload builds the cluster with one CBR client, one optional prober
// and one optional recorder per partition, and runs it.
func runWorkload(ctx context.Context, cfg RunConfig) (*runOutput, error) {
	rng := workload.NewPartitionedRNG(cfg.Cluster.Seed)
	clients := make([]*workload.CBR, cfg.Cluster.Partitions)
	recorders := make([]*trace.Recorder, cfg.Cluster.Partitions)
	traceCfg := trace.TraceConfig{Level: trace.TraceLevel(cfg.Trace.Level), MaxRecords: cfg.Trace.MaxRecords}

	comps := cluster.Components{
		Protocol: func(p *sim.Partition) (cluster.Protocol, error) {
			c, err := workload.NewCBR(cfg.Workload, p.ID(), cfg.Cluster.Partitions,
				rng.ForPartition(workload.SubsystemArrival, p.ID()))
			if err != nil {
				return nil, err
			}
			clients[p.ID()] = c
			return c, nil
		},
		Observer: func(p *sim.Partition) sim.Observer {
			r := trace.NewRecorder(p.ID(), traceCfg)
			if r == nil {
				return nil
			}
			recorders[p.ID()] = r
			return r
		},
	}
	if cfg.Workload.ProbesPerEpoch > 0 {
		comps.Worker = func(p *sim.Partition) cluster.Worker {
			return workload.NewProber(p.ID(), cfg.Workload.ProbesPerEpoch, cfg.Workload.ProbeSize,
				rng.ForPartition(workload.SubsystemProbe, p.ID()))
		}
	}

	cs, err := cluster.NewClusterSimulator(cfg.Deployment(), comps)
	if err != nil {
		return nil, err
	}
	res, err := cs.Run(ctx)
	if err != nil {
		return nil, err
	}
	out := &runOutput{Result: res, Trace: trace.Summarize(recorders...)}
	for _, c := range clients {
		out.Traffic.Add(c.Stats())
	}
	return out, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run file (message, cluster, workload, trace sections)")
	runCmd.Flags().IntVar(&partitions, "partitions", 2, "Number of partitions")
	runCmd.Flags().Int64Var(&horizon, "horizon", int64(sim.Second), "Simulated end time (ns)")
	runCmd.Flags().Int64Var(&lookahead, "lookahead", int64(sim.Millisecond), "Epoch length and minimum cross-partition delay (ns)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed")
	runCmd.Flags().IntVar(&packetSize, "packet-size", 1200, "CBR application packet size (bytes)")
	runCmd.Flags().IntVar(&mtu, "mtu", 576, "Fragmentation unit (bytes)")
	runCmd.Flags().Int64Var(&interval, "interval", int64(sim.Millisecond), "Mean gap between packets per node (ns)")
	runCmd.Flags().Int64Var(&remoteDelay, "remote-delay", int64(sim.Millisecond), "Delay to the peer partition (ns)")
	runCmd.Flags().IntVar(&probes, "probes", 0, "Worker-produced probes per epoch per partition")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Trace level (none, counts, lifecycle)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(encodeSampleCmd)
}
