package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/intersection-sim/intersection-sim/sim"
	"github.com/intersection-sim/intersection-sim/sim/trace"
)

var (
	// Run configuration
	seed         int64   // Seed for reproducible spawn and bus fault streams
	vehicleCount int     // Number of vehicles to spawn
	tickHz       float64 // Simulation ticks per second
	ticks        int64   // Number of ticks for the headless run
	logLevel     string  // Log verbosity level
	scenarioPath string  // Optional YAML scenario file
	traceLevel   string  // Decision audit trace level

	// Bus fault model
	dropRate           float64 // Packet drop probability (0.0 to 1.0)
	latencyMinTicks    int64   // Minimum injected latency, in ticks
	latencyJitterTicks int64   // Uniform latency jitter on top of the minimum

	// Safety policy
	priorityAxis       string // EW or NS
	signalScheduler    bool   // Virtual signal gate
	collisionGuard     bool   // Pairwise projected-overlap clamp
	overlapResolver    bool   // Last-resort separation of overlapping pairs
	inferenceTimeoutMs int64  // Per-vehicle inference budget, in milliseconds
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "intersection-sim",
	Short: "Tick-driven V2X intersection safety simulator",
}

// runCmd executes a headless simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the intersection simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := sim.DefaultSimConfig()
		cfg.Seed = seed
		cfg.VehicleCount = vehicleCount
		cfg.TickHz = tickHz
		cfg.Ticks = ticks
		cfg.InferenceTimeout = time.Duration(inferenceTimeoutMs) * time.Millisecond
		cfg.TraceLevel = trace.Level(traceLevel)
		cfg.Bus.Default = sim.TopicProfile{
			DropRate:           dropRate,
			LatencyMinTicks:    latencyMinTicks,
			LatencyJitterTicks: latencyJitterTicks,
		}
		cfg.Policy.PriorityAxis = sim.Axis(priorityAxis)
		cfg.Policy.SignalScheduler = signalScheduler
		cfg.Policy.CollisionGuard = collisionGuard
		cfg.Policy.OverlapResolver = overlapResolver

		if scenarioPath != "" {
			scenario, err := sim.LoadScenario(scenarioPath)
			if err != nil {
				logrus.Fatalf("Scenario load failed: %v", err)
			}
			if err := scenario.Apply(&cfg); err != nil {
				logrus.Fatalf("Scenario invalid: %v", err)
			}
		}

		bridge, err := sim.NewBridge(cfg, nil)
		if err != nil {
			logrus.Fatalf("Configuration invalid: %v", err)
		}

		logrus.Infof("Starting simulation: seed=%d vehicles=%d tick_hz=%.1f ticks=%d drop=%.2f",
			cfg.Seed, cfg.VehicleCount, cfg.TickHz, cfg.Ticks, dropRate)

		ctx := context.Background()
		for i := int64(0); i < cfg.Ticks; i++ {
			if err := bridge.StepOnce(ctx); err != nil {
				logrus.Fatalf("Tick %d failed: %v", i, err)
			}
			if bridge.Finished() {
				logrus.Infof("All vehicles departed after %d ticks", i+1)
				break
			}
		}

		metrics := bridge.Metrics()
		metrics.Print(bridge.Bus().Report())
		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for reproducible spawn and bus fault streams")
	runCmd.Flags().IntVar(&vehicleCount, "vehicles", 6, "Number of vehicles to spawn")
	runCmd.Flags().Float64Var(&tickHz, "tick-hz", 20, "Simulation ticks per second")
	runCmd.Flags().Int64Var(&ticks, "ticks", 1200, "Number of ticks for the headless run")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to a YAML scenario file")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision audit trace level (none, decisions)")

	// V2X bus fault model
	runCmd.Flags().Float64Var(&dropRate, "drop-rate", 0.0, "Packet drop probability (0.0 to 1.0)")
	runCmd.Flags().Int64Var(&latencyMinTicks, "latency-min-ticks", 0, "Minimum injected bus latency, in ticks")
	runCmd.Flags().Int64Var(&latencyJitterTicks, "latency-jitter-ticks", 0, "Uniform latency jitter on top of the minimum")

	// Safety policy
	runCmd.Flags().StringVar(&priorityAxis, "priority-axis", "EW", "Priority axis (EW or NS)")
	runCmd.Flags().BoolVar(&signalScheduler, "signal-scheduler", false, "Enable the virtual signal gate")
	runCmd.Flags().BoolVar(&collisionGuard, "collision-guard", true, "Enable the pairwise collision guard")
	runCmd.Flags().BoolVar(&overlapResolver, "overlap-resolver", true, "Enable the last-resort overlap resolver")
	runCmd.Flags().Int64Var(&inferenceTimeoutMs, "inference-timeout-ms", 50, "Per-vehicle inference budget in milliseconds")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
