package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inference-sim/reqsim/sim"
	"github.com/inference-sim/reqsim/sim/cluster"
	"github.com/inference-sim/reqsim/sim/trace"
)

var (
	seed             int64         // Seed for request generation and placement
	logLevel         string        // Log verbosity level
	configPath       string        // Optional YAML cluster config
	rate             float64       // Requests arrival per second
	policy           string        // Placement policy name
	admissionLimit   int           // Max created-but-unassigned requests
	serverCapacity   int           // Max queued requests per server
	serviceTimeScale float64       // Multiplier applied to every service delay
	duration         time.Duration // Run length; 0 runs until interrupted
	traceLevel       string        // Decision trace level
	eventLog         bool          // Log every routed event
	interactive      bool          // Read config changes from stdin
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "reqsim",
	Short: "Event-driven simulator for request allocation across a server cluster",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cluster simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := resolveConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Unknown trace level %q", traceLevel)
		}

		c, err := cluster.NewCluster(cluster.DeploymentConfig{
			ClusterConfig: cfg,
			Trace:         trace.TraceConfig{Level: trace.TraceLevel(traceLevel)},
		})
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		if duration > 0 {
			var cancelTimeout context.CancelFunc
			ctx, cancelTimeout = context.WithTimeout(ctx, duration)
			defer cancelTimeout()
		}

		if eventLog {
			go logEvents(c.Subscribe(256))
		}
		if interactive {
			go runConsole(ctx, os.Stdin, c.SubmitConfig, cancel)
		}

		startTime := time.Now()
		if err := c.Run(ctx); err != nil {
			logrus.Errorf("Simulation stopped with error: %v", err)
		}
		c.Stats().Print(os.Stdout)
		if st := c.Trace(); st != nil {
			printTraceSummary(os.Stdout, trace.Summarize(st))
		}
		logrus.Infof("Simulation complete after %v.", time.Since(startTime).Round(time.Millisecond))
	},
}

// policiesCmd lists the recognized placement policies
var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List placement policies",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range sim.ValidPlacementPolicies() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

// resolveConfig starts from the YAML file (or defaults) and applies only the
// flags the user explicitly set.
func resolveConfig(flags *pflag.FlagSet) (sim.ClusterConfig, error) {
	cfg := sim.DefaultClusterConfig()
	if configPath != "" {
		loaded, err := sim.LoadClusterConfig(configPath)
		if err != nil {
			return sim.ClusterConfig{}, err
		}
		cfg = *loaded
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("rate") {
		cfg.ArrivalRate = rate
	}
	if flags.Changed("policy") {
		cfg.PlacementPolicy = policy
	}
	if flags.Changed("admission-limit") {
		cfg.AdmissionLimit = admissionLimit
	}
	if flags.Changed("server-capacity") {
		cfg.ServerCapacity = serverCapacity
	}
	if flags.Changed("service-time-scale") {
		cfg.ServiceTimeScale = serviceTimeScale
	}
	if err := cfg.Validate(); err != nil {
		return sim.ClusterConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func logEvents(feed <-chan sim.Event) {
	for ev := range feed {
		entry := logrus.WithField("event", ev.Kind().String())
		if ev.Kind() == sim.EventErrorEncountered {
			entry.Warn(sim.Describe(ev))
			continue
		}
		entry.Info(sim.Describe(ev))
	}
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Allocation Trace ===")
	fmt.Fprintf(w, "Assignments          : %d\n", s.TotalAssignments)
	fmt.Fprintf(w, "Mean Failed Attempts : %.2f\n", s.MeanAttempts)
	fmt.Fprintf(w, "Congestion Notices   : %d (max %d consecutive failures)\n", s.CongestionNotices, s.MaxConsecutiveFailures)
	ids := make([]int, 0, len(s.TargetDistribution))
	for id := range s.TargetDistribution {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "Server %d Assignments : %d\n", id, s.TargetDistribution[id])
	}
	names := make([]string, 0, len(s.PolicyUsage))
	for name := range s.PolicyUsage {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, s.PolicyUsage[name])
	}
	fmt.Fprintf(w, "Policy Usage         : %s\n", strings.Join(parts, ", "))
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	defaults := sim.DefaultClusterConfig()

	runCmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Seed for request generation and placement")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML cluster config; flags override its values")

	runCmd.Flags().Float64Var(&rate, "rate", defaults.ArrivalRate, "Requests arrival per second")
	runCmd.Flags().StringVar(&policy, "policy", defaults.PlacementPolicy, "Placement policy ("+strings.Join(sim.ValidPlacementPolicies(), ", ")+")")
	runCmd.Flags().IntVar(&admissionLimit, "admission-limit", defaults.AdmissionLimit, "Max requests created but not yet assigned")
	runCmd.Flags().IntVar(&serverCapacity, "server-capacity", defaults.ServerCapacity, "Max queued requests per server")
	runCmd.Flags().Float64Var(&serviceTimeScale, "service-time-scale", defaults.ServiceTimeScale, "Multiplier applied to every service delay")

	runCmd.Flags().DurationVar(&duration, "duration", 0, "Run length (0 runs until interrupted)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().BoolVar(&eventLog, "event-log", false, "Log every routed event")
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "Read 'rate <n>', 'policy <name>' and 'quit' commands from stdin")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(policiesCmd)
}
