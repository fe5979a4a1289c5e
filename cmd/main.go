// Package main provides the CLI entry point for the load generator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/example/ecommerce/loadgen/internal/config"
	"github.com/example/ecommerce/loadgen/internal/logger"
	"github.com/example/ecommerce/loadgen/internal/runner"
	"github.com/example/ecommerce/loadgen/internal/scenario"
	"github.com/example/ecommerce/loadgen/internal/vu"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath     string
	host           string
	users          int
	spawnRate      float64
	duration       time.Duration
	seed           uint64
	prometheusAddr string
	outputFile     string
	verbose        bool
	list           bool
	validate       bool
	dryRun         bool
	showVersion    bool
}

func newFlagSet(opts *cliOptions, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("loadgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Configuration
	fs.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to the YAML configuration file (shorthand)")
	fs.StringVar(&opts.host, "host", "", "Target base URL (overrides HOST, .env and config)")

	// Override flags
	fs.IntVar(&opts.users, "users", 0, "Override the number of virtual users")
	fs.IntVar(&opts.users, "u", 0, "Override the number of virtual users (shorthand)")
	fs.Float64Var(&opts.spawnRate, "spawn-rate", 0, "Override users started per second")
	fs.Float64Var(&opts.spawnRate, "r", 0, "Override users started per second (shorthand)")
	fs.DurationVar(&opts.duration, "duration", 0, "Override run duration (e.g., 5m, 1h)")
	fs.DurationVar(&opts.duration, "d", 0, "Override run duration (shorthand)")
	fs.Uint64Var(&opts.seed, "seed", 0, "Seed every user's random source (0 = random)")

	// Utility flags
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose output and debug logging")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose output (shorthand)")
	fs.BoolVar(&opts.list, "list", false, "List profiles and their actions")
	fs.BoolVar(&opts.list, "l", false, "List profiles and their actions (shorthand)")
	fs.BoolVar(&opts.validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Show the execution plan without sending traffic")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	// Output flags
	fs.StringVar(&opts.outputFile, "output-file", "", "JSON report path (supports {{.Timestamp}} and {{.Date}})")
	fs.StringVar(&opts.prometheusAddr, "prometheus", "", "Prometheus metrics endpoint (e.g., :9090 or localhost:9090)")

	fs.Usage = func() { printUsage(stderr) }
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Load Generator - E-commerce Microservices Load Testing Tool

USAGE:
    loadgen [-config <path>] [options]

DESCRIPTION:
    Simulates concurrent virtual users against the product, order, shipping,
    favourite, payment and user services behind one gateway. Each user picks
    weighted actions from its profile, pauses between them, and carries the
    ids it learns from earlier responses into later requests.

CONFIGURATION:
    -config, -c <path>      Path to the YAML configuration file (defaults apply without one)
    -host <url>             Target base URL. Otherwise HOST, then .env, then target.baseURL,
                            then http://localhost:8080

OVERRIDE OPTIONS:
    -users, -u <n>          Number of virtual users
    -spawn-rate, -r <n>     Users started per second
    -duration, -d <dur>     Run duration (e.g., "5m", "1h30m"); 0 runs until interrupted
    -seed <n>               Deterministic random source per user

UTILITY OPTIONS:
    -list, -l               List profiles, think times and action weights
    -validate               Validate configuration and exit
    -dry-run                Show the execution plan without running
    -verbose, -v            Enable verbose output
    -version                Show version information
    -help, -h               Show this help message

OUTPUT OPTIONS:
    -output-file <path>     JSON report file (supports {{.Timestamp}} template)
    -prometheus <addr>      Enable Prometheus metrics endpoint (e.g., :9090)

EXAMPLES:
    # Run 50 users for ten minutes against a local gateway
    loadgen -host http://localhost:8080 -users 50 -spawn-rate 5 -duration 10m

    # Run from a configuration file and write a JSON report
    loadgen -config configs/loadgen.yaml -output-file results/run-{{.Timestamp}}.json

    # Expose live metrics to Prometheus
    loadgen -config configs/loadgen.yaml -prometheus :9090

    # Show how users would be split across profiles
    loadgen -config configs/loadgen.yaml -users 20 -dry-run
`)
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts cliOptions
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.showVersion {
		printVersion(stdout)
		return exitOK
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	applyOverrides(cfg, &opts, stdout)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if opts.validate {
		fmt.Fprintf(stdout, "Configuration '%s' is valid.\n", cfg.Name)
		printConfigSummary(stdout, cfg)
		return exitOK
	}

	if opts.list {
		if err := printProfileList(stdout, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	if opts.dryRun {
		if err := printExecutionPlan(stdout, cfg, opts.host); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	if err := runLoadTest(ctx, cfg, &opts, stdout); err != nil {
		fmt.Fprintf(stderr, "Error running load test: %v\n", err)
		return exitError
	}
	return exitOK
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "loadgen version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadConfig reads the file at path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	return config.LoadFromFile(abs)
}

func applyOverrides(cfg *config.Config, opts *cliOptions, w io.Writer) {
	if opts.users > 0 {
		cfg.Population.Users = opts.users
		if opts.verbose {
			fmt.Fprintf(w, "Override: users = %d\n", opts.users)
		}
	}

	if opts.spawnRate > 0 {
		cfg.Population.SpawnRate = opts.spawnRate
		if opts.verbose {
			fmt.Fprintf(w, "Override: spawn rate = %.1f/s\n", opts.spawnRate)
		}
	}

	if opts.duration > 0 {
		cfg.Population.Duration = opts.duration
		if opts.verbose {
			fmt.Fprintf(w, "Override: duration = %v\n", opts.duration)
		}
	}

	if opts.seed != 0 {
		cfg.Population.Seed = opts.seed
		if opts.verbose {
			fmt.Fprintf(w, "Override: seed = %d\n", opts.seed)
		}
	}

	if opts.verbose {
		cfg.Output.Verbose = true
		cfg.Log.Level = "debug"
	}

	if opts.outputFile != "" {
		cfg.Output.ReportFile = opts.outputFile
		if opts.verbose {
			fmt.Fprintf(w, "Override: output file = %s\n", opts.outputFile)
		}
	}

	if opts.prometheusAddr != "" {
		cfg.Output.Prometheus.Enabled = true
		if port := parsePrometheusPort(opts.prometheusAddr); port > 0 {
			cfg.Output.Prometheus.Port = port
		}
		if cfg.Output.Prometheus.Path == "" {
			cfg.Output.Prometheus.Path = "/metrics"
		}
		if opts.verbose {
			fmt.Fprintf(w, "Override: Prometheus enabled on port %d\n", cfg.Output.Prometheus.Port)
		}
	}
}

// parsePrometheusPort extracts the port from :9090, localhost:9090 or 9090.
// It returns 0 for anything outside 1-65535.
func parsePrometheusPort(addr string) int {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		addr = addr[i+1:]
	}

	var port int
	if _, err := fmt.Sscanf(addr, "%d", &port); err != nil {
		return 0
	}
	if port <= 0 || port > 65535 {
		return 0
	}
	return port
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	duration := "until interrupted"
	if cfg.Population.Duration > 0 {
		duration = cfg.Population.Duration.String()
	}
	target := cfg.Target.BaseURL
	if target == "" {
		target = "(resolved at startup)"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration Summary:")
	fmt.Fprintf(w, "  Name:        %s\n", cfg.Name)
	fmt.Fprintf(w, "  Target:      %s\n", target)
	fmt.Fprintf(w, "  Users:       %d\n", cfg.Population.Users)
	fmt.Fprintf(w, "  Spawn Rate:  %.1f/s\n", cfg.Population.SpawnRate)
	fmt.Fprintf(w, "  Duration:    %s\n", duration)
	fmt.Fprintf(w, "  Profiles:    %d overridden\n", len(cfg.Profiles))
}

func printProfileList(w io.Writer, cfg *config.Config) error {
	profiles, err := scenario.BuildProfiles(cfg.Profiles)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Profiles (%d total):\n\n", len(profiles))
	for _, p := range profiles {
		fmt.Fprintf(w, "== %s ==  share:%d  think:%s-%s\n", strings.ToUpper(p.Name), p.Share, p.ThinkMin, p.ThinkMax)

		sel, err := p.Selector()
		if err != nil {
			fmt.Fprintf(w, "  (no selectable actions: %v)\n\n", err)
			continue
		}
		for _, t := range p.Tasks {
			fmt.Fprintf(w, "  %-24s w:%-3d %5.1f%%\n", t.Name, t.Weight, sel.Probability(t.Name)*100)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printExecutionPlan(w io.Writer, cfg *config.Config, hostFlag string) error {
	profiles, err := scenario.BuildProfiles(cfg.Profiles)
	if err != nil {
		return err
	}

	host, source := hostFlag, "flag"
	if host == "" {
		h, s, err := config.ResolveHost(runner.DefaultDotEnvPath, cfg.Target.BaseURL)
		if err != nil {
			return err
		}
		host, source = h, string(s)
	}

	alloc := vu.Allocate(cfg.Population.Users, profiles)
	names := make([]string, 0, len(alloc))
	for name := range alloc {
		names = append(names, name)
	}
	sort.Strings(names)

	rampUp := time.Duration(float64(cfg.Population.Users-1) / cfg.Population.SpawnRate * float64(time.Second))

	fmt.Fprintln(w, "Execution Plan")
	fmt.Fprintln(w, "==============")
	fmt.Fprintf(w, "Target:      %s (%s)\n", host, source)
	fmt.Fprintf(w, "Users:       %d\n", cfg.Population.Users)
	fmt.Fprintf(w, "Spawn Rate:  %.1f/s (all users started after ~%s)\n", cfg.Population.SpawnRate, rampUp.Round(time.Millisecond))
	if cfg.Population.Duration > 0 {
		fmt.Fprintf(w, "Duration:    %s\n", cfg.Population.Duration)
	} else {
		fmt.Fprintln(w, "Duration:    until interrupted")
	}
	if cfg.Population.Seed != 0 {
		fmt.Fprintf(w, "Seed:        %d\n", cfg.Population.Seed)
	}
	fmt.Fprintf(w, "Pools:       products=%d orders=%d users=%d\n", cfg.Pools.Products, cfg.Pools.Orders, cfg.Pools.Users)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "User allocation:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %d\n", name, alloc[name])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintf(w, "  Progress every %s\n", cfg.Output.ReportInterval)
	if cfg.Output.ReportFile != "" {
		fmt.Fprintf(w, "  JSON report: %s\n", cfg.Output.ReportFile)
	}
	if cfg.Output.Prometheus.Enabled {
		fmt.Fprintf(w, "  Prometheus: :%d%s\n", cfg.Output.Prometheus.Port, cfg.Output.Prometheus.Path)
	}
	return nil
}

func runLoadTest(ctx context.Context, cfg *config.Config, opts *cliOptions, stdout io.Writer) error {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	r, err := runner.New(ctx, cfg, runner.Options{
		Logger:        log,
		Output:        stdout,
		Host:          opts.host,
		HandleSignals: true,
		Colors:        isTerminal(stdout),
	})
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
