// Package runner provides the load test runner that wires configuration,
// the HTTP client, metrics, telemetry and the virtual user population.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ecommerce/loadgen/internal/client"
	"github.com/example/ecommerce/loadgen/internal/config"
	"github.com/example/ecommerce/loadgen/internal/metrics"
	"github.com/example/ecommerce/loadgen/internal/scenario"
	"github.com/example/ecommerce/loadgen/internal/telemetry"
	"github.com/example/ecommerce/loadgen/internal/vu"
)

// ErrAlreadyRunning is returned when Run is called on a running Runner.
var ErrAlreadyRunning = errors.New("runner: already running")

// Version is reported in traces and the JSON report.
const Version = "1.0.0"

// DefaultDotEnvPath is the .env file consulted for the target host.
const DefaultDotEnvPath = ".env"

// Options tune how a Runner is built. The zero value is usable.
type Options struct {
	// Logger receives lifecycle logs. Default: zap.NewNop().
	Logger *zap.Logger

	// Output receives the banner, progress lines and summary. Default: os.Stdout.
	Output io.Writer

	// Host overrides host resolution entirely (the -host flag).
	Host string

	// DotEnvPath is the .env file checked for HOST. Default: ".env".
	DotEnvPath string

	// Sleeper replaces the think-time wait of every virtual user.
	Sleeper vu.Sleeper

	// HandleSignals stops the run on SIGINT or SIGTERM.
	HandleSignals bool

	// Colors enables ANSI colors on the console output.
	Colors bool
}

// Runner orchestrates a single load test run.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
	opts   Options

	runID      string
	profiles   []scenario.Profile
	allocation map[string]int

	client     *client.Client
	collector  *metrics.Collector
	exporter   *metrics.PrometheusExporter
	console    *metrics.Console
	reporter   *metrics.Reporter
	tracer     *telemetry.TracerProvider
	profiler   *telemetry.Profiler
	population *vu.Population

	running    atomic.Bool
	reportPath string
	wg         sync.WaitGroup
}

// New resolves the target host and builds every component of a run.
// Nothing is sent to the target until Run is called.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runner, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.DotEnvPath == "" {
		opts.DotEnvPath = DefaultDotEnvPath
	}

	r := &Runner{
		cfg:       cfg,
		logger:    opts.Logger,
		out:       opts.Output,
		opts:      opts,
		runID:     uuid.NewString(),
		collector: metrics.NewCollector(metrics.DefaultCollectorConfig()),
		console:   metrics.NewConsole(opts.Output, opts.Colors),
		reporter:  metrics.NewReporter(),
	}

	if err := r.resolveHost(); err != nil {
		return nil, err
	}

	profiles, err := scenario.BuildProfiles(cfg.Profiles)
	if err != nil {
		return nil, fmt.Errorf("building profiles: %w", err)
	}
	r.profiles = profiles
	r.allocation = vu.Allocate(cfg.Population.Users, profiles)

	if err := r.setupTelemetry(ctx); err != nil {
		return nil, err
	}

	httpClient, err := client.NewClient(cfg.Target)
	if err != nil {
		r.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}
	r.client = httpClient

	recorders := metrics.Recorders{r.collector}
	var hooks vu.Hooks
	if cfg.Output.Prometheus.Enabled {
		r.exporter = metrics.NewPrometheusExporter(metrics.PrometheusExporterConfig{
			Port: cfg.Output.Prometheus.Port,
			Path: cfg.Output.Prometheus.Path,
		})
		recorders = append(recorders, r.exporter)
		hooks.OnUserStart = func(_ int, profile string) { r.exporter.UserStarted(profile) }
		hooks.OnUserStop = func(_ int, profile string) { r.exporter.UserStopped(profile) }
	}

	population, err := vu.NewPopulation(vu.PopulationConfig{
		Users:     cfg.Population.Users,
		SpawnRate: cfg.Population.SpawnRate,
		Seed:      cfg.Population.Seed,
		Pools:     cfg.Pools,
		Profiles:  profiles,
		Client:    httpClient,
		Recorder:  recorders,
		Logger:    r.logger,
		Tracer:    r.tracer.Tracer(),
		Hooks:     hooks,
		Sleeper:   opts.Sleeper,
	})
	if err != nil {
		httpClient.Close()
		r.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("creating population: %w", err)
	}
	r.population = population

	return r, nil
}

// resolveHost sets cfg.Target.BaseURL once for the whole run.
func (r *Runner) resolveHost() error {
	if r.opts.Host != "" {
		r.cfg.Target.BaseURL = r.opts.Host
		r.logger.Info("Target host set from command line", zap.String("host", r.opts.Host))
		return nil
	}

	host, source, err := config.ResolveHost(r.opts.DotEnvPath, r.cfg.Target.BaseURL)
	if err != nil {
		return fmt.Errorf("resolving target host: %w", err)
	}
	r.cfg.Target.BaseURL = host
	if source == config.HostFromDefault {
		r.logger.Warn("No HOST configured, using default target",
			zap.String("host", host),
			zap.String("env", config.HostEnvKey),
			zap.String("dotenv", r.opts.DotEnvPath),
		)
		return nil
	}
	r.logger.Info("Target host resolved", zap.String("host", host), zap.String("source", string(source)))
	return nil
}

func (r *Runner) setupTelemetry(ctx context.Context) error {
	tc := r.cfg.Telemetry
	ratio := 1.0
	if tc.SamplingRatio != nil {
		ratio = *tc.SamplingRatio
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     ratio,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    Version,
		Insecure:          tc.Insecure,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	r.tracer = tp

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.Profiling.Enabled,
		ServerAddress:   tc.Profiling.ServerAddress,
		ApplicationName: tc.ServiceName,
		Tags:            map[string]string{"run_id": r.runID},
	}, r.logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("initializing profiler: %w", err)
	}
	r.profiler = profiler
	if profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}
	return nil
}

func (r *Runner) shutdownTelemetry(ctx context.Context) {
	if r.profiler != nil {
		if err := r.profiler.Stop(); err != nil {
			r.logger.Warn("Failed to stop profiler", zap.Error(err))
		}
	}
	if r.tracer != nil {
		if err := r.tracer.Shutdown(ctx); err != nil {
			r.logger.Warn("Failed to shut down tracer provider", zap.Error(err))
		}
	}
}

// Run executes the load test until the configured duration elapses, the
// context is cancelled or, with HandleSignals, SIGINT/SIGTERM arrives.
// Only startup failures are returned; failed calls are reported, not
// returned.
func (r *Runner) Run(ctx context.Context) error {
	if r.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	if r.opts.HandleSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}
	if d := r.cfg.Population.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	shutdownCtx := context.WithoutCancel(ctx)
	defer r.client.Close()
	defer r.shutdownTelemetry(shutdownCtx)

	if r.exporter != nil {
		if err := r.exporter.Start(); err != nil {
			return err
		}
		r.logger.Info("Prometheus metrics available",
			zap.String("addr", r.exporter.Address()),
			zap.String("path", r.exporter.Path()),
		)
		defer func() {
			stopCtx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
			defer cancel()
			if err := r.exporter.Stop(stopCtx); err != nil {
				r.logger.Warn("Failed to stop Prometheus exporter", zap.Error(err))
			}
		}()
	}

	r.printBanner()
	r.logger.Info("Starting load test",
		zap.String("run_id", r.runID),
		zap.Int("users", r.cfg.Population.Users),
		zap.Float64("spawn_rate", r.cfg.Population.SpawnRate),
		zap.Duration("duration", r.cfg.Population.Duration),
		zap.Any("profiles", r.allocation),
	)

	r.collector.Start()

	progressCtx, stopProgress := context.WithCancel(ctx)
	r.wg.Add(1)
	go r.runProgressReporter(progressCtx)

	err := r.population.Run(ctx)

	stopProgress()
	r.wg.Wait()
	r.collector.Stop()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Info("Test duration reached")
	} else {
		r.logger.Info("Load test stopped")
	}
	if err != nil {
		return fmt.Errorf("running population: %w", err)
	}

	snapshot := r.collector.Snapshot()
	if r.exporter != nil {
		r.exporter.UpdateFromSnapshot(snapshot)
	}
	r.console.PrintSummary(snapshot)

	if path := r.cfg.Output.ReportFile; path != "" {
		written, err := r.writeReport(snapshot, path)
		if err != nil {
			r.logger.Error("Failed to write report", zap.String("path", path), zap.Error(err))
		} else {
			r.reportPath = written
			r.logger.Info("Report written", zap.String("path", written))
		}
	}
	return nil
}

func (r *Runner) writeReport(snapshot metrics.Snapshot, path string) (string, error) {
	report := r.reporter.GenerateReport(snapshot, r.runID, metrics.ReportConfiguration{
		Name:          r.cfg.Name,
		TargetBaseURL: r.cfg.Target.BaseURL,
		Users:         r.cfg.Population.Users,
		SpawnRate:     r.cfg.Population.SpawnRate,
		Duration:      metrics.Duration{Duration: r.cfg.Population.Duration},
		Seed:          r.cfg.Population.Seed,
		Profiles:      r.allocation,
	})
	return r.reporter.WriteToFile(report, path)
}

// runProgressReporter prints a progress line every report interval.
func (r *Runner) runProgressReporter(ctx context.Context) {
	defer r.wg.Done()

	if r.cfg.Output.ReportInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.Output.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := r.collector.Snapshot()
			if r.exporter != nil {
				r.exporter.UpdateFromSnapshot(snapshot)
			}
			r.console.PrintProgress(snapshot, r.population.Active())
		}
	}
}

// printBanner prints the run banner.
func (r *Runner) printBanner() {
	duration := "until interrupted"
	if d := r.cfg.Population.Duration; d > 0 {
		duration = d.String()
	}
	fmt.Fprintln(r.out, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(r.out, "║  Load Generator: %-42s ║\n", truncate(r.cfg.Name, 42))
	fmt.Fprintln(r.out, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(r.out, "║  Target:    %-48s ║\n", truncate(r.cfg.Target.BaseURL, 48))
	fmt.Fprintf(r.out, "║  Users:     %-48d ║\n", r.cfg.Population.Users)
	fmt.Fprintf(r.out, "║  Spawn:     %-48s ║\n", fmt.Sprintf("%.1f users/s", r.cfg.Population.SpawnRate))
	fmt.Fprintf(r.out, "║  Duration:  %-48s ║\n", duration)
	fmt.Fprintln(r.out, "╚════════════════════════════════════════════════════════════╝")
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// BaseURL returns the resolved target host.
func (r *Runner) BaseURL() string {
	return r.cfg.Target.BaseURL
}

// Allocation returns the number of users per profile.
func (r *Runner) Allocation() map[string]int {
	out := make(map[string]int, len(r.allocation))
	for k, v := range r.allocation {
		out[k] = v
	}
	return out
}

// Snapshot returns the current metrics.
func (r *Runner) Snapshot() metrics.Snapshot {
	return r.collector.Snapshot()
}

// ReportPath returns where the JSON report was written, if anywhere.
func (r *Runner) ReportPath() string {
	return r.reportPath
}

// truncate truncates a string to max length.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
