package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig holds Pyroscope configuration.
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
	Tags            map[string]string
}

// Profiler wraps the Pyroscope profiler with lifecycle management.
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

var defaultProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

// NewProfiler starts a Pyroscope profiler, or returns a no-op one when
// profiling is disabled.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger, config: cfg}
	if !cfg.Enabled {
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, errors.New("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, errors.New("profiler application name is required when profiling is enabled")
	}

	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		tags["hostname"] = hostname
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          logger.Named("pyroscope").Sugar(),
		Tags:            tags,
		ProfileTypes:    defaultProfileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("starting Pyroscope profiler: %w", err)
	}
	p.profiler = profiler

	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
	)
	return p, nil
}

// IsEnabled reports whether profiles are being collected.
func (p *Profiler) IsEnabled() bool {
	return p.profiler != nil
}

// Stop flushes and stops the profiler. It is safe to call more than once.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.profiler == nil {
		p.stopped = true
		return nil
	}
	p.stopped = true

	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("stopping profiler: %w", err)
	}
	p.logger.Debug("Pyroscope profiler stopped")
	return nil
}

// WithActionLabels runs fn with pprof labels naming the virtual user
// profile and action so CPU time can be split per action.
func WithActionLabels(ctx context.Context, profile, action string, fn func(context.Context)) {
	pyroscope.TagWrapper(ctx, pyroscope.Labels("vu_profile", profile, "action", action), fn)
}
